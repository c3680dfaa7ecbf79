package llm

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel      = "gemini-3-pro-preview"
	DefaultGeminiTitleModel = "gemini-2.5-flash-lite"
)

type GeminiConfig struct {
	APIKey     string
	Model      string
	TitleModel string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// GeminiProvider sends attachments to the model as inline bytes, including
// PDFs which Gemini reads natively.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	titleModel  string
	temperature float32
}

var _ Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	p := &GeminiProvider{
		client:      client,
		model:       cfg.Model,
		titleModel:  cfg.TitleModel,
		temperature: DefaultTemperature,
	}
	if p.model == "" {
		p.model = DefaultGeminiModel
	}
	if p.titleModel == "" {
		p.titleModel = DefaultGeminiTitleModel
	}

	return p, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) contents(prompt Prompt) []*genai.Content {
	contents := make([]*genai.Content, 0, len(prompt.History)+1)
	for _, turn := range prompt.TextHistory() {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	parts := make([]*genai.Part, 0, len(prompt.Parts))
	for _, part := range prompt.Parts {
		switch {
		case part.File != nil:
			parts = append(parts, genai.NewPartFromBytes(part.File.Data, part.File.MimeType))
		case part.Text != "":
			parts = append(parts, genai.NewPartFromText(part.Text))
		}
	}

	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

func (p *GeminiProvider) Stream(ctx context.Context, prompt Prompt) iter.Seq2[string, error] {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(p.temperature),
	}

	return func(yield func(string, error) bool) {
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, p.contents(prompt), config) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (p *GeminiProvider) Title(ctx context.Context, firstMessage string) (string, error) {
	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.titleModel,
		[]*genai.Content{genai.NewContentFromText(titlePrompt(firstMessage), genai.RoleUser)},
		&genai.GenerateContentConfig{Temperature: genai.Ptr(p.temperature)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini title generation failed: %w", err)
	}

	return NormalizeTitle(resp.Text()), nil
}
