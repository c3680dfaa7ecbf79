package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"docchat-backend/internal/document_parsing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultOpenAITitleModel = "gpt-4o-mini"
)

type OpenAIConfig struct {
	APIKey     string
	Model      string
	TitleModel string
	// BaseURL selects an OpenAI compatible endpoint.
	BaseURL string
}

// OpenAIProvider talks to OpenAI compatible chat APIs. Images are sent
// inline; PDFs are converted to text first.
type OpenAIProvider struct {
	llm         *openai.LLM
	titleLLM    *openai.LLM
	model       string
	temperature float64
}

var _ Provider = (*OpenAIProvider)(nil)

func newOpenAIClient(cfg OpenAIConfig, model string) (*openai.LLM, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create openai client: %w", err)
	}
	return client, nil
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.TitleModel == "" {
		cfg.TitleModel = DefaultOpenAITitleModel
	}

	client, err := newOpenAIClient(cfg, cfg.Model)
	if err != nil {
		return nil, err
	}

	titleClient, err := newOpenAIClient(cfg, cfg.TitleModel)
	if err != nil {
		return nil, err
	}

	return &OpenAIProvider{
		llm:         client,
		titleLLM:    titleClient,
		model:       cfg.Model,
		temperature: DefaultTemperature,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) messages(prompt Prompt) []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt),
	}

	for _, turn := range prompt.TextHistory() {
		role := llms.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Text))
	}

	parts := make([]llms.ContentPart, 0, len(prompt.Parts))
	for _, part := range prompt.Parts {
		switch {
		case part.File != nil && part.File.Kind == KindPDF:
			text, err := document_parsing.PDFToText(part.File.Data)
			if err != nil {
				slog.Warn("failed to extract pdf text", "name", part.File.Name, "error", err)
				parts = append(parts, llms.TextPart(FailedFilePart(KindPDF, part.File.Name).Text))
				continue
			}
			parts = append(parts, llms.TextPart(fmt.Sprintf("[PDF: %s]\n%s", part.File.Name, text)))
		case part.File != nil:
			parts = append(parts, llms.BinaryPart(part.File.MimeType, part.File.Data))
		case part.Text != "":
			parts = append(parts, llms.TextPart(part.Text))
		}
	}

	return append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
}

func (p *OpenAIProvider) Stream(ctx context.Context, prompt Prompt) iter.Seq2[string, error] {
	messages := p.messages(prompt)

	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		errs := make(chan error, 1)

		go func() {
			defer close(chunks)
			_, err := p.llm.GenerateContent(ctx, messages,
				llms.WithTemperature(p.temperature),
				llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
					select {
					case chunks <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}),
			)
			errs <- err
		}()

		for chunk := range chunks {
			if chunk == "" {
				continue
			}
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				return
			}
		}

		if err := <-errs; err != nil {
			yield("", fmt.Errorf("openai stream failed: %w", err))
		}
	}
}

func (p *OpenAIProvider) Title(ctx context.Context, firstMessage string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, p.titleLLM, titlePrompt(firstMessage), llms.WithTemperature(p.temperature))
	if err != nil {
		return "", fmt.Errorf("openai title generation failed: %w", err)
	}
	return NormalizeTitle(text), nil
}
