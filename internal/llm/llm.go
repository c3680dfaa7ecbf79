package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

const SystemPrompt = `You are a helpful AI assistant with vision capabilities.
You can analyze images and PDF documents that users share with you.
When users share files, carefully examine them and provide detailed, helpful responses.
For PDFs, read and understand the content thoroughly.
For images, describe what you see and answer any questions about them.
Be conversational, helpful, and accurate in your responses.`

const (
	DefaultTemperature = 0.7
	MaxTitleLength     = 50
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	KindImage = "image"
	KindPDF   = "pdf"
)

// Turn is a prior message in the conversation. History is text only.
type Turn struct {
	Role string
	Text string
}

type File struct {
	Name     string
	Kind     string
	MimeType string
	Data     []byte
}

// Part is one piece of the new user message: either Text or File.
type Part struct {
	Text string
	File *File
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func FilePart(file File) Part {
	return Part{File: &file}
}

// FailedFilePart stands in for an attachment whose content could not be loaded.
func FailedFilePart(kind, name string) Part {
	if kind == KindPDF {
		return TextPart(fmt.Sprintf("[Failed to load PDF: %s]", name))
	}
	return TextPart(fmt.Sprintf("[Failed to load image: %s]", name))
}

type Prompt struct {
	History []Turn
	Parts   []Part
}

// TextHistory is History without turns that carry no text, which model APIs
// reject as empty content.
func (p Prompt) TextHistory() []Turn {
	turns := make([]Turn, 0, len(p.History))
	for _, turn := range p.History {
		if strings.TrimSpace(turn.Text) != "" {
			turns = append(turns, turn)
		}
	}
	return turns
}

// SharedFilesText describes a message that consisted only of attachments.
func SharedFilesText(names []string) string {
	return "Shared files: " + strings.Join(names, ", ")
}

// Provider is a chat model backend.
type Provider interface {
	Name() string

	Model() string

	// Stream yields response text as the model produces it. The stream stops
	// after the first error.
	Stream(ctx context.Context, prompt Prompt) iter.Seq2[string, error]

	// Title generates a short conversation title from the first user message.
	Title(ctx context.Context, firstMessage string) (string, error)
}

func titlePrompt(firstMessage string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words max) for a conversation that starts with this message:
"%s"

Respond with ONLY the title, no quotes or punctuation at the end.`, firstMessage)
}

// NormalizeTitle trims model output and caps it at MaxTitleLength runes.
func NormalizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	return strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
}
