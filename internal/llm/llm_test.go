package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "Quarterly Budget Review", NormalizeTitle("  Quarterly Budget Review\n"))

	long := strings.Repeat("word ", 20)
	title := NormalizeTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), MaxTitleLength)
	assert.True(t, strings.HasPrefix(long, title))

	accented := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", MaxTitleLength), NormalizeTitle(accented))

	assert.Equal(t, "", NormalizeTitle(" \n\t"))
}

func TestTitlePromptIncludesMessage(t *testing.T) {
	prompt := titlePrompt("what is in this contract?")
	assert.Contains(t, prompt, `"what is in this contract?"`)
	assert.Contains(t, prompt, "3-5 words max")
}

func TestFailedFilePart(t *testing.T) {
	assert.Equal(t, "[Failed to load PDF: report.pdf]", FailedFilePart(KindPDF, "report.pdf").Text)
	assert.Equal(t, "[Failed to load image: cat.png]", FailedFilePart(KindImage, "cat.png").Text)
}

func TestTextHistory(t *testing.T) {
	prompt := Prompt{History: []Turn{
		{Role: RoleUser, Text: ""},
		{Role: RoleAssistant, Text: "answer"},
		{Role: RoleUser, Text: " \n"},
		{Role: RoleUser, Text: SharedFilesText([]string{"a.pdf", "b.png"})},
	}}

	assert.Equal(t, []Turn{
		{Role: RoleAssistant, Text: "answer"},
		{Role: RoleUser, Text: "Shared files: a.pdf, b.png"},
	}, prompt.TextHistory())
}
