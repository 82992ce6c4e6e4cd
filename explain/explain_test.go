package explain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStyle(t *testing.T) {
	tests := []struct {
		input    string
		style    Style
		language string
	}{
		{"1", StyleExample, ""},
		{" 2 ", StyleMemoryTechnique, ""},
		{"3", StyleStory, ""},
		{"4", StyleNativeLanguage, ""},
		{"with example please", StyleExample, ""},
		{"Use a mnemonic", StyleMemoryTechnique, ""},
		{"memory technique", StyleMemoryTechnique, ""},
		{"tell it as a narrative", StyleStory, ""},
		{"explain in Tamil", StyleNativeLanguage, "tamil"},
		{"my language", StyleNativeLanguage, ""},
		{"hindi", StyleNativeLanguage, "hindi"},
		{"explain using telugu", StyleNativeLanguage, "telugu"},
		{"explain it in my language in hindi", StyleNativeLanguage, "hindi"},
		{"native language in sindhi", StyleNativeLanguage, "sindhi"},
		{"explaining language", StyleNativeLanguage, ""},
		{"whatever works", StyleExample, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			style, lang := ParseStyle(tt.input)
			assert.Equal(t, tt.style, style)
			assert.Equal(t, tt.language, lang)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Request{
		Style:    StyleStory,
		Question: "What is a fraction?",
		Texts:    []string{"A fraction is a part of a whole.", "It has a numerator."},
	})

	assert.Equal(t, "A fraction is a part of a whole.\n\nIt has a numerator.", p.Context)
	assert.Contains(t, p.Text, "Question: What is a fraction?")
	assert.Contains(t, p.Text, "engaging story")
	assert.Contains(t, p.Text, p.Context)
}

func TestBuildPrompt_Defaults(t *testing.T) {
	p := BuildPrompt(Request{Style: StyleNativeLanguage, Language: "marathi"})
	assert.Contains(t, p.Text, "Question: General explanation")
	assert.Contains(t, p.Instruction, "Explain in marathi language")
}

func TestMenu(t *testing.T) {
	menu := Menu()
	assert.True(t, strings.HasPrefix(menu, "How would you like"))
	assert.Contains(t, menu, "4. In Native Language")
}
