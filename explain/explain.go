// Package explain turns retrieved textbook passages into style-specific
// explanation prompts.
//
// Four styles are offered to students, selectable by number or keyword:
//
//  1. example: practical, real-world examples
//  2. memory_technique: mnemonics, acronyms and memory aids
//  3. story: a narrative with characters
//  4. native_language: the student's preferred language
package explain

import (
	"fmt"
	"strings"
)

// Style is an explanation style.
type Style string

const (
	StyleExample         Style = "example"
	StyleMemoryTechnique Style = "memory_technique"
	StyleStory           Style = "story"
	StyleNativeLanguage  Style = "native_language"
)

// Styles lists the styles in menu order.
var Styles = []Style{StyleExample, StyleMemoryTechnique, StyleStory, StyleNativeLanguage}

// Title returns the menu label of the style.
func (s Style) Title() string {
	switch s {
	case StyleMemoryTechnique:
		return "With Memory Technique"
	case StyleStory:
		return "Using Story"
	case StyleNativeLanguage:
		return "In Native Language"
	default:
		return "With Examples"
	}
}

var languages = []string{
	"hindi", "tamil", "telugu", "bengali", "marathi", "gujarati",
	"kannada", "malayalam", "odia", "punjabi", "urdu",
}

// ParseStyle maps free text to a style. "1" to "4" select by menu position;
// otherwise keywords decide and anything unrecognised selects StyleExample.
// For StyleNativeLanguage the returned language is the one named in the
// input, or else the text after "in".
func ParseStyle(input string) (Style, string) {
	s := strings.ToLower(strings.TrimSpace(input))

	switch s {
	case "1":
		return StyleExample, ""
	case "2":
		return StyleMemoryTechnique, ""
	case "3":
		return StyleStory, ""
	case "4":
		return StyleNativeLanguage, ""
	}

	switch {
	case strings.Contains(s, "example"):
		return StyleExample, ""
	case strings.Contains(s, "memory"), strings.Contains(s, "mnemonic"):
		return StyleMemoryTechnique, ""
	case strings.Contains(s, "story"), strings.Contains(s, "narrative"):
		return StyleStory, ""
	case strings.Contains(s, "language"), mentionsLanguage(s):
		return StyleNativeLanguage, languageOf(s)
	default:
		return StyleExample, ""
	}
}

func mentionsLanguage(s string) bool {
	for _, l := range languages {
		if strings.Contains(s, l) {
			return true
		}
	}
	return false
}

// languageOf prefers a known language and otherwise takes the text after
// the word "in".
func languageOf(s string) string {
	for _, l := range languages {
		if strings.Contains(s, l) {
			return l
		}
	}
	words := strings.Fields(s)
	for i := len(words) - 2; i >= 0; i-- {
		if words[i] == "in" {
			return strings.Join(words[i+1:], " ")
		}
	}
	return ""
}

// Instruction returns the style instruction sent to the model.
func Instruction(style Style, language string) string {
	switch style {
	case StyleMemoryTechnique:
		return "Explain using memory techniques, mnemonic devices, acronyms, or memory aids. Create memorable associations."
	case StyleStory:
		return "Explain using an engaging story or narrative. Use characters and scenarios to illustrate the concept."
	case StyleNativeLanguage:
		if language == "" {
			language = "the student's native"
		}
		return fmt.Sprintf("Explain in %s language. Use culturally appropriate examples and natural language flow.", language)
	default:
		return "Explain with clear, practical examples. Use real-world scenarios and step-by-step examples."
	}
}

// Request is the input of BuildPrompt.
type Request struct {
	Style    Style
	Language string
	Question string
	Texts    []string
}

// Prompt is a rendered explanation prompt.
type Prompt struct {
	Style       Style
	Instruction string
	Context     string
	Text        string
}

// BuildPrompt combines the passages, the style instruction and the question.
// Passages are separated by blank lines.
func BuildPrompt(req Request) Prompt {
	context := strings.Join(req.Texts, "\n\n")
	instruction := Instruction(req.Style, req.Language)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = "General explanation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following educational content, provide an explanation. %s\n\n", instruction)
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	fmt.Fprintf(&b, "Content from textbook:\n%s\n\n", context)
	b.WriteString("Please provide a comprehensive explanation that:\n")
	b.WriteString("1. Is accurate and based on the provided content\n")
	b.WriteString("2. Follows the requested explanation style\n")
	b.WriteString("3. Is appropriate for the student's grade level\n")
	b.WriteString("4. Is clear, engaging, and educational\n")

	return Prompt{
		Style:       req.Style,
		Instruction: instruction,
		Context:     context,
		Text:        b.String(),
	}
}

// Menu renders the style choice shown to students.
func Menu() string {
	var b strings.Builder
	b.WriteString("How would you like this explained?\n")
	for i, s := range Styles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Title())
	}
	return b.String()
}
