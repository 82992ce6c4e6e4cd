package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/explain"
	"github.com/hupe1980/edumesh/retrieval"
	"github.com/hupe1980/edumesh/statesync"
)

// GenerateExplanationName is the name of the explanation tool.
const GenerateExplanationName = "generate_explanation"

type explanationArgs struct {
	ExplanationStyle string         `json:"explanation_style" jsonschema:"required,description=Requested style: example, memory technique, story or a language such as 'in Hindi'; 1-4 select from the menu"`
	Question         string         `json:"question,omitempty" jsonschema:"description=The original question"`
	RAGResults       map[string]any `json:"rag_results,omitempty" jsonschema:"description=Retrieval results; defaults to the results of this session"`
}

// NewExplanationTool returns the generate_explanation tool. It combines the
// retrieved passages with the requested style into an explanation prompt and
// records style_selected and current_style in the session state.
//
// Passages come from the rag_results argument, else the most recent retrieval
// response of the session, else the rag_results state key. Without passages
// the tool answers with status "error" instead of failing the call.
func NewExplanationTool() *FunctionTool {
	return NewTypedTool(
		GenerateExplanationName,
		"Prepare an explanation of the retrieved textbook content in the student's chosen style.",
		generateExplanation,
	)
}

func generateExplanation(tc *core.ToolContext, args explanationArgs) (any, error) {
	texts, count := passagesOf(args.RAGResults)
	if len(texts) == 0 {
		texts, count = passagesFromSession(tc)
	}

	if len(texts) == 0 {
		return map[string]any{
			"status":  "error",
			"message": "No RAG results available to generate explanation",
			"error":   "Empty results",
		}, nil
	}

	style, language := explain.ParseStyle(args.ExplanationStyle)

	question := args.Question
	if question == "" {
		if info, ok := studentInfo(tc); ok {
			question = info.Question
		}
	}

	prompt := explain.BuildPrompt(explain.Request{
		Style:    style,
		Language: language,
		Question: question,
		Texts:    texts,
	})

	tc.SetState(statesync.KeyStyleSelected, true)
	tc.SetState(statesync.KeyCurrentStyle, string(style))

	return map[string]any{
		"status":             "success",
		"explanation_style":  string(style),
		"explanation_prompt": prompt.Text,
		"rag_context":        prompt.Context,
		"results_count":      count,
		"message":            fmt.Sprintf("Explanation ready to be generated in '%s' style", style),
	}, nil
}

func passagesFromSession(tc *core.ToolContext) ([]string, int) {
	if raw, ok := statesync.ScanRetrieval(tc.GetSessionHistory(), statesync.RetainRaw); ok {
		if texts, count := passagesOf(raw); len(texts) > 0 {
			return texts, count
		}
	}

	v, ok := tc.GetState(statesync.KeyRAGResults)
	if !ok {
		return nil, 0
	}
	if texts, count := passagesOf(v); len(texts) > 0 {
		return texts, count
	}
	if s, err := statesync.DecodeRetrievalSummary(v); err == nil && strings.TrimSpace(s.Summary) != "" {
		return []string{s.Summary}, s.Count
	}
	return nil, 0
}

// passagesOf extracts the result texts of a retrieval response value.
func passagesOf(v any) ([]string, int) {
	switch t := v.(type) {
	case *retrieval.Response:
		if t == nil {
			return nil, 0
		}
		return t.Texts(), len(t.Results)
	case retrieval.Response:
		return t.Texts(), len(t.Results)
	case map[string]any:
		var results []any
		switch r := t["results"].(type) {
		case []any:
			results = r
		case []map[string]any:
			for _, m := range r {
				results = append(results, m)
			}
		}
		texts := make([]string, 0, len(results))
		for _, r := range results {
			if m, ok := r.(map[string]any); ok {
				if s, ok := m["text"].(string); ok {
					texts = append(texts, s)
				}
			}
		}
		return texts, len(results)
	default:
		return nil, 0
	}
}
