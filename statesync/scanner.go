package statesync

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/edumesh/core"
)

// RetentionMode selects what the scanner keeps from a retrieval response.
type RetentionMode string

const (
	// RetainSummary keeps a bounded RetrievalSummary (default).
	RetainSummary RetentionMode = "summary"
	// RetainRaw keeps the retrieval response unchanged.
	RetainRaw RetentionMode = "raw"
)

// ParseRetentionMode validates a configured retention mode. Empty selects RetainSummary.
func ParseRetentionMode(s string) (RetentionMode, error) {
	switch RetentionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetainSummary:
		return RetainSummary, nil
	case RetainRaw:
		return RetainRaw, nil
	default:
		return "", fmt.Errorf("unknown retention mode %q", s)
	}
}

const (
	summaryResults      = 3
	summarySnippetRunes = 200
	summaryMaxRunes     = 500

	resultsKey = "results"
)

// ScanRetrieval walks events newest first and returns the state value for the
// most recent function response whose payload is a mapping with a "results"
// key. With RetainSummary a non-empty sequence of results is summarized;
// empty or malformed results and RetainRaw keep the response mapping as is.
func ScanRetrieval(events []core.Event, mode RetentionMode) (any, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		for _, fr := range events[i].GetFunctionResponses() {
			resp, ok := toMap(fr.Response)
			if !ok {
				continue
			}
			raw, ok := resp[resultsKey]
			if !ok {
				continue
			}
			if mode == RetainRaw {
				return resp, true
			}
			results, ok := toSlice(raw)
			if !ok || len(results) == 0 {
				return resp, true
			}
			return Summarize(results).AsMap(), true
		}
	}
	return nil, false
}

// Summarize joins the first 200 characters of the text of the first three
// results with single spaces, caps the summary at 500 characters and counts
// all results.
func Summarize(results []any) RetrievalSummary {
	n := min(len(results), summaryResults)
	snippets := make([]string, 0, n)
	for _, r := range results[:n] {
		snippets = append(snippets, truncateRunes(resultText(r), summarySnippetRunes))
	}
	return RetrievalSummary{
		Summary: truncateRunes(strings.Join(snippets, " "), summaryMaxRunes),
		Count:   len(results),
		Status:  "success",
	}
}

func resultText(r any) string {
	m, ok := toMap(r)
	if !ok {
		return ""
	}
	text, _ := m["text"].(string)
	return text
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
