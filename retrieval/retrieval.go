// Package retrieval defines textbook passage retrieval over named corpora.
//
// Corpora are named after the curriculum they cover, BOARD-grade-GRADE-SUBJECT
// (for example CBSE-grade-10-Mathematics). Backends live in sub-packages:
// retrieval/local ranks an in-process corpus, retrieval/pinecone queries a
// vector index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Defaults used when a Query leaves fields unset.
const (
	UnifiedCorpus            = "education_textbooks_unified"
	DefaultTopK              = 10
	DefaultDistanceThreshold = 0.6
)

// ErrCorpusNotFound is returned for unknown corpora.
var ErrCorpusNotFound = errors.New("corpus not found")

// Query describes one retrieval request.
type Query struct {
	Corpus            string
	Text              string
	TopK              int
	DistanceThreshold float64
}

// WithDefaults fills unset fields.
func (q Query) WithDefaults() Query {
	if q.Corpus == "" {
		q.Corpus = UnifiedCorpus
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.DistanceThreshold <= 0 {
		q.DistanceThreshold = DefaultDistanceThreshold
	}
	return q
}

// Result is a retrieved passage. Distance is in [0, 1]; lower is closer.
type Result struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Source   string         `json:"source,omitempty"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the outcome of a retrieval.
type Response struct {
	Corpus  string   `json:"corpus"`
	Results []Result `json:"results"`
	Status  string   `json:"status"`
}

// AsMap renders the response in the {results: [{text, ...}], status} shape
// stored in function responses.
func (r Response) AsMap() map[string]any {
	results := make([]any, len(r.Results))
	for i, res := range r.Results {
		m := map[string]any{
			"id":       res.ID,
			"text":     res.Text,
			"distance": res.Distance,
		}
		if res.Source != "" {
			m["source"] = res.Source
		}
		if len(res.Metadata) > 0 {
			m["metadata"] = res.Metadata
		}
		results[i] = m
	}
	return map[string]any{
		"corpus":  r.Corpus,
		"results": results,
		"status":  r.Status,
	}
}

// Texts returns the text of every result in rank order.
func (r Response) Texts() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Text
	}
	return out
}

// Retriever returns passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) (*Response, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, q Query) (*Response, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, q Query) (*Response, error) { return f(ctx, q) }

// NewResponse ranks results by distance, drops those above the threshold and
// keeps at most topK.
func NewResponse(corpus string, results []Result, topK int, threshold float64) *Response {
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Distance <= threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Distance < kept[j].Distance })
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return &Response{Corpus: corpus, Results: kept, Status: "success"}
}

var corpusPattern = regexp.MustCompile(`^([A-Za-z]+)-grade-(\d+)-([A-Za-z]+)$`)

// CorpusID names the corpus for a curriculum.
func CorpusID(board, grade, subject string) string {
	return fmt.Sprintf("%s-grade-%s-%s", strings.TrimSpace(board), strings.TrimSpace(grade), strings.TrimSpace(subject))
}

// ParseCorpusID splits a curriculum corpus name.
func ParseCorpusID(id string) (board, grade, subject string, err error) {
	m := corpusPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", "", fmt.Errorf("invalid corpus id %q", id)
	}
	return m[1], m[2], m[3], nil
}

// WithFallback queries the fallback corpus when the requested corpus does not
// exist.
func WithFallback(r Retriever, fallback string) Retriever {
	return RetrieverFunc(func(ctx context.Context, q Query) (*Response, error) {
		resp, err := r.Retrieve(ctx, q)
		if err == nil || !errors.Is(err, ErrCorpusNotFound) || q.Corpus == fallback {
			return resp, err
		}
		q.Corpus = fallback
		return r.Retrieve(ctx, q)
	})
}
