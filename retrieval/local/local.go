// Package local implements retrieval.Retriever over an in-process corpus.
// Passages are ranked by fuzzy word matching against the query terms.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"github.com/hupe1980/edumesh/retrieval"
)

// Passage is one indexed textbook chunk.
type Passage struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	words []string
}

type corpusFile struct {
	Corpora map[string][]Passage `json:"corpora"`
}

// Store holds passages per corpus. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	corpora map[string][]Passage
}

var _ retrieval.Retriever = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{corpora: map[string][]Passage{}}
}

// Load reads a JSON corpus file of the form
//
//	{"corpora": {"CBSE-grade-10-Mathematics": [{"id": "...", "text": "...", "source": "..."}]}}
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes a corpus document from r.
func Read(r io.Reader) (*Store, error) {
	var doc corpusFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode corpus file: %w", err)
	}

	s := New()
	for corpus, passages := range doc.Corpora {
		s.Add(corpus, passages...)
	}

	return s, nil
}

// Add appends passages to a corpus, creating it when needed. Passages
// without an ID are numbered within the corpus.
func (s *Store) Add(corpus string, passages ...Passage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.corpora[corpus]
	for _, p := range passages {
		if p.ID == "" {
			p.ID = fmt.Sprintf("%s-%d", corpus, len(existing)+1)
		}
		p.words = tokenize(p.Text)
		existing = append(existing, p)
	}
	s.corpora[corpus] = existing
}

// Corpora returns the sorted corpus names.
func (s *Store) Corpora() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := lo.Keys(s.corpora)
	slices.Sort(names)

	return names
}

// Retrieve ranks the passages of q.Corpus against q.Text.
func (s *Store) Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q = q.WithDefaults()

	s.mu.RLock()
	passages, ok := s.corpora[q.Corpus]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", retrieval.ErrCorpusNotFound, q.Corpus)
	}

	terms := queryTerms(q.Text)

	results := lo.Map(passages, func(p Passage, _ int) retrieval.Result {
		return retrieval.Result{
			ID:       p.ID,
			Text:     p.Text,
			Source:   p.Source,
			Distance: 1 - score(terms, p.words),
			Metadata: p.Metadata,
		}
	})

	return retrieval.NewResponse(q.Corpus, results, q.TopK, q.DistanceThreshold), nil
}

// score is the mean closeness of each query term to its best matching word.
// A term matches a word when its letters occur in order within the word;
// closeness shrinks with the edit distance between them.
func score(terms, words []string) float64 {
	if len(terms) == 0 {
		return 0
	}

	var total float64
	for _, term := range terms {
		ranks := fuzzy.RankFindFold(term, words)
		if len(ranks) == 0 {
			continue
		}
		best := lo.MinBy(ranks, func(a, b fuzzy.Rank) bool { return a.Distance < b.Distance })
		total += float64(len(term)) / float64(len(term)+best.Distance)
	}

	return total / float64(len(terms))
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "what": {}, "why": {}, "how": {}, "does": {}, "are": {},
	"was": {}, "were": {}, "who": {}, "when": {}, "where": {}, "which": {}, "with": {},
	"for": {}, "from": {}, "this": {}, "that": {}, "can": {}, "you": {}, "explain": {},
	"question": {}, "please": {}, "tell": {}, "about": {}, "into": {},
}

func queryTerms(text string) []string {
	return lo.Uniq(lo.Filter(tokenize(text), func(w string, _ int) bool {
		_, stop := stopWords[w]
		return len([]rune(w)) >= 3 && !stop
	}))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
