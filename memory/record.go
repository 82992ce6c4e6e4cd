package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/statesync"
)

// DefaultSearchLimit applies when Search is called with a non-positive limit.
const DefaultSearchLimit = 5

// Record kinds stored in metadata under "kind".
const (
	KindProfile = "profile"
	KindContext = "context"
	KindStyle   = "style"
	KindMessage = "message"
)

// Record is one recallable memory derived from a session.
type Record struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// RecordsFromSession flattens the session state and conversation into
// records. IDs are stable per session so re-ingestion replaces entries.
func RecordsFromSession(sess *core.Session) []Record {
	if sess == nil {
		return nil
	}

	var records []Record
	add := func(kind, content string, md map[string]any) {
		if strings.TrimSpace(content) == "" {
			return
		}
		if md == nil {
			md = map[string]any{}
		}
		md["kind"] = kind
		records = append(records, Record{
			ID:        fmt.Sprintf("%s/%s/%d", sess.ID, kind, len(records)),
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Content:   content,
			Metadata:  md,
		})
	}

	state := statesync.ReadState(sess.StateSnapshot())
	if info := state.StudentInfo; info != nil {
		add(KindProfile, fmt.Sprintf("Student studying %s Board, Grade %s, %s. Question: %s",
			info.Board, info.Grade, info.Subject, info.Question), info.AsMap())
	}
	if summary, err := statesync.DecodeRetrievalSummary(state.RAGResults); err == nil {
		add(KindContext, "Textbook context: "+summary.Summary, map[string]any{"count": summary.Count})
	}
	if state.CurrentStyle != nil {
		add(KindStyle, "Preferred explanation style: "+*state.CurrentStyle, nil)
	}

	for _, ev := range sess.GetConversationHistory() {
		text := strings.TrimSpace(strings.Join(ev.Texts(), " "))
		if text == "" {
			continue
		}
		add(KindMessage, fmt.Sprintf("%s: %s", ev.Author, text), map[string]any{
			"event_id": ev.ID,
			"author":   ev.Author,
		})
	}

	return records
}

// Tokenize lower-cases s and splits it into unique words of at least two
// letters or digits.
func Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return lo.Uniq(lo.Filter(words, func(w string, _ int) bool { return len([]rune(w)) > 1 }))
}

// Score is the fraction of query words present in content. An empty query
// matches everything with score 1.
func Score(query, content string) float64 {
	q := Tokenize(query)
	if len(q) == 0 {
		return 1
	}
	words := lo.SliceToMap(Tokenize(content), func(w string) (string, struct{}) { return w, struct{}{} })
	hits := lo.CountBy(q, func(w string) bool {
		_, ok := words[w]
		return ok
	})
	return float64(hits) / float64(len(q))
}

// Rank scores records against query, drops misses and returns at most limit
// results ordered by score, then ID.
func Rank(records []Record, query string, limit int) []core.SearchResult {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	results := make([]core.SearchResult, 0, len(records))
	for _, r := range records {
		score := Score(query, r.Content)
		if score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			ID:        r.ID,
			SessionID: r.SessionID,
			Content:   r.Content,
			Score:     score,
			Metadata:  r.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
