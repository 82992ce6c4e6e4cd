package core

import "context"

// MemoryStore ingests finished sessions into long-term memory and recalls
// relevant snippets for a user. Implementations can back search with
// embeddings, keywords or any heuristic.
type MemoryStore interface {
	// AddSession ingests the session (state and conversation) for later recall.
	// Re-adding the same session replaces its previous entries.
	AddSession(ctx context.Context, sess *Session) error
	// Search returns up to limit memories of userID relevant to query.
	Search(ctx context.Context, userID, query string, limit int) ([]SearchResult, error)
}

// SearchResult represents a recalled memory item with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
