// Package sqlite implements core.MemoryStore on pure-Go SQLite. Session
// records are stored as rows; recall loads a user's rows and ranks them in
// process with memory.Rank.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/memory"
)

var _ core.MemoryStore = (*Store)(nil)

// Store is a SQLite backed memory store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT
	)`)
	if err != nil {
		return fmt.Errorf("create memories table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`)
	if err != nil {
		return fmt.Errorf("create memories index: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// AddSession implements core.MemoryStore. The session's previous rows are
// replaced in one transaction.
func (s *Store) AddSession(ctx context.Context, sess *core.Session) error {
	if sess == nil {
		return fmt.Errorf("nil session")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("delete session memories: %w", err)
	}

	for _, r := range memory.RecordsFromSession(sess) {
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories (id, session_id, user_id, content, metadata) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.SessionID, r.UserID, r.Content, string(md)); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}

	return tx.Commit()
}

// Search implements core.MemoryStore.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]core.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, content, metadata FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var records []memory.Record
	for rows.Next() {
		var (
			r  memory.Record
			md sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.UserID, &r.Content, &md); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if md.Valid && md.String != "" {
			if err := json.Unmarshal([]byte(md.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return memory.Rank(records, query, limit), nil
}
