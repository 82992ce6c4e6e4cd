// Package sqlite implements core.SessionStore on pure-Go SQLite. Session
// state is kept as a JSON document per row and events are appended to a
// separate table in arrival order.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/edumesh/core"
)

var _ core.SessionStore = (*Store)(nil)

// Store is a SQLite backed session store.
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
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			state TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created INTEGER NOT NULL,
			updated INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Create stores a new empty session, replacing any session with the same id.
func (s *Store) Create(ctx context.Context, sessionID, userID string) (*core.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}

	sess := core.NewSession(sessionID)
	sess.UserID = userID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, user_id, state, metadata, created, updated) VALUES (?, ?, '{}', '{}', ?, ?)`,
		sess.ID, sess.UserID, sess.Created.UnixNano(), sess.Updated.UnixNano()); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return sess, nil
}

// Get loads the session with its full event history.
func (s *Store) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	var (
		sess             = core.NewSession(sessionID)
		state, metadata  string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, state, metadata, created, updated FROM sessions WHERE id = ?`, sessionID).
		Scan(&sess.UserID, &state, &metadata, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	sess.Created = time.Unix(0, created).UTC()
	sess.Updated = time.Unix(0, updated).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sess, nil
}

// AppendEvent adds an event to the session history.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := touch(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events (session_id, payload) VALUES (?, ?)`, sessionID, string(payload)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

// ApplyDelta merges a key/value delta into the session state.
func (s *Store) ApplyDelta(ctx context.Context, sessionID string, delta map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("query state: %w", err)
	}

	state := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	maps.Copy(state, delta)

	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state = ?, updated = ? WHERE id = ?`,
		string(b), time.Now().UTC().UnixNano(), sessionID); err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	return tx.Commit()
}

// Delete removes a session and its events. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return tx.Commit()
}

// List returns the ids of all sessions owned by userID.
func (s *Store) List(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func touch(ctx context.Context, tx *sql.Tx, sessionID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated = ? WHERE id = ?`, time.Now().UTC().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	return nil
}
