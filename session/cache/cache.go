// Package cache wraps a core.SessionStore with a TTL read-through cache.
// Writes go to the backing store first and then drop the cached copy, so a
// cached session is never newer than the store.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hupe1980/edumesh/core"
)

var _ core.SessionStore = (*Store)(nil)

// Options configures the cache.
type Options struct {
	// TTL is how long a loaded session is served from memory.
	TTL time.Duration
	// CleanupInterval controls how often expired entries are purged.
	CleanupInterval time.Duration
}

// Store is a caching decorator around another SessionStore.
type Store struct {
	next  core.SessionStore
	cache *gocache.Cache
}

// New wraps next with a read-through cache.
func New(next core.SessionStore, optFns ...func(o *Options)) *Store {
	opts := Options{TTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{next: next, cache: gocache.New(opts.TTL, opts.CleanupInterval)}
}

// Create implements core.SessionStore.
func (s *Store) Create(ctx context.Context, sessionID, userID string) (*core.Session, error) {
	sess, err := s.next.Create(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(sessionID, sess.Clone(), gocache.DefaultExpiration)
	return sess, nil
}

// Get serves a clone of the cached session or loads it from the backing store.
func (s *Store) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	if x, found := s.cache.Get(sessionID); found {
		return x.(*core.Session).Clone(), nil
	}

	sess, err := s.next.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(sessionID, sess.Clone(), gocache.DefaultExpiration)
	return sess, nil
}

// AppendEvent implements core.SessionStore.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, ev core.Event) error {
	defer s.cache.Delete(sessionID)
	return s.next.AppendEvent(ctx, sessionID, ev)
}

// ApplyDelta implements core.SessionStore.
func (s *Store) ApplyDelta(ctx context.Context, sessionID string, delta map[string]any) error {
	defer s.cache.Delete(sessionID)
	return s.next.ApplyDelta(ctx, sessionID, delta)
}

// Invalidate drops a cached session.
func (s *Store) Invalidate(sessionID string) { s.cache.Delete(sessionID) }

// Len reports the number of cached sessions.
func (s *Store) Len() int { return s.cache.ItemCount() }
