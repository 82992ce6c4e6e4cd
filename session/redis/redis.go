// Package redis implements core.SessionStore on Redis. Each session is a hash
// holding the owner, timestamps and a JSON encoded state document; its events
// are kept in a list in append order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/edumesh/core"
)

var _ core.SessionStore = (*Store)(nil)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "edumesh"

// Options configures a Store.
type Options struct {
	// Prefix namespaces keys. Defaults to DefaultPrefix.
	Prefix string
	// TTL expires idle sessions. Zero keeps sessions forever.
	TTL time.Duration
	// MaxRetries bounds optimistic transaction retries in ApplyDelta.
	MaxRetries int
}

// Store is a Redis backed session store.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

// New wraps an existing client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: DefaultPrefix, MaxRetries: 5}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// Dial parses a redis:// or rediss:// URL, connects and pings the server.
func Dial(ctx context.Context, url string, optFns ...func(o *Options)) (*Store, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, optFns...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) sessionKey(id string) string { return s.opts.Prefix + ":session:" + id }
func (s *Store) eventsKey(id string) string  { return s.opts.Prefix + ":session:" + id + ":events" }
func (s *Store) userKey(id string) string    { return s.opts.Prefix + ":user:" + id + ":sessions" }

// Create stores a new empty session, replacing any session with the same id.
func (s *Store) Create(ctx context.Context, sessionID, userID string) (*core.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id must not be empty")
	}

	sess := core.NewSession(sessionID)
	sess.UserID = userID

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID), s.eventsKey(sessionID))
		pipe.HSet(ctx, s.sessionKey(sessionID),
			"user_id", userID,
			"state", "{}",
			"metadata", "{}",
			"created", sess.Created.UnixNano(),
			"updated", sess.Updated.UnixNano(),
		)
		pipe.SAdd(ctx, s.userKey(userID), sessionID)
		s.expire(ctx, pipe, sessionID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return sess, nil
}

// Get loads the session with its full event history.
func (s *Store) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	var (
		fields *redis.MapStringStringCmd
		events *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, s.sessionKey(sessionID))
		events = pipe.LRange(ctx, s.eventsKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	h := fields.Val()
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}

	sess := core.NewSession(sessionID)
	sess.UserID = h["user_id"]
	if err := json.Unmarshal([]byte(h["state"]), &sess.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal([]byte(h["metadata"]), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	sess.Created = parseNanos(h["created"])
	sess.Updated = parseNanos(h["updated"])

	for _, payload := range events.Val() {
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, nil
}

// AppendEvent adds an event to the session history.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	return s.update(ctx, sessionID, func(pipe redis.Pipeliner, _ map[string]string) error {
		pipe.RPush(ctx, s.eventsKey(sessionID), payload)
		return nil
	})
}

// ApplyDelta merges a key/value delta into the session state.
func (s *Store) ApplyDelta(ctx context.Context, sessionID string, delta map[string]any) error {
	return s.update(ctx, sessionID, func(pipe redis.Pipeliner, h map[string]string) error {
		state := map[string]any{}
		if err := json.Unmarshal([]byte(h["state"]), &state); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}
		maps.Copy(state, delta)

		b, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		pipe.HSet(ctx, s.sessionKey(sessionID), "state", string(b))
		return nil
	})
}

// update runs fn inside an optimistic transaction watching the session hash.
func (s *Store) update(ctx context.Context, sessionID string, fn func(pipe redis.Pipeliner, h map[string]string) error) error {
	key := s.sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		h, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(h) == 0 {
			return fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := fn(pipe, h); err != nil {
				return err
			}
			pipe.HSet(ctx, key, "updated", time.Now().UTC().UnixNano())
			s.expire(ctx, pipe, sessionID)
			return nil
		})
		return err
	}

	for range max(s.opts.MaxRetries, 1) {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("update session %s: too many concurrent writers", sessionID)
}

func (s *Store) expire(ctx context.Context, pipe redis.Pipeliner, sessionID string) {
	if s.opts.TTL <= 0 {
		return
	}
	pipe.Expire(ctx, s.sessionKey(sessionID), s.opts.TTL)
	pipe.Expire(ctx, s.eventsKey(sessionID), s.opts.TTL)
}

// Delete removes a session and its events. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	userID, err := s.client.HGet(ctx, s.sessionKey(sessionID), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session owner: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionID), s.eventsKey(sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// List returns the ids of all sessions owned by userID. Expired sessions are
// pruned from the index as they are found.
func (s *Store) List(ctx context.Context, userID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	ids := []string{}
	for _, id := range members {
		n, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session %s: %w", id, err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.userKey(userID), id)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids, nil
}

func parseNanos(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
