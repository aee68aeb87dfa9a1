// Package redis provides a bookmark store backed by a Redis hash. All
// bookmarks of the tracked client live in a single hash keyed by
// subscription id, so recovery is one HGETALL.
package redis

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	bookmark "github.com/alexgridx/bookmark-store"
)

const localhost = "127.0.0.1:6379"

var _ bookmark.Store = (*Store)(nil)

// New returns a bookmark store that uses Redis for underlying storage
func New(ctx context.Context, trackedName string, opts ...Option) (*Store, error) {
	if trackedName == "" {
		return nil, fmt.Errorf("must provide tracked client name")
	}

	s := &Store{
		tracked: trackedName,
		recent:  map[string]string{},
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	// default client if none provided
	if s.client == nil {
		addr := os.Getenv("REDIS_URL")
		if addr == "" {
			addr = localhost
		}
		s.client = redis.NewClient(&redis.Options{Addr: addr})
	}

	// verify we can ping server
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	rows, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, &bookmark.RecoveryError{Cause: errors.Wrap(err, "redis: read bookmarks")}
	}
	for subID, b := range rows {
		if subID == "" || b == "" {
			continue
		}
		s.recent[subID] = b
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions in a Redis hash
type Store struct {
	tracked string
	client  *redis.Client

	mu     sync.RWMutex
	recent map[string]string
}

// MostRecent returns the bookmark to resume the subscription from, or the
// epoch when none is recorded.
func (s *Store) MostRecent(subID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.recent[subID]; ok {
		return b
	}
	return bookmark.Epoch
}

// IsDiscarded always reports false. Discarding in receipt order means an
// arriving message has never been recorded.
func (s *Store) IsDiscarded(bookmark.Message) bool {
	return false
}

// Log records an arriving message. The hash keeps one field per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The bookmark is
// written to Redis first and becomes the resume point only once the write
// has succeeded. Messages without a subscription id or bookmark are ignored.
func (s *Store) Discard(ctx context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	if err := s.client.HSet(ctx, s.key(), msg.SubID, msg.Bookmark).Err(); err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "redis: write bookmark")}
	}

	s.mu.Lock()
	s.recent[msg.SubID] = msg.Bookmark
	s.mu.Unlock()

	return nil
}

// Persisted does nothing. Replicated topics are not supported.
func (s *Store) Persisted(subID, bookmark string) {}

// SetServerVersion does nothing. Behavior does not vary by server version.
func (s *Store) SetServerVersion(version int) {}

// key generates the Redis key the tracked client's bookmarks are stored under.
func (s *Store) key() string {
	return fmt.Sprintf("%v:bookmark", s.tracked)
}
