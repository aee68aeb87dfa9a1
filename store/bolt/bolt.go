// Package bolt provides a bookmark store backed by a local bbolt database
// file. Progress survives process restarts without any external
// infrastructure, which makes it a good fit for single-node applications.
package bolt

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	bookmark "github.com/alexgridx/bookmark-store"
)

var _ bookmark.Store = (*Store)(nil)

// New returns a bookmark store that uses a bbolt database file for
// underlying storage. Bookmarks live in one bucket per tracked client,
// keyed by subscription id.
func New(path, trackedName string, opts ...Option) (*Store, error) {
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

	// default database if none provided
	if s.db == nil {
		if path == "" {
			return nil, fmt.Errorf("must provide db path")
		}
		db, err := bbolt.Open(path, 0o600, nil)
		if err != nil {
			return nil, err
		}
		s.db = db
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions in a bbolt bucket
type Store struct {
	tracked string
	db      *bbolt.DB

	mu     sync.RWMutex
	recent map[string]string
}

func (s *Store) recover() error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.tracked))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) == 0 || len(v) == 0 {
				return nil
			}
			s.recent[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return &bookmark.RecoveryError{Cause: errors.Wrap(err, "bolt: read bookmarks")}
	}

	return nil
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

// Log records an arriving message. The bucket keeps one key per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The key is written in
// its own transaction and the bookmark becomes the resume point only once
// the transaction has committed. Messages without a subscription id or
// bookmark are ignored.
func (s *Store) Discard(_ context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(s.tracked))
		if err != nil {
			return err
		}
		return b.Put([]byte(msg.SubID), []byte(msg.Bookmark))
	})
	if err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "bolt: write bookmark")}
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

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
