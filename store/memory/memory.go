// The memory store provides a bookmark store that can be used for testing
// and single-process applications. DO NOT USE this in a production
// application where progress must survive a restart.
package memory

import (
	"context"
	"sync"

	bookmark "github.com/alexgridx/bookmark-store"
)

var _ bookmark.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

type Store struct {
	sync.Map
}

// MostRecent returns the bookmark to resume the subscription from, or the
// epoch when none has been discarded yet.
func (s *Store) MostRecent(subID string) string {
	val, ok := s.Load(subID)
	if !ok {
		return bookmark.Epoch
	}
	return val.(string)
}

// IsDiscarded always reports false. Discarding in receipt order means an
// arriving message has never been recorded.
func (s *Store) IsDiscarded(bookmark.Message) bool {
	return false
}

// Log records an arriving message. The store keeps one bookmark per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. Messages without a
// subscription id or bookmark are ignored.
func (s *Store) Discard(_ context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}
	s.Store(msg.SubID, msg.Bookmark)
	return nil
}

// Persisted does nothing. Replicated topics are not supported.
func (s *Store) Persisted(subID, bookmark string) {}

// SetServerVersion does nothing. Behavior does not vary by server version.
func (s *Store) SetServerVersion(version int) {}
