// Package firestore provides a bookmark store backed by a Cloud Firestore
// collection. One document per tracked subscription is kept current by
// setting it as each message is discarded. The document id is derived from
// the tracked client and subscription names, so a set always replaces the
// previous progress record.
package firestore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"

	bookmark "github.com/alexgridx/bookmark-store"
)

var _ bookmark.Store = (*Store)(nil)

type record struct {
	ClientName string `firestore:"client_name"`
	SubID      string `firestore:"sub_id"`
	Bookmark   string `firestore:"bookmark"`
}

// New returns a bookmark store that uses the given Firestore collection for
// underlying storage.
func New(ctx context.Context, client *firestore.Client, collection, trackedName string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("must provide client")
	}
	if collection == "" {
		return nil, fmt.Errorf("must provide collection name")
	}
	if trackedName == "" {
		return nil, fmt.Errorf("must provide tracked client name")
	}

	s := &Store{
		client:     client,
		collection: collection,
		tracked:    trackedName,
		recent:     map[string]string{},
	}

	if err := s.recover(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions in a Firestore
// collection
type Store struct {
	client     *firestore.Client
	collection string
	tracked    string

	mu     sync.RWMutex
	recent map[string]string
}

func (s *Store) bookmarks() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *Store) recover(ctx context.Context) error {
	iter := s.bookmarks().
		Where("client_name", "==", s.tracked).
		Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return &bookmark.RecoveryError{Cause: errors.Wrap(err, "firestore: read bookmarks")}
		}

		var rec record
		if err := doc.DataTo(&rec); err != nil {
			continue
		}
		if rec.SubID == "" || rec.Bookmark == "" {
			continue
		}
		s.recent[rec.SubID] = rec.Bookmark
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

// Log records an arriving message. The collection keeps one document per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The document is set
// first and the bookmark becomes the resume point only once the write has
// succeeded. Messages without a subscription id or bookmark are ignored.
func (s *Store) Discard(ctx context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	doc := s.bookmarks().Doc(fmt.Sprintf("%s@%s", s.tracked, msg.SubID))
	if _, err := doc.Set(ctx, record{
		ClientName: s.tracked,
		SubID:      msg.SubID,
		Bookmark:   msg.Bookmark,
	}); err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "firestore: write bookmark")}
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
