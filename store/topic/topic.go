// Package topic implements a bookmark store that persists subscription
// progress to a state-of-the-world topic on the message broker itself. One
// record per tracked subscription is kept current by publishing an update as
// each message is discarded.
//
// Prerequisites. The store topic must be keyed on the clientName and subId
// fields of its records so that each publish replaces the previous record
// for the pair, and the topics under the tracked subscriptions must be
// recorded in the broker's transaction log. The client handed to New must be
// connected to the instance that holds the store topic, and it must not be
// the client that places the tracked subscriptions.
//
// Restrictions. Messages must be discarded precisely in the order they are
// received, per subscription. The store does not support live (unpersisted)
// subscription modes and should not be used for replicated topics. A publish
// the broker accepts at the transport level but rejects later, for example
// for missing entitlements, is not reported; Discard only fails when the
// publish itself does.
package topic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	bookmark "github.com/alexgridx/bookmark-store"
)

// Client interface is used for interacting with the state-of-the-world topic
type Client interface {
	// Query returns the current record of every topic entry matching the
	// filter expression.
	Query(ctx context.Context, topic, filter string) ([][]byte, error)

	// Publish sends a record to the topic, replacing the entry with the same
	// key.
	Publish(ctx context.Context, topic string, data []byte) error
}

// record is the wire form of one subscription's progress. The field names
// are shared with bookmark store implementations for other platforms, so a
// store written by one can be recovered by another.
type record struct {
	ClientName string `json:"clientName"`
	SubID      string `json:"subId"`
	Bookmark   string `json:"bookmark"`
}

var _ bookmark.Store = (*Store)(nil)

// New returns a bookmark store backed by the given state-of-the-world topic,
// recovered with the progress previously persisted for trackedName. Records
// of other clients sharing the topic are left untouched.
func New(ctx context.Context, client Client, topic, trackedName string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("must provide client")
	}
	if topic == "" {
		return nil, fmt.Errorf("must provide topic")
	}
	if trackedName == "" {
		return nil, fmt.Errorf("must provide tracked client name")
	}

	s := &Store{
		client:  client,
		topic:   topic,
		tracked: trackedName,
		recent:  map[string]string{},
	}

	rows, err := client.Query(ctx, topic, fmt.Sprintf("/clientName = '%s'", trackedName))
	if err != nil {
		return nil, &bookmark.RecoveryError{Cause: err}
	}

	for _, row := range rows {
		var rec record
		if err := json.Unmarshal(row, &rec); err != nil {
			continue
		}
		if rec.SubID == "" || rec.Bookmark == "" {
			continue
		}
		// the last row wins when a subscription appears more than once
		s.recent[rec.SubID] = rec.Bookmark
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions on a
// state-of-the-world topic
type Store struct {
	client  Client
	topic   string
	tracked string

	mu     sync.RWMutex
	recent map[string]string
}

// MostRecent returns the bookmark that ought to be used for (re-)subscribing
// subID. Subscriptions without recorded progress resume from the epoch.
func (s *Store) MostRecent(subID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.recent[subID]; ok {
		return b
	}
	return bookmark.Epoch
}

// IsDiscarded reports whether the application has already seen the message.
// Messages are discarded in receipt order, so an arriving message is never
// one the store has recorded.
func (s *Store) IsDiscarded(bookmark.Message) bool {
	return false
}

// Log records an arriving message. The topic holds at most one record per
// subscription of the tracked client, so the sequence within the store is
// constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The new bookmark is
// published to the store topic first and becomes the resume point only once
// the publish has succeeded. Messages without a subscription id or bookmark
// are ignored.
func (s *Store) Discard(ctx context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	data, err := json.Marshal(record{
		ClientName: s.tracked,
		SubID:      msg.SubID,
		Bookmark:   msg.Bookmark,
	})
	if err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: err}
	}

	if err := s.client.Publish(ctx, s.topic, data); err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: err}
	}

	s.mu.Lock()
	s.recent[msg.SubID] = msg.Bookmark
	s.mu.Unlock()

	return nil
}

// Persisted marks bookmarks up to the given one as replicated to every
// replication destination for the subscription. Replicated topics are not
// supported, so this does nothing.
func (s *Store) Persisted(subID, bookmark string) {}

// SetServerVersion tells the store the version of the connected server.
// Behavior does not vary by server version.
func (s *Store) SetServerVersion(version int) {}
