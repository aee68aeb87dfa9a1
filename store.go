// Package bookmark tracks the progress of resumable pub/sub subscriptions.
//
// A bookmark store records, for each subscription of a tracked client, the
// bookmark of the last message the application has discarded, so that after
// a reconnect or restart the subscription resumes exactly after that point
// instead of redelivering processed messages or skipping unprocessed ones.
// Stores for several persistence backends live in the store/ subpackages.
package bookmark

import "context"

// Epoch is the sentinel bookmark returned for a subscription with no
// recorded progress. It instructs the messaging layer to start from the
// earliest available message.
const Epoch = "0"

// Store interface used to persist subscription progress.
//
// Implementations recover existing bookmarks at construction time and are
// scoped to a single tracked client name. Discards for one subscription id
// must be issued strictly in receipt order; discards for distinct
// subscription ids may be concurrent.
type Store interface {
	// MostRecent returns the bookmark a (re-)subscription for subID should
	// resume from, or Epoch when none is recorded.
	MostRecent(subID string) string

	// IsDiscarded reports whether the message was already processed and must
	// not be handed to the application again.
	IsDiscarded(msg Message) bool

	// Log records an arriving message and returns its sequence token within
	// the store.
	Log(msg Message) string

	// Discard marks the message as fully processed, persisting its bookmark
	// before any in-memory state advances. Messages without a subscription id
	// or bookmark are ignored.
	Discard(ctx context.Context, msg Message) error

	// Persisted marks bookmarks up to the given one as replicated to every
	// replication destination for the subscription.
	Persisted(subID, bookmark string)

	// SetServerVersion tells the store the version of the connected server so
	// it can adjust version-dependent behavior.
	SetServerVersion(version int)
}

// noopStore tracks nothing; every subscription restarts from Epoch
type noopStore struct{}

func (n noopStore) MostRecent(string) string               { return Epoch }
func (n noopStore) IsDiscarded(Message) bool               { return false }
func (n noopStore) Log(Message) string                     { return "1" }
func (n noopStore) Discard(context.Context, Message) error { return nil }
func (n noopStore) Persisted(string, string)               {}
func (n noopStore) SetServerVersion(int)                   {}
