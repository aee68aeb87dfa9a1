package bookmark

import "fmt"

// RecoveryError is returned when a store cannot read previously persisted
// bookmarks at construction time. The store is unusable; no partial state
// has been recovered.
type RecoveryError struct {
	Cause error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("error reading bookmark store: %v", e.Cause)
}

func (e *RecoveryError) Unwrap() error { return e.Cause }

// PersistError is returned when a discard cannot be written to the backing
// storage. The in-memory state is left untouched so a retried discard
// observes the same starting point.
type PersistError struct {
	SubID    string
	Bookmark string
	Cause    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("error updating bookmark store: subscription %q: %v", e.SubID, e.Cause)
}

func (e *PersistError) Unwrap() error { return e.Cause }
