package bolt

import "go.etcd.io/bbolt"

// Option is used to override defaults when creating a new bbolt bookmark
// store
type Option func(*Store)

// WithDB overrides the default database. The caller remains responsible for
// closing a database it provided.
func WithDB(db *bbolt.DB) Option {
	return func(s *Store) {
		s.db = db
	}
}
