package mysql

import "database/sql"

// Option is used to override defaults when creating a new MySQL bookmark
// store
type Option func(*Store)

// WithDB overrides the default database connection
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.conn = db
	}
}
