// Package mysql provides a bookmark store backed by a MySQL table. One row
// per tracked subscription is kept current by upserting as each message is
// discarded.
//
// The table is expected to exist before the store is created:
//
//	CREATE TABLE bookmarks (
//		client_name VARCHAR(255) NOT NULL,
//		sub_id      VARCHAR(255) NOT NULL,
//		bookmark    VARCHAR(255) NOT NULL,
//		PRIMARY KEY (client_name, sub_id)
//	);
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	// this is the mysql package so it makes sense to be here
	_ "github.com/go-sql-driver/mysql"

	bookmark "github.com/alexgridx/bookmark-store"
)

const (
	selectBookmarks = `SELECT sub_id, bookmark FROM %s WHERE client_name = ?`

	upsertBookmark = `INSERT INTO %s (client_name, sub_id, bookmark)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE bookmark = ?`
)

var _ bookmark.Store = (*Store)(nil)

// New returns a bookmark store that uses MySQL for underlying storage.
// Using connectionStr makes it flexible to use specific db configs.
func New(ctx context.Context, trackedName, tableName, connectionStr string, opts ...Option) (*Store, error) {
	if trackedName == "" {
		return nil, fmt.Errorf("must provide tracked client name")
	}
	if tableName == "" {
		return nil, fmt.Errorf("must provide table name")
	}

	s := &Store{
		tracked: trackedName,
		table:   tableName,
		recent:  map[string]string{},
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	// default connection if none provided
	if s.conn == nil {
		conn, err := sql.Open("mysql", connectionStr)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}

	if err := s.recover(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Store tracks the progress of one client's subscriptions in a MySQL table
type Store struct {
	tracked string
	table   string
	conn    *sql.DB

	mu     sync.RWMutex
	recent map[string]string
}

func (s *Store) recover(ctx context.Context) error {
	query := fmt.Sprintf(selectBookmarks, s.table)

	rows, err := s.conn.QueryContext(ctx, query, s.tracked)
	if err != nil {
		return &bookmark.RecoveryError{Cause: errors.Wrap(err, "mysql: read bookmarks")}
	}
	defer rows.Close()

	for rows.Next() {
		var subID, b string
		if err := rows.Scan(&subID, &b); err != nil {
			return &bookmark.RecoveryError{Cause: errors.Wrap(err, "mysql: scan bookmark row")}
		}
		if subID == "" || b == "" {
			continue
		}
		s.recent[subID] = b
	}
	if err := rows.Err(); err != nil {
		return &bookmark.RecoveryError{Cause: errors.Wrap(err, "mysql: read bookmarks")}
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

// Log records an arriving message. The table keeps one row per
// subscription, so the sequence is constant.
func (s *Store) Log(bookmark.Message) string {
	return "1"
}

// Discard marks a message as seen by the application. The row is upserted
// first and the bookmark becomes the resume point only once the write has
// succeeded. Messages without a subscription id or bookmark are ignored.
func (s *Store) Discard(ctx context.Context, msg bookmark.Message) error {
	if msg.SubID == "" || msg.Bookmark == "" {
		return nil
	}

	stmt := fmt.Sprintf(upsertBookmark, s.table)
	if _, err := s.conn.ExecContext(ctx, stmt, s.tracked, msg.SubID, msg.Bookmark, msg.Bookmark); err != nil {
		return &bookmark.PersistError{SubID: msg.SubID, Bookmark: msg.Bookmark, Cause: errors.Wrap(err, "mysql: write bookmark")}
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

// Shutdown closes the underlying database connection.
func (s *Store) Shutdown() error {
	return s.conn.Close()
}
