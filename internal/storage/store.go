package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
}

// SessionStore persists committed therapy sessions and their daily rollups.
// Dates are "2006-01-02" strings in the station's local time.
type SessionStore interface {
	// CommitSession stores rec and folds it into the daily aggregate. A
	// record whose ID already exists is left untouched and created is false.
	CommitSession(ctx context.Context, rec SessionRecord) (created bool, err error)
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// ListSessions returns a user's records for one day, newest first.
	ListSessions(ctx context.Context, userID, date string) ([]SessionRecord, error)
	GetDailyAggregate(ctx context.Context, userID, date string) (*DailyAggregate, error)
	// ListDailyAggregates returns up to limit days for a user, newest first.
	// A limit of 0 returns every day.
	ListDailyAggregates(ctx context.Context, userID string, limit int) ([]DailyAggregate, error)
	// DeleteSessionsBefore removes records and aggregates dated before
	// cutoffDate and returns the number of records removed.
	DeleteSessionsBefore(ctx context.Context, cutoffDate string) (int, error)
}
