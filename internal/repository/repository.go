package repository

import (
	"context"
	"errors"

	"github.com/telhawk-systems/feedgen/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no stored event.
	ErrNotFound = errors.New("event not found")
)

// EventStore is the ordered, append-only event table.
type EventStore interface {
	// InsertIfAbsent stores e unless its URI already exists. On insert the
	// assigned storage id is written back to e. Duplicates are not errors.
	InsertIfAbsent(ctx context.Context, e *models.Event) (bool, error)

	// QueryRange returns up to limit events of collection strictly after the
	// given cursor, ascending by (time_us, id).
	QueryRange(ctx context.Context, collection string, after models.Cursor, limit int) ([]*models.Event, error)

	// QueryLatestBefore returns the newest events matching q, descending.
	QueryLatestBefore(ctx context.Context, q LatestQuery) ([]*models.Event, error)

	// QueryMostRecent returns the event with the highest ordering key.
	QueryMostRecent(ctx context.Context, collection string) (*models.Event, error)

	// Count returns the number of stored events; an empty collection counts all.
	Count(ctx context.Context, collection string) (int64, error)

	Ping(ctx context.Context) error

	// Describe identifies the backend for health output. Secrets are redacted.
	Describe() string

	Close()
}

// LatestQuery filters a descending page.
type LatestQuery struct {
	// Collection restricts results; empty matches all collections.
	Collection string

	// Before is an exclusive upper bound on time_us.
	Before *int64

	Limit int

	DID string

	// TextContains is a case-insensitive substring match on the post text.
	TextContains string
}
