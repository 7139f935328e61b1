// Package database holds timeout conventions shared by the store implementations.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds a single read (range scan, page, count).
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single insert or checkpoint upsert.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMigrateTimeout bounds waiting for the migration lock.
	DefaultMigrateTimeout = 60 * time.Second
)

// QueryContext derives a context bounded by DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext derives a context bounded by DefaultWriteTimeout.
//
// The ingester calls this with a context detached from shutdown so that an
// insert that already started is allowed to finish.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
