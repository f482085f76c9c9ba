package sessionstore

import (
	"context"
	"time"
)

// Record is the persisted unit of a session.
type Record struct {
	ID        string
	Payload   []byte
	ExpiresAt time.Time
}

// Backend is the record store behind a Store. Implementations need not be
// safe for concurrent use: the Store calls them one at a time.
type Backend interface {
	// Insert creates a new record. It returns ErrKeyExists if the id is taken.
	Insert(ctx context.Context, rec Record) error
	// Get returns the record with the given id, or nil if there is none.
	Get(ctx context.Context, id string) (*Record, error)
	// Replace overwrites payload and expiry. It reports whether a record matched.
	Replace(ctx context.Context, rec Record) (bool, error)
	// Touch overwrites the expiry only. It reports whether a record matched.
	Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	// Delete removes a record. It reports whether a record matched.
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteExpired removes every record that expired strictly before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	// Close releases the backing connection.
	Close() error
}
