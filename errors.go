package sessionstore

import (
	"errors"
	"fmt"
)

// Failure categories. Every error returned by Store carries exactly one of
// them, so callers can branch with errors.Is.
var (
	// ErrBackend is returned when the backing store rejected or failed a statement.
	ErrBackend = errors.New("session backend failure")

	// ErrSerialization is returned when session state could not be encoded.
	ErrSerialization = errors.New("session serialization failure")

	// ErrCorrupt is returned when a stored payload could not be decoded.
	ErrCorrupt = errors.New("session payload corrupt")

	// ErrRecordMissing is returned when an update, ttl change or delete
	// expected exactly one record and found none.
	ErrRecordMissing = errors.New("session record missing")
)

var (
	// ErrKeyExists is returned by a Backend when an insert collides with an existing id.
	ErrKeyExists = errors.New("session key already exists")

	// ErrClosed is returned for operations on a closed Store.
	ErrClosed = errors.New("session store closed")

	// ErrSessionTooLarge is returned when the session data exceeds the configured MaxSessionBytes.
	ErrSessionTooLarge = errors.New("session data too large")

	// ErrInvalidSessionID is returned when the session ID format is invalid.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// OpError records the failed operation, its category and the underlying cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}
