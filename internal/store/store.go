// Package store provides the namespaced key-value store used for persisted
// settings. Sessions are short-lived scoped transactions: open, read or write,
// close.
package store

import "errors"

// ErrReadOnly is returned when writing through a read-only session.
var ErrReadOnly = errors.New("store: session is read-only")

// ErrClosed is returned when using a session after Close.
var ErrClosed = errors.New("store: session is closed")

// Store opens sessions on a namespace.
type Store interface {
	// Open starts a session on namespace. Read-write sessions commit on Close.
	Open(namespace string, readOnly bool) (Session, error)

	// Close releases the underlying storage.
	Close() error
}

// Session reads and writes keys within one namespace.
type Session interface {
	// GetString returns the value for key, or def when the key is absent.
	GetString(key, def string) string

	// GetInt returns the value for key, or def when the key is absent or not an int.
	GetInt(key string, def int) int

	PutString(key, value string) error
	PutInt(key string, value int) error

	// Clear removes every key in the namespace.
	Clear() error

	// Close ends the session, committing writes for read-write sessions.
	Close() error

	// Abort ends the session and discards its writes.
	Abort() error
}
