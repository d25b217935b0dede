// Package kv provides the device's non-volatile key/value blob store.
// Values are opaque byte slices; a Set either stores the whole value or
// nothing. The real implementation is backed by diskv on the local
// filesystem. The fake implementation keeps values in memory for tests.
package kv

import "errors"

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("kv: key not found")

// Store reads and writes persisted blobs.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(key string, value []byte) error
}
