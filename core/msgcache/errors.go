package msgcache

import "errors"

var (
	// ErrNotFound is returned when no cache entry exists for a hash.
	ErrNotFound = errors.New("msgcache: message not found")
)
