package scylla

import "errors"

// ErrNotFound marks a clean miss. Callers separate absence from store
// failure with errors.Is rather than matching gocql internals.
var ErrNotFound = errors.New("record not found")
