package store

import "errors"

// Store error types. A failed store call aborts only the single in-flight
// mutation; callers never retry increments automatically since an increment
// is not idempotent.
var (
	ErrStoreUnavailable = errors.New("score store unavailable")
)
