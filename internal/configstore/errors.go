package configstore

import "errors"

var (
	// ErrNotFound is returned when a (service, token) pair has no record.
	ErrNotFound = errors.New("configuration not found")

	// ErrTokenCollision is returned by Create when the token already exists
	// in the store, regardless of service.
	ErrTokenCollision = errors.New("token already in use")

	// ErrBadConfig is returned when a record fails validation on write, or
	// when the on-disk file itself contains an unresolvable ambiguity (e.g.
	// duplicate tokenless legacy lines for one service).
	ErrBadConfig = errors.New("invalid configuration")

	// ErrExhausted is returned by the token mint when no collision-free
	// token could be generated within the retry budget.
	ErrExhausted = errors.New("token space exhausted")
)
