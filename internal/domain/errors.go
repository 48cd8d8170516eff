package domain

import "errors"

var (
	// ErrNotFound is returned by stores for unknown jobs.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks caller input that cannot start a job.
	ErrInvalidRequest = errors.New("invalid collection request")
	// ErrInvariantViolation means a result's hasData flag disagrees with its items.
	ErrInvariantViolation = errors.New("source result invariant violated")
)

// ErrNotConfigured means a required external-service credential is missing.
var ErrNotConfigured = errors.New("required credential is not configured")
