package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input or a violated invariant. Rejected
	// before any gateway or store call.
	ErrValidation = errors.New("validation error")

	// ErrTargeting marks an invalid recipient selection (neither or both
	// of device tokens and topic). It is a validation error.
	ErrTargeting = fmt.Errorf("%w: targeting", ErrValidation)

	// ErrNotFound marks a missing or expired record.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited marks dispatches rejected by the throughput limiter.
	ErrRateLimited = errors.New("rate limited")
)
