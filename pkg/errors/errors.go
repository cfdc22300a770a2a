package livepoll_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// Vote rejections. Both are conflicts so callers can match either the
// specific reason or the broader class.
var (
	ErrAlreadyVoted  = fmt.Errorf("%w: participant already voted", ErrConflict)
	ErrPollNotActive = fmt.Errorf("%w: poll is not active", ErrConflict)
)

// IsDomain reports whether err belongs to the taxonomy above, as opposed to
// a transport or backend failure.
func IsDomain(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrRateLimited)
}

// Invalid wraps a validation message so it matches ErrInvalidInput.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
