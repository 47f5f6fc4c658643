package booking

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrNoAvailability        = errors.New("no availability")
	ErrConflictRetry         = errors.New("conflicting writer, retry")
	ErrAlreadyFinalized      = errors.New("reservation already finalized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
