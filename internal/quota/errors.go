package quota

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is the parent of every caller-side mistake. Storage is
	// never touched when one of these is returned.
	ErrInvalidInput = errors.New("quota: invalid input")

	ErrEmptyUserID   = fmt.Errorf("%w: user id is required", ErrInvalidInput)
	ErrUnknownKind   = fmt.Errorf("%w: unknown feature kind", ErrInvalidInput)
	ErrInvalidLimits = fmt.Errorf("%w: limits must be non-negative", ErrInvalidInput)

	// ErrConflict is returned by a Store when a concurrent write invalidated
	// the transaction. The gate retries it.
	ErrConflict = errors.New("quota: write conflict")

	// ErrTransient matches every *TransientError.
	ErrTransient = errors.New("quota: transient store failure")
)

// TransientError reports that the counter store could not settle the
// transaction. It is never a permission; callers should retry shortly.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("quota: store transaction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}
