package policies

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a read that failed after all retries.
	ErrFetch = errors.New("fetch failure")
	// ErrWrite marks a create, update or delete that failed after all retries.
	ErrWrite    = errors.New("write failure")
	ErrNotFound = errors.New("policy not found")
)

// FailureError wraps the last backend error of an operation. It matches
// ErrFetch or ErrWrite with errors.Is.
type FailureError struct {
	Kind error
	Op   string
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *FailureError) Is(target error) bool {
	return target == e.Kind
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

func fetchFailure(op string, err error) error {
	return &FailureError{Kind: ErrFetch, Op: op, Err: err}
}

func writeFailure(op string, err error) error {
	return &FailureError{Kind: ErrWrite, Op: op, Err: err}
}
