package model

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailed      = errors.New("fetch failed")
	ErrMutationRejected = errors.New("mutation rejected")
	ErrPermissionDenied = errors.New("permission denied: account not verified")
	ErrStaleCompletion  = errors.New("completion for a torn-down owner")
	ErrMutationPending  = errors.New("mutation already pending for target")
	ErrMalformedPayload = errors.New("malformed payload")
)

// MutationError describes a remote mutation that failed or returned a
// non-success status.
type MutationError struct {
	TargetID   string
	StatusCode int
	Err        error
}

func (e *MutationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mutation on %s rejected: %v", e.TargetID, e.Err)
	}
	return fmt.Sprintf("mutation on %s rejected with status %d", e.TargetID, e.StatusCode)
}

// Is matches ErrMutationRejected
func (e *MutationError) Is(target error) bool {
	return target == ErrMutationRejected
}

func (e *MutationError) Unwrap() error {
	return e.Err
}
