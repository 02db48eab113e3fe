package cpa

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cs-au-dk/reach/analysis/cfa"
)

var (
	// ErrIllegalState signals misuse of the reached set.
	ErrIllegalState = errors.New("illegal state")
	// ErrInvalidConfiguration signals option values that cannot be honoured.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvariantViolation signals a broken invariant of the engine or of a
	// collaborator. It is never recovered from.
	ErrInvariantViolation = errors.New("invariant violation")
)

// TransferFailure is raised by a transfer relation or precision adjustment
// that cannot handle an edge. The engine skips the successor and marks its
// result imprecise.
type TransferFailure struct {
	Edge   *cfa.Edge
	Reason string
}

func (f *TransferFailure) Error() string {
	if f.Edge == nil {
		return "transfer failure: " + f.Reason
	}
	return fmt.Sprintf("transfer failure at %v: %s", f.Edge, f.Reason)
}

// InvariantViolation wraps ErrInvariantViolation with a description.
func InvariantViolation(format string, args ...any) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}

// IllegalState wraps ErrIllegalState with a description.
func IllegalState(format string, args ...any) error {
	return errors.Wrapf(ErrIllegalState, format, args...)
}
