package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the way the execution pipeline needs to
// branch on them, independent of the underlying cause.
type ErrorKind string

const (
	ErrValidation        ErrorKind = "validation"
	ErrNotFound          ErrorKind = "not_found"
	ErrPolicyRejected    ErrorKind = "policy_rejected"
	ErrInsufficientCapital ErrorKind = "insufficient_capital"
	ErrTransient         ErrorKind = "transient"
	ErrOpportunityExpired ErrorKind = "opportunity_expired"
	ErrChainExecution    ErrorKind = "chain_execution"
	ErrInvariant         ErrorKind = "invariant"
)

// Error wraps a classified failure. Chain adapters and collaborators
// classify once; callers branch on Kind via errors.As, they never
// re-classify an already-kinded error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error, wrapping cause with %w semantics.
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the ErrorKind from err, defaulting to ErrChainExecution
// when err carries no classification (an unclassified failure surfacing
// this deep is itself a defect, but the pipeline must still make progress).
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ErrChainExecution
}

// Retriable reports whether the pipeline's bounded-backoff retry policy
// applies to this error kind (§4.1 retry semantics).
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrTransient:
		return true
	default:
		return false
	}
}

// Fatal reports whether this error kind should transition the owning
// strategy to Error status rather than just recording a failed execution.
func (k ErrorKind) Fatal() bool {
	return k == ErrInvariant
}
