package persistence

import (
	"errors"
	"fmt"
)

// ErrKind categorizes a persistence failure (spec §4.6). Every method on
// ApiCallStore, SessionStore, ProviderStore, and AgentStore returns an
// error that, when non-nil, can be classified via errors.As into a *Error
// carrying one of these kinds; the teacher's sentinel errors (ErrNotFound
// etc.) remain the underlying cause for backward-compatible errors.Is checks.
type ErrKind int

const (
	// ErrKindOther is the zero value, used when no finer classification applies.
	ErrKindOther ErrKind = iota
	ErrKindConnection
	ErrKindQuery
	ErrKindSerialization
	ErrKindNotFound
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindConnection:
		return "connection"
	case ErrKindQuery:
		return "query"
	case ErrKindSerialization:
		return "serialization"
	case ErrKindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Error is a typed persistence error carrying an ErrKind alongside the
// underlying cause, so callers can both log a stable category and
// errors.Is/errors.As/errors.Unwrap through to the original error.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("persistence: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given kind and operation name. A nil err
// returns nil, so call sites can write `return NewError(...)` unconditionally
// around the tail of a function.
func NewError(kind ErrKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err by unwrapping to *Error if possible, and otherwise
// maps the teacher's known sentinels to their kind.
func KindOf(err error) ErrKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrKindNotFound
	case errors.Is(err, ErrInvalidInput):
		return ErrKindQuery
	case errors.Is(err, ErrStoreClosed):
		return ErrKindConnection
	default:
		return ErrKindOther
	}
}
