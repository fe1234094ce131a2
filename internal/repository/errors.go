package repository

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure categories every store adapter reports.
// The set is closed and flat: callers branch on kind, never on wrapping depth.
type Kind uint8

const (
	// KindAccessFailure is an opaque backend failure (network, protocol, serialization).
	KindAccessFailure Kind = iota + 1
	// KindAlreadyExists means a create collided with an existing unique key.
	KindAlreadyExists
	// KindNotFound means an update or delete addressed a key absent from the store.
	KindNotFound
	// KindInvalid means an update or delete targeted a terminal or soft-deleted resource.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindAccessFailure:
		return "access failure"
	case KindAlreadyExists:
		return "already exists"
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid state"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the only error type allowed to cross an adapter boundary.
// Op names the failing operation ("redis.Update"), Key the addressed resource if any,
// and Err keeps the backend-native cause for diagnostics.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Key != "" {
		msg = fmt.Sprintf("resource %q: %s", e.Key, msg)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks. They carry no op, key or cause.
var (
	ErrAccessFailure = &Error{Kind: KindAccessFailure}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrInvalid       = &Error{Kind: KindInvalid}
)

// E builds a taxonomy error.
func E(kind Kind, op, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: cause}
}

// AccessFailure wraps err as KindAccessFailure keeping it as the cause.
// Errors that already belong to the taxonomy are returned unchanged.
func AccessFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Kind: KindAccessFailure, Op: op, Err: err}
}

// KindOf reports the kind of the first taxonomy error in err's chain, or 0.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}
