package enginerr

import "fmt"

// Kind classifies engine failures so callers can tell a schema problem from a
// caller bug from a store hiccup.
type Kind string

const (
	KindSchemaUnavailable   Kind = "schema_unavailable"
	KindUnknownType         Kind = "unknown_type"
	KindUnknownPattern      Kind = "unknown_pattern"
	KindValidation          Kind = "validation"
	KindAnchorNotFound      Kind = "anchor_not_found"
	KindInvalidSubtype      Kind = "invalid_subtype"
	KindSchemaMismatch      Kind = "schema_mismatch"
	KindAnchorPurity        Kind = "anchor_purity_violation"
	KindCyclicPattern       Kind = "cyclic_pattern_dependency"
	KindStore               Kind = "store"
)

type Error struct {
	Kind      Kind
	Op        string
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Transient: kind == KindSchemaUnavailable}
}

// Transient marks a store failure worth retrying by the caller layer.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Err: err, Transient: true}
}

// Permanent marks a store failure that retrying cannot fix.
func Permanent(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// KindOf walks the error chain and reports the engine kind, or "" when the
// error did not originate in the engine.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsTransient reports whether the failure is worth retrying.
func IsTransient(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Transient
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
