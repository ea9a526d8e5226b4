// Package reason defines the failure taxonomy for batch execution.
// Every rejected batch carries exactly one *Error naming the first rule it broke.
package reason

import (
	"errors"
	"fmt"
)

// Kind is the failure category.
type Kind int

const (
	KindUnknown Kind = iota
	KindStructural
	KindAuthorization
	KindStateGuard
	KindArithmetic
	KindMarginInvariant
	KindOracleNotReady
)

func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "STRUCTURAL_VALIDATION"
	case KindAuthorization:
		return "AUTHORIZATION_FAILURE"
	case KindStateGuard:
		return "STATE_GUARD_FAILURE"
	case KindArithmetic:
		return "ARITHMETIC_FAILURE"
	case KindMarginInvariant:
		return "MARGIN_INVARIANT_FAILURE"
	case KindOracleNotReady:
		return "ORACLE_NOT_READY"
	default:
		return "UNKNOWN"
	}
}

// Error is a classified failure. Two errors match under errors.Is when their codes match.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap attaches detail to a sentinel while keeping it matchable.
func Wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// KindOf returns the category of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
