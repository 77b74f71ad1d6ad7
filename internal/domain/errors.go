package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInput             Kind = "input_error"
	KindUpstream          Kind = "upstream_error"
	KindNoMatch           Kind = "no_match_found"
	KindInvalidMarketData Kind = "invalid_market_data"
	KindValidation        Kind = "validation_failure"
	KindBudgetExceeded    Kind = "budget_exceeded"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInput             = &Error{Kind: KindInput}
	ErrUpstream          = &Error{Kind: KindUpstream}
	ErrNoMatch           = &Error{Kind: KindNoMatch}
	ErrInvalidMarketData = &Error{Kind: KindInvalidMarketData}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrBudgetExceeded    = &Error{Kind: KindBudgetExceeded}
)

// Error is a classified failure attached to a single event or call.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can test against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func Errorf(kind Kind, reason, format string, args ...any) error {
	return &Error{Kind: kind, Reason: reason, Err: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the outermost classified kind, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the outermost classified error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
