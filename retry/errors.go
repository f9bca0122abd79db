package retry

import (
	"errors"
	"fmt"

	"github.com/aponysus/restream/classify"
)

var (
	// ErrDailyQuotaExhausted matches (errors.Is) a call stopped by an exhausted daily quota.
	ErrDailyQuotaExhausted = errors.New("restream: daily quota exhausted")

	// ErrAttemptsExhausted matches (errors.Is) a call that used every attempt.
	ErrAttemptsExhausted = errors.New("restream: retry attempts exhausted")

	errNilStream = errors.New("restream: operation returned a nil stream")
)

// Error is the terminal failure of a wrapped call.
type Error struct {
	// Attempts is the number of attempts that ran.
	Attempts int
	// Verdict is the classification of the last failure.
	Verdict classify.Verdict
	// Err is the last attempt's error.
	Err error
	// Exhausted is set when the attempt ceiling stopped the call.
	Exhausted bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Verdict.Category == classify.CategoryDailyQuotaExhausted:
		return fmt.Sprintf("restream: daily quota exhausted: %v", e.Err)
	case e.Exhausted:
		return fmt.Sprintf("restream: failed after %d attempts: %v", e.Attempts, e.Err)
	default:
		return fmt.Sprintf("restream: non-retryable error on attempt %d: %v", e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDailyQuotaExhausted:
		return e.Verdict.Category == classify.CategoryDailyQuotaExhausted
	case ErrAttemptsExhausted:
		return e.Exhausted
	default:
		return false
	}
}

// PanicError is returned when a wrapped operation panics and the executor was
// built WithRecoverPanics(true).
type PanicError struct {
	Component string
	Attempt   int
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("restream: panic in %s (attempt %d): %v", e.Component, e.Attempt, e.Value)
}
