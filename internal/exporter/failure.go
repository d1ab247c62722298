package exporter

import (
	"errors"
	"fmt"

	"ocrr/internal"
)

var (
	ErrNoItems           = errors.New("no items to export")
	ErrPreflightInvalid  = errors.New("preflight validation failed")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrCorrectionFailed  = errors.New("correction agent failed")
	ErrAttemptsExhausted = errors.New("maximum number of attempts reached")
)

// Failure is the terminal error of a submission. It always carries the
// attempt history and the last items the coordinator worked with.
type Failure struct {
	Kind    error
	Err     error
	History []internal.AttemptHistoryEntry
	Items   []internal.ResolvedItem
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Kind.Error()
	}
	if errors.Is(f.Err, f.Kind) {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// AsFailure extracts the Failure wrapped in err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
