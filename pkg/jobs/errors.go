package jobs

import (
	"errors"
	"fmt"
)

const (
	errorCodeDisposed    = "JOBS_DISPOSED"
	errorCodeCanceled    = "JOBS_CANCELED"
	errorCodeFaulted     = "JOBS_FAULTED"
	errorCodeNotFinished = "JOBS_NOT_FINISHED"
)

var (
	// ErrDisposed is returned by every submission made after Close.
	ErrDisposed = errors.New("job engine disposed")

	// ErrCanceled marks a job that finished without producing a value, either
	// because it was aborted before running or because its work observed
	// cancellation.
	ErrCanceled = errors.New("job canceled")

	// ErrFaulted marks a job whose work returned an error or panicked.
	ErrFaulted = errors.New("job faulted")

	// ErrNotFinished is returned when a result is read before the job is terminal.
	ErrNotFinished = errors.New("job not finished")
)

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with a jobs error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// PanicError carries a value recovered from a panicking work item.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newDisposedError(kind, name string) error {
	return WithErrorCode(fmt.Errorf("%w: %s %q is closed", ErrDisposed, kind, name), errorCodeDisposed)
}

func newCanceledError(cause error) error {
	switch {
	case cause == nil:
		cause = ErrCanceled
	case !errors.Is(cause, ErrCanceled):
		cause = fmt.Errorf("%w: %w", ErrCanceled, cause)
	}
	return WithErrorCode(cause, errorCodeCanceled)
}

func newFaultedError(cause error) error {
	return WithErrorCode(fmt.Errorf("%w: %w", ErrFaulted, cause), errorCodeFaulted)
}

var errNotFinished = WithErrorCode(ErrNotFinished, errorCodeNotFinished)

// ErrorCode resolves an error to its jobs error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrDisposed):
		return errorCodeDisposed
	case errors.Is(err, ErrCanceled):
		return errorCodeCanceled
	case errors.Is(err, ErrNotFinished):
		return errorCodeNotFinished
	default:
		return errorCodeFaulted
	}
}

// ExitCode maps job errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrCanceled):
		return 3
	case errors.Is(err, ErrDisposed):
		return 4
	case errors.Is(err, ErrNotFinished):
		return 2
	default:
		return 1
	}
}

// IsCanceled reports whether err describes a canceled job.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsFaulted reports whether err describes a faulted job.
func IsFaulted(err error) bool {
	return errors.Is(err, ErrFaulted)
}
