package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure into the taxonomy spec §7 defines.
// A Job's ErrorKind column stores the string form for API visibility.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindPrecondition       Kind = "precondition"
	KindNotFound           Kind = "not_found"
	KindNotReady           Kind = "not_ready"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindSourceMissing      Kind = "source_missing"
	KindStabilizerTimeout  Kind = "stabilizer_timeout"
	KindEncoderFailed      Kind = "encoder_failed"
	KindInternal           Kind = "internal"
)

// Error is a pipeline failure tagged with its Kind, so the Worker Loop can
// persist both the human-readable message and the machine-readable
// classification onto the job row without re-deriving it.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, err: fmt.Errorf(format, args...)}
}

// classify extracts the Kind from err if it (or something it wraps) is a
// *Error, defaulting to KindInternal for anything escaping the pipeline
// uncategorized (spec §7 "Internal: anything else escaping the pipeline").
func classify(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
