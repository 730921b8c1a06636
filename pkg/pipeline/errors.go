package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrNilProvider is returned by initialize when a required port is nil.
	ErrNilProvider = errors.New("required port is nil")

	// ErrAlreadyStarted is returned by start if called twice.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrNotStarted names use of a pipeline before Start. PushFrame and
	// Stop do not return it: before Start, PushFrame drops the frame and
	// Stop does nothing.
	ErrNotStarted = errors.New("pipeline not started")

	// ErrEmptyTranscription marks a transcript that normalized to nothing.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrSampleGap names a non-contiguous first_sample_index. PushFrame
	// does not return it: it handles a gap with a session reset.
	ErrSampleGap = errors.New("capture reported a non-contiguous sample index")

	// ErrPortOpen names a call refused by an Open circuit breaker. The
	// pipeline's stages do not return it: a refused ASR call reports
	// ok=false and a refused MT call falls back to the source text.
	ErrPortOpen = errors.New("circuit breaker open")
)

// ConfigurationError is returned from initialize for invalid
// configuration; it is always fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// PortTransientError wraps a one-off port failure (timeout, transient
// network blip). The pipeline's stages do not inspect the error type: every
// port error, of this type or any other, counts as one breaker failure.
type PortTransientError struct {
	Port string
	Err error
}

func (e *PortTransientError) Error() string {
	return fmt.Sprintf("%s: transient error: %v", e.Port, e.Err)
}

func (e *PortTransientError) Unwrap() error { return e.Err }

// PortFatalError wraps a non-recoverable port failure (model missing, wrong
// shape). The pipeline's stages do not treat it differently from other
// errors: it counts as one breaker failure toward the 5-failures-in-10s
// threshold and does not open the breaker immediately.
type PortFatalError struct {
	Port string
	Err error
}

func (e *PortFatalError) Error() string {
	return fmt.Sprintf("%s: fatal error: %v", e.Port, e.Err)
}

func (e *PortFatalError) Unwrap() error { return e.Err }
