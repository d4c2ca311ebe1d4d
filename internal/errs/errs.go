// Package errs implements the error-kind taxonomy the pipeline uses to pick
// a recovery policy without string-matching error messages: transient
// upstream failures are retried, protocol violations are logged and
// ignored, contract violations fall back to a safe default, resource
// exhaustion ends the call, and internal invariant breaks drop the
// offending unit of work while preserving the session.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed and therefore what the caller
// should do about it.
type Kind string

const (
	// Transient covers ASR/LLM/TTS transport errors, 5xx responses and
	// timeouts. Policy: reconnect/retry with bounded backoff; on
	// exhaustion, degrade gracefully.
	Transient Kind = "transient"
	// Protocol covers malformed PBX messages or missing ids on `media`.
	// Policy: log and ignore the single message.
	Protocol Kind = "protocol"
	// Contract covers an unknown lead status/disposition returned by the
	// LLM. Policy: fall back to a safe default.
	Contract Kind = "contract"
	// Resource covers a zero credit balance at `start`. Policy: emit
	// error{insufficient_credits} and close the session.
	Resource Kind = "resource"
	// Internal covers the egress worker or controller observing
	// inconsistent state. Policy: drop the item, preserve the session.
	Internal Kind = "internal"
)

// Error wraps an underlying error with a Kind and the stage that produced
// it, so callers can `errors.As` into it instead of matching message text.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and stage. Returns nil if err is nil.
func New(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Newf is New with a formatted message instead of a wrapped error.
func Newf(kind Kind, stage, format string, args ...any) error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Internal if err was not
// produced through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
