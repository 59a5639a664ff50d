package studio

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when an audit or synthesis trigger arrives while a
// model request is already in flight. Requests are never queued.
var ErrBusy = errors.New("a model request is already in flight")

// ErrNoReference is returned when an audit is triggered before a
// reference image has been uploaded.
var ErrNoReference = errors.New("no reference image uploaded")

// ErrEmptyResult is the soft failure for a well-formed synthesis
// response that carries no inline image part. The session returns to
// idle with no result set; it is surfaced distinctly from transport
// failures.
var ErrEmptyResult = errors.New("synthesis response contained no image")

// CredentialError indicates the model service rejected the request for
// a missing, invalid or unbilled credential. It is not retried; the
// caller is expected to re-supply a credential.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential rejected: %s", e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportError covers any other request failure: network faults,
// server-side errors, malformed responses.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
