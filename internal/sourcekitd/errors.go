package sourcekitd

import (
	"errors"
	"fmt"
)

// Standard errors returned by the sourcekitd session layer.
var (
	// ErrConnectionInterrupted indicates the backend service died while a
	// request was in flight.
	ErrConnectionInterrupted = errors.New("connection to sourcekitd interrupted")

	// ErrRequestInvalid indicates the backend rejected the request as
	// malformed or missing a required parameter.
	ErrRequestInvalid = errors.New("sourcekitd request invalid")

	// ErrRequestFailed indicates the backend executed the request and
	// reported a semantic failure.
	ErrRequestFailed = errors.New("sourcekitd request failed")

	// ErrRequestCancelled indicates the request was cancelled by the caller.
	ErrRequestCancelled = errors.New("sourcekitd request cancelled")

	// ErrTimedOut indicates no reply arrived before the restart timeout, or
	// the backend self-cancelled a request the caller did not cancel.
	ErrTimedOut = errors.New("sourcekitd request timed out")

	// ErrSessionClosed indicates the session has been shut down.
	ErrSessionClosed = errors.New("sourcekitd session closed")

	// ErrResponseDisposed indicates a response value was read after the
	// owning response object was disposed.
	ErrResponseDisposed = errors.New("sourcekitd response read after dispose")
)

// RequestError is a backend-reported request failure. It wraps one of the
// sentinel error kinds and carries the backend's own description.
type RequestError struct {
	Kind        error
	Description string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Description)
	}
	return e.Kind.Error()
}

// Unwrap returns the sentinel error kind.
func (e *RequestError) Unwrap() error {
	return e.Kind
}

// MissingSymbolError indicates a required native entry point was absent when
// the library was loaded. It is fatal to session construction, not to an
// individual request.
type MissingSymbolError struct {
	Name string
}

// Error implements the error interface.
func (e *MissingSymbolError) Error() string {
	return fmt.Sprintf("missing required sourcekitd symbol: %s", e.Name)
}

// LibraryOpenError indicates the backend library could not be loaded.
type LibraryOpenError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LibraryOpenError) Error() string {
	return fmt.Sprintf("open sourcekitd library %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LibraryOpenError) Unwrap() error {
	return e.Err
}
