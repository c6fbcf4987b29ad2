package device

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Commander methods
var (
	// ErrAlreadyConnected is returned by Connect when a session is open or closing
	ErrAlreadyConnected = errors.New("device already connected")
	// ErrConnectionInProgress is returned by Connect while another connect is pending
	ErrConnectionInProgress = errors.New("connection already in progress")
	// ErrConnectCancelled is delivered on the connect channel when HangUp
	// aborts a pending connect
	ErrConnectCancelled = errors.New("connect cancelled")
	// ErrInvalidState is returned when a command does not apply to the current state
	ErrInvalidState = errors.New("invalid state for command")
	// ErrNotConnected is returned by commands that need an open session
	ErrNotConnected = errors.New("device not connected")
	// ErrStopped is returned once the event loop has exited
	ErrStopped = errors.New("commander stopped")
)

// TransportError is an I/O failure on the device link. It always ends the
// session.
type TransportError struct {
	Op       string // "open", "read" or "write"
	Endpoint string
	Err      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Endpoint, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
