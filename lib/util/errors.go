// Package util provides common utilities for the telnet engine.
// This includes sentinel errors and wrapped error types shared by the
// protocol packages and the bridge server.
package util

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Sentinel errors for telnet session operations.
var (
	// ErrSessionClosed indicates the session has already been torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrMalformedBlock indicates a subnegotiation or ZMP block violated
	// its framing rules and was discarded.
	ErrMalformedBlock = errors.New("malformed block")

	// ErrLineTooLong indicates an input line exceeded the configured bound
	// and was truncated.
	ErrLineTooLong = errors.New("input line too long")

	// ErrChunkFull indicates a bounded buffer cannot take a write without
	// being flushed first.
	ErrChunkFull = errors.New("chunk full")

	// ErrCompressionFailed indicates the compression stream could not be
	// started or written; the session continues uncompressed.
	ErrCompressionFailed = errors.New("compression failed")

	// ErrRegistrySealed indicates a command was registered after the
	// registry was frozen at startup.
	ErrRegistrySealed = errors.New("registry sealed")

	// ErrDuplicateCommand indicates a command name is already registered.
	ErrDuplicateCommand = errors.New("duplicate command")

	// ErrInvalidCommand indicates a command registration without a name
	// or without a handler.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrSessionNotFound indicates no live session has the given ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateID indicates a session ID is already registered.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrTooManyConnections indicates the server or host connection limit
	// was reached.
	ErrTooManyConnections = errors.New("too many connections")

	// ErrHostDenied indicates the remote address is on the deny list.
	ErrHostDenied = errors.New("host denied")
)

// ProtocolError wraps an error with telnet option context.
// Use this when a negotiation or subnegotiation unit is rejected.
type ProtocolError struct {
	Option  string // Option name (e.g. "NAWS", "ZMP")
	Message string // Human-readable error message
	Err     error  // The underlying error (optional)
}

// NewProtocolError creates a new ProtocolError with context.
func NewProtocolError(option, message string, err error) *ProtocolError {
	return &ProtocolError{
		Option:  option,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Option, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Option, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ConnectionError wraps an error with connection context.
// Use this when an error occurs at the transport level.
type ConnectionError struct {
	RemoteAddr string // Remote address of the connection
	Operation  string // The operation being performed
	Err        error  // The underlying error
}

// NewConnectionError creates a new ConnectionError with context.
func NewConnectionError(remoteAddr, operation string, err error) *ConnectionError {
	return &ConnectionError{
		RemoteAddr: remoteAddr,
		Operation:  operation,
		Err:        err,
	}
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.RemoteAddr == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.RemoteAddr, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error must end the session.
// Only transport failures are fatal; malformed input, buffer exhaustion,
// negotiation conflicts and compression failures are recovered locally.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	if errors.Is(err, ErrSessionClosed) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return false
}

// IsTimeout returns true if the error is a network deadline expiry.
// Deadline expiries drive the reactor's poll tick and are not failures.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
