package mcbp

import (
	"errors"
	"fmt"
)

// Error types for binary protocol handling.
// They tell the owner of a connection whether the stream is still usable.

// ProtocolError reports a response the client cannot interpret: bad magic,
// lengths that disagree with the header, truncated records or an opcode with
// no known response shape.
//
// Connection handling: CLOSE, the position in the stream is no longer trusted.
type ProtocolError struct {
	Message string
	Err     error // Underlying error, if any
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol error: " + e.Message + ": " + e.Err.Error()
	}
	return "protocol error: " + e.Message
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - the stream framing is corrupted
func (e *ProtocolError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps I/O errors from connection operations.
//
// Connection handling: the connection is already broken, CLOSE it.
type ConnectionError struct {
	Op  string // Operation that failed (read, write, dial)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true - connection errors mean connection is broken
func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection they occurred on must be closed.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err requires closing the connection.
// Unknown error types are treated as fatal for the connection.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}
