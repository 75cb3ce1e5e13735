// Package server defines shared error values, the transport abstraction and
// utility helpers that are reused across session, hub and listener logic.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUsernameTaken is returned by Registry.Register when the name is in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidUsername is returned for empty usernames or ones containing whitespace.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrSessionClosed is returned when sending to a session that has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrServerClosed is returned by Serve after Shutdown has been called.
	ErrServerClosed = errors.New("chat server closed")
)

// Status texts sent by the server.
const (
	statusUsernameTaken   = "Username already taken. Please try again."
	statusInvalidUsername = "Invalid username"
	statusServerFull      = "Server is full"
	statusShuttingDown    = "Server is shutting down"
	errorRateLimited      = "Rate limit exceeded, message discarded"
	errorTooLarge         = "Message too large"
)

// BindError reports that no port in the configured range could be bound.
type BindError struct {
	Host      string
	FirstPort int
	LastPort  int
	Err       error
}

func (e *BindError) Error() string {
	if e.FirstPort == e.LastPort {
		return fmt.Sprintf("bind %s:%d: %v", e.Host, e.FirstPort, e.Err)
	}
	return fmt.Sprintf("bind %s: no free port in %d-%d: %v", e.Host, e.FirstPort, e.LastPort, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// Conn is a framed, bidirectional connection to one chat client. TCP and
// WebSocket transports both implement it. ReadHandshake and ReadFrame are
// only called from the goroutine that owns the connection; WriteFrame calls
// are serialized by the Session.
type Conn interface {
	// ReadHandshake returns the raw username sent right after connecting.
	ReadHandshake() (string, error)
	// ReadFrame returns the next undecoded frame.
	ReadFrame() ([]byte, error)
	// WriteFrame writes one encoded frame.
	WriteFrame(frame []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}

// validateUsername rejects names the client collaborator would never send.
func validateUsername(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return nil
}
