package toolsession

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionTimeout reports a handshake or discovery that exceeded its bound.
	ErrSessionTimeout = errors.New("tool server did not respond in time")
	// ErrEmptyCommand reports a manager configured without a server command.
	ErrEmptyCommand = errors.New("tool server command is empty")
)

// ConnectError wraps any failure to bring a session up (open or discovery).
type ConnectError struct {
	ServerPath string
	Cause      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to tool server %s: %v", e.ServerPath, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// Timeout reports whether the failure was a bounded wait running out.
func (e *ConnectError) Timeout() bool { return errors.Is(e.Cause, ErrSessionTimeout) }
