// Package wsconn manages the lifecycle of one feed's transport connection:
// dialing, keepalive, failure classification, and reconnection with
// exponential backoff.
package wsconn

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
)

// Transport dials connections. The concrete implementation is chosen once in
// the composition root and injected, so the machine runs against a fake in
// tests.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one live connection to a feed endpoint.
type Conn interface {
	// ReadMessage blocks until the next message, a transport error, or Close
	// from another goroutine.
	ReadMessage() ([]byte, error)

	// WriteJSON sends one JSON command. Safe for concurrent use.
	WriteJSON(v any) error

	// Ping sends a keepalive probe.
	Ping() error

	Close() error
}

// TerminalError wraps failures that retrying cannot fix: the venue explicitly
// rejected the connection or the protocol versions disagree. The machine
// routes these straight to the Failed state.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return "terminal: " + e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// IsTerminal classifies a transport error. Close codes for protocol errors,
// unsupported data, and policy violations are venue rejections; everything
// else is transient and worth a reconnect.
func IsTerminal(err error) bool {
	var te *TerminalError
	if errors.As(err, &te) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseProtocolError,
		websocket.CloseUnsupportedData,
		websocket.ClosePolicyViolation,
	)
}
