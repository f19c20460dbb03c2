package domain

// ConnState is the lifecycle state of one feed connection. The set is closed;
// every consumer switches exhaustively over it rather than comparing strings.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the wire/log name for the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. There is deliberately no Disconnected -> Connected jump, and
// Failed is only left via an explicit reset back to Connecting.
func (s ConnState) CanTransition(next ConnState) bool {
	switch s {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateConnected || next == StateReconnecting ||
			next == StateFailed || next == StateDisconnected
	case StateConnected:
		return next == StateReconnecting || next == StateFailed ||
			next == StateDisconnected
	case StateReconnecting:
		return next == StateConnecting || next == StateFailed ||
			next == StateDisconnected
	case StateFailed:
		return next == StateConnecting || next == StateDisconnected
	default:
		return false
	}
}

// ConnStatus is the per-feed state change surfaced to consumers. Attempt is
// the reconnect attempt count at the time of the transition (zero while
// healthy).
type ConnStatus struct {
	Feed    string    `json:"feed"`
	State   ConnState `json:"state"`
	Attempt int       `json:"attempt"`
}
