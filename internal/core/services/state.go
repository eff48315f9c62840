package services

// SessionState is the explicit lifecycle of one peer session. Transitions
// only move forward; Disconnected, Closed and Failed are terminal.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAcquiringMedia
	StateSignaling
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateSignaling:
		return "signaling"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session can no longer make progress.
func (s SessionState) Terminal() bool {
	return s == StateDisconnected || s == StateClosed || s == StateFailed
}
