// ABOUTME: Connection state machine values for the broker transport

package transport

// State is the broker connection state. Transitions drive whether the
// delivery controller uses the push path or the synchronous fallback.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
