package connection

// State is the lifecycle state of the MQTT session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Interrupted
	Resubscribing
	Rejected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Interrupted:
		return "interrupted"
	case Resubscribing:
		return "resubscribing"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Rejected
}
