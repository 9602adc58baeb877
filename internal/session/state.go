package session

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle has never run a crawl.
	StateIdle State = iota
	// StateStarting is emitting the started event.
	StateStarting
	// StateRunning is exploring.
	StateRunning
	// StateStopping was asked to stop and is tearing down.
	StateStopping
	// StateCompleted finished normally or was stopped.
	StateCompleted
	// StateFailed finished with an error.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a crawl is in progress.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}
