package process

import "fmt"

// State represents the state of a supervised process.
type State int

const (
	// NotStarted is the state of a process that has not been launched yet.
	NotStarted State = iota
	// Starting means the process has been launched but is not ready.
	Starting
	// Running means the process passed its readiness check.
	Running
	// Stopping means stop signals are being delivered.
	Stopping
	// Stopped means the process has exited, or failed to launch.
	Stopped
)

var stateNames = [...]string{
	NotStarted: "NotStarted",
	Starting:   "Starting",
	Running:    "Running",
	Stopping:   "Stopping",
	Stopped:    "Stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func isStopped(s State) bool {
	return s == Stopped
}

func isRunning(s State) bool {
	return s == Running
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown process state %q", text)
}
