package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// DefaultStopWait is how long a process is given to exit after each stop
// signal when Spec.StopWait is zero.
const DefaultStopWait = 10 * time.Second

// Spec describes a process to supervise.
type Spec struct {
	// Name identifies the process in logs and status output.
	Name string

	// Command is the executable, looked up in PATH when it has no
	// path separator.
	Command string
	Args    []string

	// Dir is the working directory of the process. The supervisor's own
	// working directory is never changed.
	Dir string

	// Env holds KEY=VALUE entries added to the supervisor's environment.
	Env []string

	// Port is the port the process serves on. When it's non-zero, the
	// process is ready once something listens there; otherwise it is
	// considered ready after SettleDelay.
	Port int

	// StopSignals are sent in order until the process exits. KILL is
	// always sent last.
	StopSignals []os.Signal

	// StopWait is the time allowed between stop signals.
	StopWait time.Duration

	// ReadyTimeout bounds the readiness check.
	ReadyTimeout time.Duration

	// SettleDelay is used instead of the readiness check when Port is zero.
	SettleDelay time.Duration
}

// stopSignals returns the signals used to stop the process, making sure
// that KILL comes last. Without StopSignals the process gets TERM first.
func (s *Spec) stopSignals() []os.Signal {
	sigs := append([]os.Signal(nil), s.StopSignals...)
	if len(sigs) == 0 {
		sigs = append(sigs, syscall.SIGTERM)
	}
	if sigs[len(sigs)-1] != os.Kill {
		sigs = append(sigs, os.Kill)
	}
	return sigs
}

func (s *Spec) stopWait() time.Duration {
	if s.StopWait > 0 {
		return s.StopWait
	}
	return DefaultStopWait
}

// ErrPortInUse is wrapped by LaunchError when something already listens
// on the port of a process before it is launched.
var ErrPortInUse = errors.New("port already in use")

// ErrReadinessTimeout is wrapped by ReadinessError when the process never
// started listening on its port.
var ErrReadinessTimeout = errors.New("readiness timeout")

// ErrExited is wrapped by LaunchError when the process exits before it
// became ready.
var ErrExited = errors.New("process exited before becoming ready")

// LaunchError is returned when a process cannot be started, or exits
// while its readiness is being checked.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ReadinessError is returned when a launched process does not become
// ready in time.
type ReadinessError struct {
	Name string
	Port int
	Err  error
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("%s not ready on port %d: %v", e.Name, e.Port, e.Err)
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}
