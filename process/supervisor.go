// Package process supervises the local service processes of the stack:
// launching them in order, checking that each becomes ready, and stopping
// them all on shutdown.
package process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSupervisorStopped is returned by WaitRunning when the supervisor
// stops before every process is running.
var ErrSupervisorStopped = errors.New("supervisor stopped")

// ProcessInfo is a snapshot of a supervised process.
type ProcessInfo struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Pid        int       `json:"pid,omitempty"`
	Port       int       `json:"port,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitStatus int       `json:"exit_status"`
	Error      string    `json:"error,omitempty"`
}

// Supervisor runs a fixed, ordered set of processes.
type Supervisor struct {
	launcher Launcher
	probe    *ReadinessProbe

	// notifier is used by processes to report state changes.
	notifier *stateNotifier

	// procs holds the processes in launch order. The slice itself
	// never changes after NewSupervisor.
	procs []*process
}

// NewSupervisor returns a supervisor for the given specs, which are
// launched in order by Run.
func NewSupervisor(specs []*Spec, launcher Launcher, probe *ReadinessProbe) (*Supervisor, error) {
	s := &Supervisor{
		launcher: launcher,
		probe:    probe,
		notifier: newStateNotifier(),
	}
	seen := make(map[string]bool)
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("process with empty name")
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate process name %q", spec.Name)
		}
		seen[spec.Name] = true
		s.procs = append(s.procs, newProcess(spec, s.notifier))
	}
	return s, nil
}

// Run launches each process in turn, waiting for it to be ready before
// launching the next, and then supervises them until ctx is cancelled.
// All launched processes are stopped before Run returns.
//
// If a process fails to launch or to become ready, the remaining ones are
// not launched, the started ones are stopped, and the error is returned:
// a *LaunchError or a *ReadinessError. Cancellation of ctx is a clean
// shutdown and yields a nil error.
//
// Run may only be called once.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.notifier.close()

	// stopCtx is the token each process goroutine watches for shutdown.
	stopCtx, stop := context.WithCancel(context.Background())
	defer stop()

	launched, err := s.start(ctx, stopCtx.Done())
	switch {
	case err == nil:
		zap.L().Info("all processes running")
		<-ctx.Done()
	case ctx.Err() != nil:
		err = nil
	default:
		zap.L().Error("aborting start", zap.Error(err))
	}
	zap.L().Info("stopping all processes")
	stop()
	s.shutdown(launched)
	return err
}

func (s *Supervisor) start(ctx context.Context, stop <-chan struct{}) ([]*process, error) {
	var launched []*process
	for _, p := range s.procs {
		if err := ctx.Err(); err != nil {
			return launched, err
		}
		if err := p.launch(ctx, s.launcher, s.probe); err != nil {
			return launched, err
		}
		launched = append(launched, p)
		go p.run(stop)

		if err := s.probe.wait(ctx, p.spec, p.done, p.zlog); err != nil {
			switch {
			case errors.Is(err, ErrExited):
				return launched, &LaunchError{Name: p.spec.Name, Err: p.exitError()}
			case errors.Is(err, ErrReadinessTimeout):
				return launched, &ReadinessError{Name: p.spec.Name, Port: p.spec.Port, Err: err}
			}
			return launched, err
		}
		if !p.markRunning() {
			return launched, &LaunchError{Name: p.spec.Name, Err: p.exitError()}
		}
	}
	return launched, nil
}

// shutdown waits for every launched process to reach Stopped. The stop
// token must already have been cancelled.
func (s *Supervisor) shutdown(launched []*process) {
	var g errgroup.Group
	for _, p := range launched {
		p := p
		g.Go(func() error {
			<-p.done
			p.mu.Lock()
			defer p.mu.Unlock()
			if errors.Is(p.exitStatus, errAbandoned) {
				return fmt.Errorf("%s (pid %d): %w", p.spec.Name, p.pid, errAbandoned)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		zap.L().Error("shutdown incomplete", zap.Error(err))
		return
	}
	zap.L().Info("all processes stopped")
}

// WaitRunning blocks until every process is Running. It returns
// ErrSupervisorStopped if Run returns first.
func (s *Supervisor) WaitRunning(ctx context.Context) error {
	select {
	case ok := <-s.notifier.waitFor(ctx.Done(), s.procs, isRunning):
		if !ok {
			return ErrSupervisorStopped
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Processes returns a snapshot of every process in launch order.
func (s *Supervisor) Processes() []ProcessInfo {
	infos := make([]ProcessInfo, 0, len(s.procs))
	for _, p := range s.procs {
		infos = append(infos, p.info())
	}
	return infos
}
