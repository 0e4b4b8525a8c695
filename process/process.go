package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/signals"
)

// errAbandoned is recorded when a process ignored every stop signal.
var errAbandoned = errors.New("process did not exit after all stop signals")

type process struct {
	spec     *Spec
	notifier *stateNotifier

	// zlog is an annotated logger for the process.
	zlog *zap.Logger

	// waitc receives the result of Handle.Wait.
	waitc chan error

	// done is closed once the process is Stopped and its handle released.
	done chan struct{}

	// mu guards the fields below.
	mu         sync.Mutex
	state      State
	handle     Handle
	pid        int
	startTime  time.Time
	stopTime   time.Time
	exitStatus error
	launched   bool
}

func newProcess(spec *Spec, notifier *stateNotifier) *process {
	p := &process{
		spec:     spec,
		notifier: notifier,
		zlog:     zap.L().With(zap.String("prog", spec.Name)),
		waitc:    make(chan error, 1),
		done:     make(chan struct{}),
		state:    NotStarted,
	}
	notifier.setState(p, NotStarted)
	return p
}

func (p *process) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.notifier.setState(p, s)
}

// launch starts the command once its port is known to be free. On success
// the caller must run p.run to manage it until it exits.
func (p *process) launch(ctx context.Context, l Launcher, probe *ReadinessProbe) error {
	p.setState(Starting)
	var h Handle
	err := probe.checkFree(ctx, p.spec)
	if err == nil {
		h, err = l.Launch(ctx, p.spec)
	}
	if err != nil {
		p.zlog.Error("cannot start command", zap.Error(err))
		p.mu.Lock()
		p.exitStatus = err
		p.stopTime = time.Now()
		p.mu.Unlock()
		p.setState(Stopped)
		close(p.done)
		return &LaunchError{Name: p.spec.Name, Err: err}
	}
	p.mu.Lock()
	p.handle = h
	p.pid = h.Pid()
	p.startTime = time.Now()
	p.launched = true
	p.mu.Unlock()
	p.zlog.Info("start", zap.Int("pid", p.pid))
	go func() {
		p.waitc <- h.Wait()
	}()
	return nil
}

// markRunning moves a starting process to Running. It reports false if the
// process is no longer starting.
func (p *process) markRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Starting {
		return false
	}
	p.state = Running
	p.notifier.setState(p, Running)
	p.zlog.Info("running")
	return true
}

// run manages a launched process until it exits. Closing stop asks it to
// exit: the stop signals are sent in order, StopWait apart.
func (p *process) run(stop <-chan struct{}) {
	defer close(p.done)
	timer := time.NewTimer(time.Minute)
	timer.Stop()
	var sigs []os.Signal
	for {
		select {
		case exit := <-p.waitc:
			p.exited(exit)
			return

		case <-stop:
			// Only stop once.
			stop = nil
			p.setState(Stopping)
			sigs = p.signalNext(p.spec.stopSignals())
			timer.Reset(p.spec.stopWait())

		case <-timer.C:
			if len(sigs) == 0 {
				// We've already done all we can to kill it, so just throw it away.
				p.zlog.Error("killed process but it failed to exit")
				p.exited(errAbandoned)
				return
			}
			sigs = p.signalNext(sigs)
			timer.Reset(p.spec.stopWait())
		}
	}
}

// signalNext sends the first of sigs and returns the rest.
func (p *process) signalNext(sigs []os.Signal) []os.Signal {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	p.zlog.Info("sending stop signal", zap.String("signal", signals.Name(sigs[0])))
	if err := h.Signal(sigs[0]); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.zlog.Info("failed to send stop signal", zap.Error(err))
	}
	return sigs[1:]
}

// exited records the exit of the process and releases its handle.
func (p *process) exited(exit error) {
	p.mu.Lock()
	wasStopping := p.state == Stopping
	p.handle = nil
	p.exitStatus = exit
	p.stopTime = time.Now()
	p.state = Stopped
	p.notifier.setState(p, Stopped)
	p.mu.Unlock()
	switch {
	case wasStopping:
		p.zlog.Info("stopped", zap.Error(exit))
	default:
		p.zlog.Error("exited unexpectedly", zap.Int("status", exitCode(exit)), zap.Error(exit))
	}
}

func (p *process) info() ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := ProcessInfo{
		Name:      p.spec.Name,
		State:     p.state,
		Port:      p.spec.Port,
		StartedAt: p.startTime,
		StoppedAt: p.stopTime,
	}
	if p.handle != nil {
		info.Pid = p.pid
	}
	if p.state == Stopped && p.launched {
		info.ExitStatus = exitCode(p.exitStatus)
	}
	if p.exitStatus != nil {
		info.Error = p.exitStatus.Error()
	}
	return info
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitError *exec.ExitError
	if !errors.As(err, &exitError) {
		return -1
	}
	return exitError.ExitCode()
}

// exitError describes why a process that should be starting has gone.
func (p *process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitStatus == nil {
		return fmt.Errorf("%w with status 0", ErrExited)
	}
	return fmt.Errorf("%w: %v", ErrExited, p.exitStatus)
}
