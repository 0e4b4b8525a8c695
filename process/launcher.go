package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/stackup-dev/stackup/logger"
	"github.com/stackup-dev/stackup/signals"
)

// Handle controls a launched process.
type Handle interface {
	// Pid returns the operating system process id.
	Pid() int

	// Signal delivers sig to the process and its children.
	Signal(sig os.Signal) error

	// Wait blocks until the process exits and returns its exit status.
	// It is called exactly once.
	Wait() error
}

// Launcher starts processes.
type Launcher interface {
	Launch(ctx context.Context, spec *Spec) (Handle, error)
}

// ExecLauncher launches commands on the local machine. Each command runs in
// its own process group so that stop signals reach the whole tree.
type ExecLauncher struct {
	// Output receives the program output, each line prefixed with the
	// process name. Nil discards it.
	Output io.Writer

	// Logs optionally supplies extra logger parameters per process, for
	// example a log file.
	Logs func(spec *Spec) logger.Params

	// Loggers is called with each process logger once it's created.
	Loggers func(name string, l *logger.Logger)
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, spec *Spec) (Handle, error) {
	if spec.Dir != "" {
		if info, err := os.Stat(spec.Dir); err != nil {
			return nil, fmt.Errorf("invalid directory for process %q: %v", spec.Name, err)
		} else if !info.IsDir() {
			return nil, fmt.Errorf("invalid directory for process %q: %q is not a directory", spec.Name, spec.Dir)
		}
	}
	var params logger.Params
	if l.Logs != nil {
		params = l.Logs(spec)
	}
	params.Prefix = spec.Name + ": "
	params.Output = l.Output
	out := logger.New(params)

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Grandchildren may hold the output pipes open after the process
	// itself has gone.
	cmd.WaitDelay = spec.stopWait()
	setProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("cannot start command: %w", err)
	}
	if l.Loggers != nil {
		l.Loggers(spec.Name, out)
	}
	return &execHandle{
		cmd: cmd,
		out: out,
	}, nil
}

type execHandle struct {
	cmd *exec.Cmd
	out *logger.Logger
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Signal(sig os.Signal) error {
	return signals.SignalGroup(h.cmd.Process.Pid, sig)
}

func (h *execHandle) Wait() error {
	err := h.cmd.Wait()
	h.out.Close()
	return err
}
