//go:build !windows

// Package signals maps signal names used in settings files to OS signals
// and delivers them to supervised process groups.
package signals

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

var byName = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"TERM": syscall.SIGTERM,
}

// ToSignal converts a signal name such as "TERM", "SIGTERM" or "term" to a
// signal. Only signals that make sense for stopping a service are known.
func ToSignal(name string) (os.Signal, error) {
	sig, ok := byName[strings.TrimPrefix(strings.ToUpper(name), "SIG")]
	if !ok {
		return syscall.SIGTERM, fmt.Errorf("invalid signal: %s", name)
	}
	return sig, nil
}

// Name returns the short settings-file name of sig, such as "TERM".
func Name(sig os.Signal) string {
	for name, s := range byName {
		if s == sig {
			return name
		}
	}
	return sig.String()
}

// SignalGroup delivers sig to the process group led by pid. When the group
// is already gone, the leader alone is signalled, which reports
// os.ErrProcessDone once it has exited.
func SignalGroup(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}
	err := syscall.Kill(-pid, s)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, s)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
	}
	return err
}
