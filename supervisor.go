// Package stackup runs a local development stack: it reads the ports
// negotiated into the env document, supervises the stack's processes and
// serves their status.
package stackup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/config"
	"github.com/stackup-dev/stackup/internal/fswatcher"
	"github.com/stackup-dev/stackup/logger"
	"github.com/stackup-dev/stackup/pkg/cast"
	"github.com/stackup-dev/stackup/ports"
	"github.com/stackup-dev/stackup/process"
)

const (
	// Version the version of stackup
	Version = "1.0"
)

// Params holds the parameters for NewSupervisor.
type Params struct {
	Settings *config.Settings

	// Dir is the workspace directory. Relative paths in Settings are
	// resolved against it.
	Dir string

	// Env is the parsed env document.
	Env *config.Document

	// Output receives the output of the processes. Defaults to os.Stdout.
	Output io.Writer

	// Launcher defaults to a process.ExecLauncher writing to Output.
	Launcher process.Launcher

	// Prober is used for readiness checks. Defaults to a TCP prober.
	Prober ports.Prober

	// StatusAddr, when set, is the address of the status HTTP server.
	StatusAddr string
}

// Supervisor runs the processes of the stack until it is told to stop.
type Supervisor struct {
	params     Params
	assignment ports.Assignment
	procs      *process.Supervisor

	mu      sync.Mutex
	loggers map[string]*logger.Logger
}

// NewSupervisor returns a Supervisor for the stack described by p.
func NewSupervisor(p Params) (*Supervisor, error) {
	if p.Output == nil {
		p.Output = os.Stdout
	}
	assignment, err := ReadPorts(p.Env, p.Settings.Ports)
	if err != nil {
		return nil, err
	}
	specs, err := ProcessSpecs(p.Settings, p.Dir, p.Env.Values(), assignment)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		params:     p,
		assignment: assignment,
		loggers:    make(map[string]*logger.Logger),
	}
	launcher := p.Launcher
	if launcher == nil {
		launcher = &process.ExecLauncher{
			Output:  p.Output,
			Logs:    s.logParams,
			Loggers: s.addLogger,
		}
	}
	prober := p.Prober
	if prober == nil {
		prober = ports.NewTCPProber(p.Settings.ProbeTimeout)
	}
	s.procs, err = process.NewSupervisor(specs, launcher, process.NewReadinessProbe(prober, p.Settings.Host))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ReadPorts returns the port of each spec as recorded in doc, or its
// default port when doc doesn't mention it.
func ReadPorts(doc *config.Document, specs []ports.ServicePortSpec) (ports.Assignment, error) {
	a := make(ports.Assignment)
	for _, spec := range specs {
		v, ok := doc.Lookup(spec.Name)
		if !ok || v == "" {
			a[spec.Name] = spec.DefaultPort
			continue
		}
		port, err := cast.ToPortE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", spec.Name, err)
		}
		a[spec.Name] = port
	}
	return a, nil
}

// ProcessSpecs turns the process settings into specs. ${KEY} references in
// arguments and environment values are expanded from values, falling back
// to the supervisor's environment. Working directories are resolved
// against dir.
func ProcessSpecs(s *config.Settings, dir string, values map[string]string, assignment ports.Assignment) ([]*process.Spec, error) {
	lookup := func(key string) string {
		if v, ok := values[key]; ok {
			return v
		}
		if port, ok := assignment[key]; ok {
			return fmt.Sprint(port)
		}
		return os.Getenv(key)
	}
	specs := make([]*process.Spec, 0, len(s.Processes))
	for _, ps := range s.Processes {
		spec := &process.Spec{
			Name:         ps.Name,
			Command:      os.Expand(ps.Command, lookup),
			Dir:          resolve(dir, ps.Dir),
			StopWait:     ps.StopWait,
			ReadyTimeout: ps.ReadyTimeout,
			SettleDelay:  ps.SettleDelay,
		}
		for _, arg := range ps.Args {
			spec.Args = append(spec.Args, os.Expand(arg, lookup))
		}
		for _, kv := range ps.Env {
			spec.Env = append(spec.Env, os.Expand(kv, lookup))
		}
		if ps.PortKey != "" {
			port, ok := assignment[ps.PortKey]
			if !ok {
				return nil, fmt.Errorf("process %q: unknown port key %q", ps.Name, ps.PortKey)
			}
			spec.Port = port
		}
		sigs, err := config.ParseSignals(ps.StopSignals)
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", ps.Name, err)
		}
		for _, sig := range sigs {
			spec.StopSignals = append(spec.StopSignals, sig.S)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func resolve(dir, path string) string {
	if path == "" {
		return dir
	}
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func (s *Supervisor) logParams(spec *process.Spec) logger.Params {
	for _, ps := range s.params.Settings.Processes {
		if ps.Name != spec.Name || ps.LogFile == "" {
			continue
		}
		return logger.Params{
			LogFile:     resolve(s.params.Dir, ps.LogFile),
			MaxFileSize: ps.LogFileMaxBytes,
			Backups:     ps.LogFileBackups,
		}
	}
	return logger.Params{}
}

func (s *Supervisor) addLogger(name string, l *logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggers[name] = l
}

func (s *Supervisor) logger(name string) *logger.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggers[name]
}

// Run supervises the processes until ctx is cancelled or one of them fails
// to start. While it runs, the status server is served if configured and
// the env document is watched for changes.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.params.StatusAddr != "" {
		ln, err := net.Listen("tcp", s.params.StatusAddr)
		if err != nil {
			return fmt.Errorf("cannot start status server: %w", err)
		}
		srv := &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		zap.L().Info("Starting status server", zap.String("addr", ln.Addr().String()))
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("Status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("Unable to shutdown status server", zap.Error(err))
			}
		}()
	}

	envPath := resolve(s.params.Dir, s.params.Settings.Target)
	if w, err := fswatcher.NewFile(envPath); err != nil {
		zap.L().Warn("Cannot watch env file", zap.String("file", envPath), zap.Error(err))
	} else {
		defer w.Close()
		go func() {
			for e := range w.Events() {
				zap.L().Warn("Env file changed; running services keep their ports until restarted",
					zap.String("file", e.Path), zap.Stringer("op", e.Op))
			}
		}()
	}

	return s.procs.Run(ctx)
}

// WaitRunning blocks until every process is running.
func (s *Supervisor) WaitRunning(ctx context.Context) error {
	return s.procs.WaitRunning(ctx)
}

// Processes returns a snapshot of every process.
func (s *Supervisor) Processes() []process.ProcessInfo {
	return s.procs.Processes()
}

// Assignment returns the ports the stack runs with.
func (s *Supervisor) Assignment() ports.Assignment {
	a := make(ports.Assignment, len(s.assignment))
	for k, v := range s.assignment {
		a[k] = v
	}
	return a
}
