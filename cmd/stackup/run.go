package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stackup-dev/stackup"
	"github.com/stackup-dev/stackup/config"
	"github.com/stackup-dev/stackup/preflight"
	"github.com/stackup-dev/stackup/process"
	"github.com/stackup-dev/stackup/report"
)

var runOpt = struct {
	statusAddr string
	quitDelay  time.Duration
	force      bool
}{}

var runCmd = cobra.Command{
	Use:   "run",
	Short: "Run the stack until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStack(cmd)
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runOpt.statusAddr, "status-addr", "", "Serve process status on this address, for example 127.0.0.1:9002")
	flags.DurationVar(&runOpt.quitDelay, "quit-delay", 0, "Time to wait for a second CTRL-C before quitting. 0 quits on the first one.")
	flags.BoolVar(&runOpt.force, "force", false, "Start even when required packages or files are missing")
}

func runStack(cmd *cobra.Command) error {
	s := rootOpt.settings
	fs := workspaceFs()
	p := printer(cmd)

	created, err := stackup.EnsureEnv(fs, s.Template, s.Target)
	if err != nil {
		var missing *config.MissingTemplateError
		if errors.As(err, &missing) {
			zap.L().Error("No env file and no template to create it from", zap.String("target", s.Target), zap.Error(err))
			hint("Restore %s in the workspace, then run stackup init-env.", missing.Path)
			return errFailed
		}
		return err
	}
	if created {
		p.Warn("%s file not found. Created it from %s.", s.Target, s.Template)
		p.Warn("Please edit %s with your Supabase credentials.", s.Target)
	}
	doc, err := stackup.LoadEnv(fs, s.Target)
	if err != nil {
		return err
	}
	if !preflightOK(cmd, p) && !runOpt.force {
		hint("Fix the issues above (stackup verify lists them), or pass --force to start anyway.")
		return errFailed
	}

	dir, err := filepath.Abs(rootOpt.Dir)
	if err != nil {
		return err
	}
	sup, err := stackup.NewSupervisor(stackup.Params{
		Settings:   s,
		Dir:        dir,
		Env:        doc,
		Output:     cmd.OutOrStdout(),
		StatusAddr: runOpt.statusAddr,
	})
	if err != nil {
		zap.L().Error("Cannot prepare the stack", zap.Error(err))
		hint("Check the ports in %s, or recreate it with stackup init-env.", s.Target)
		return errFailed
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- sup.Run(ctx)
	}()
	go func() {
		if err := sup.WaitRunning(ctx); err != nil {
			return
		}
		p.Banner("All services are running")
		for _, info := range sup.Processes() {
			if info.Port != 0 {
				p.Info("%s: http://localhost:%d", info.Name, info.Port)
			}
		}
		p.Info("Press Ctrl+C to stop all services")
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

FOR:
	for {
		select {
		case err := <-errc:
			return runError(err)
		case sig := <-sigs:
			zap.L().Info("Received signal to stop all processes and exit", zap.Stringer("signal", sig))
			if runOpt.quitDelay == 0 || sig == syscall.SIGTERM {
				break FOR
			}

			zap.L().Info("Press CTRL-C again to quit", zap.Stringer("signal", sig))
			select {
			case <-sigs:
				break FOR
			case err := <-errc:
				return runError(err)
			case <-time.After(runOpt.quitDelay):
				zap.L().Info("Not quitting", zap.Stringer("signal", sig))
			}
		}
	}

	cancel()
	if err := runError(<-errc); err != nil {
		return err
	}
	p.Info("All services stopped")
	return nil
}

// preflightOK checks packages, files and env before starting. Env findings
// only warn since a freshly created env file still holds placeholders.
func preflightOK(cmd *cobra.Command, p *report.Printer) bool {
	v := preflight.New(workspaceFs(), rootOpt.settings)
	v.Tools, v.Pinger = nil, nil
	r := v.Verify(cmd.Context())

	ok := true
	for _, c := range r.Checks {
		for _, f := range c.Findings {
			if f.Status != preflight.Fail {
				continue
			}
			if c.Category == preflight.Env {
				p.Warn("%s", report.IssueText(f))
				continue
			}
			ok = false
			p.Line(preflight.Fail, "%s", report.IssueText(f))
		}
	}
	return ok
}

// runError turns a supervisor error into a remediation hint.
func runError(err error) error {
	if err == nil {
		return nil
	}
	var (
		launchErr *process.LaunchError
		readyErr  *process.ReadinessError
	)
	switch {
	case errors.Is(err, process.ErrPortInUse) && errors.As(err, &launchErr):
		zap.L().Error("Service port is taken", zap.Error(err))
		hint("Another program listens on the port of %s. Stop it, or run stackup init-env to pick free ports.", launchErr.Name)
	case errors.As(err, &readyErr):
		zap.L().Error("Service did not become ready", zap.Error(err))
		hint("Nothing listened on port %d for %s. Check its output above, free the port (stackup ports) or raise ready_timeout.",
			readyErr.Port, readyErr.Name)
	case errors.As(err, &launchErr):
		zap.L().Error("Service failed to start", zap.Error(err))
		hint("Run stackup verify to check dependencies and files needed by %s.", launchErr.Name)
	default:
		zap.L().Error("Stack stopped", zap.Error(err))
	}
	return errFailed
}
