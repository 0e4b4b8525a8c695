package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/config"
	"github.com/stackup-dev/stackup/ports"
	"github.com/stackup-dev/stackup/report"
)

var initEnvOpt = struct {
	yes    bool
	output string
}{}

var initEnvCmd = cobra.Command{
	Use:   "init-env",
	Short: "Create the env file from its template with free ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := rootOpt.settings
		alloc := ports.NewAllocator(ports.NewTCPProber(s.ProbeTimeout), s.Host, s.MaxCandidates)
		assignment, remaps, warnings := alloc.Allocate(cmd.Context(), s.Ports)
		for _, w := range warnings {
			zap.L().Warn("Port conflict not resolved", zap.String("port", w.Name), zap.String("reason", w.String()))
		}

		var confirm config.Confirmer = config.NewTerminalConfirmer()
		if initEnvOpt.yes {
			confirm = config.AlwaysConfirm
		}
		res, err := config.NewPersister(workspaceFs(), confirm).Persist(s.Template, s.Target, assignment.Strings())
		if err != nil {
			var missing *config.MissingTemplateError
			if errors.As(err, &missing) {
				zap.L().Error("Cannot create env file", zap.Error(err))
				hint("Restore %s in the workspace (it ships with the project), then run stackup init-env again.", missing.Path)
				return errFailed
			}
			return err
		}

		a := &report.Allocation{
			Specs:      s.Ports,
			Assignment: assignment,
			Remaps:     remaps,
			Warnings:   warnings,
			Result:     res,
		}
		if initEnvOpt.output != "text" {
			return report.Export(cmd.OutOrStdout(), initEnvOpt.output, a)
		}
		printer(cmd).Allocation(a)
		return nil
	},
}

func init() {
	flags := initEnvCmd.Flags()
	flags.BoolVarP(&initEnvOpt.yes, "yes", "y", false, "Overwrite an existing env file without asking")
	flags.StringVarP(&initEnvOpt.output, "output", "o", "text", "Output format (text|json|yaml)")
}
