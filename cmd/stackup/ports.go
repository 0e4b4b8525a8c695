package main

import (
	"github.com/spf13/cobra"

	"github.com/stackup-dev/stackup/ports"
	"github.com/stackup-dev/stackup/report"
)

var portsOpt = struct {
	output string
}{}

var portsCmd = cobra.Command{
	Use:   "ports",
	Short: "Check whether the default ports of the stack are free",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := rootOpt.settings
		prober := ports.NewTCPProber(s.ProbeTimeout)
		results := ports.ProbeAll(cmd.Context(), prober, s.Host, s.Ports)

		if portsOpt.output == "text" {
			if !printer(cmd).Ports(results) {
				return errFailed
			}
			return nil
		}

		if err := report.Export(cmd.OutOrStdout(), portsOpt.output, results); err != nil {
			return err
		}
		ok := true
		for _, r := range results {
			if !r.Available {
				ok = false
				hint("Port %d is in use: stop the program using it, run stackup init-env, or set %s=%d", r.Port, r.Name, r.Port+1)
			}
		}
		if !ok {
			return errFailed
		}
		return nil
	},
}

func init() {
	portsCmd.Flags().StringVarP(&portsOpt.output, "output", "o", "text", "Output format (text|json|yaml)")
}
