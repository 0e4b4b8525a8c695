package main

import (
	"github.com/spf13/cobra"

	"github.com/stackup-dev/stackup/preflight"
	"github.com/stackup-dev/stackup/report"
)

var verifyOpt = struct {
	output string
}{}

var verifyCmd = cobra.Command{
	Use:   "verify",
	Short: "Check that the workspace is ready to run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := preflight.New(workspaceFs(), rootOpt.settings).Verify(cmd.Context())
		if verifyOpt.output == "text" {
			printer(cmd).Preflight(r)
		} else {
			if err := report.Export(cmd.OutOrStdout(), verifyOpt.output, r); err != nil {
				return err
			}
			// stdout carries the document; remedies go to stderr.
			for _, f := range r.Issues() {
				hint("%s", report.IssueText(f))
			}
		}
		if !r.Passed() {
			return errFailed
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyOpt.output, "output", "o", "text", "Output format (text|json|yaml)")
}
