package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stackup-dev/stackup"
	"github.com/stackup-dev/stackup/process"
	"github.com/stackup-dev/stackup/report"
)

var control = struct {
	addr   string
	output string
	lines  int
}{}

func client() *stackup.Client {
	return stackup.NewClient(control.addr)
}

// selected returns a filter for the process names given as arguments.
// No arguments selects every process.
func selected(args []string) func(name string) bool {
	display := make(map[string]bool)
	for _, name := range args {
		display[name] = true
	}
	return func(name string) bool {
		return len(display) == 0 || display[name]
	}
}

var statusCmd = cobra.Command{
	Use:   "status [name...]",
	Short: "Display the status of the processes of a running stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, err := client().Processes(cmd.Context())
		if err != nil {
			return err
		}
		show := selected(args)
		var infos []process.ProcessInfo
		for _, s := range statuses {
			if show(s.Name) {
				infos = append(infos, s.ProcessInfo)
			}
		}
		if control.output != "text" {
			return report.Export(cmd.OutOrStdout(), control.output, infos)
		}
		printer(cmd).Processes(infos)
		return nil
	},
}

var topCmd = cobra.Command{
	Use:   "top [name...]",
	Short: "Display the resource usage of the processes of a running stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		statuses, err := c.Processes(cmd.Context())
		if err != nil {
			return err
		}
		show := selected(args)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 10, 4, 5, ' ', 0)
		for _, s := range statuses {
			if !show(s.Name) || s.Pid == 0 {
				continue
			}
			st, err := c.Process(cmd.Context(), s.Name)
			if err != nil {
				return err
			}
			if st.Usage == nil {
				continue
			}
			_, _ = fmt.Fprintln(tw, strings.Join([]string{
				st.Name,
				strconv.Itoa(st.Pid),
				fmt.Sprintf("%.1f%%", st.Usage.CPU),
				fmt.Sprintf("%s (%.1f%%)", st.Usage.HumanResident(), st.Usage.Memory),
			},
				"\t",
			))
		}
		return tw.Flush()
	},
}

var portsStatusCmd = cobra.Command{
	Use:   "ports",
	Short: "Display the ports of a running stack",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := client().Ports(cmd.Context())
		if err != nil {
			return err
		}
		if control.output != "text" {
			return report.Export(cmd.OutOrStdout(), control.output, a)
		}
		for _, name := range report.SortedNames(a) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s=%d\n", name, a[name])
		}
		return nil
	},
}

var logsCmd = cobra.Command{
	Use:   "logs name",
	Short: "Fetch recent output of a process of a running stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := client().Log(cmd.Context(), args[0], control.lines)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var versionCmd = cobra.Command{
	Use:   "version",
	Short: "Print the stackup version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "stackup %s\n", stackup.Version)
		return err
	},
}

func init() {
	statusCmd.PersistentFlags().StringVar(&control.addr, "addr", "127.0.0.1:9002", "Status server address of the running stack")
	statusCmd.PersistentFlags().StringVarP(&control.output, "output", "o", "text", "Output format (text|json|yaml)")
	statusCmd.AddCommand(&portsStatusCmd)
	for _, c := range []*cobra.Command{&topCmd, &logsCmd} {
		c.Flags().StringVar(&control.addr, "addr", "127.0.0.1:9002", "Status server address of the running stack")
	}
	logsCmd.Flags().IntVarP(&control.lines, "lines", "n", stackup.DefaultLogLines, "Number of lines to show")
}
