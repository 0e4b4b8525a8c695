// Package report renders stackup results for people and for tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/logrusorgru/aurora"
	"gopkg.in/yaml.v3"

	"github.com/stackup-dev/stackup/config"
	"github.com/stackup-dev/stackup/ports"
	"github.com/stackup-dev/stackup/preflight"
	"github.com/stackup-dev/stackup/process"
)

const ruleWidth = 60

// Printer writes console reports.
type Printer struct {
	w  io.Writer
	au aurora.Aurora
}

// New returns a Printer writing to w, with colour when color is true.
func New(w io.Writer, color bool) *Printer {
	return &Printer{
		w:  w,
		au: aurora.NewAurora(color),
	}
}

func (p *Printer) printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// Rule prints a horizontal rule.
func (p *Printer) Rule() {
	p.printf("%s\n", strings.Repeat("=", ruleWidth))
}

// Banner prints a title between two rules.
func (p *Printer) Banner(title string) {
	p.Rule()
	p.printf("%s\n", title)
	p.Rule()
	p.printf("\n")
}

func (p *Printer) tag(status preflight.Status) string {
	t := "[" + status.String() + "]"
	switch status {
	case preflight.OK:
		return p.au.Green(t).String()
	case preflight.Warn:
		return p.au.Yellow(t).String()
	default:
		return p.au.Red(t).String()
	}
}

// Line prints one indented status line.
func (p *Printer) Line(status preflight.Status, format string, args ...interface{}) {
	p.printf("  %s %s\n", p.tag(status), fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func (p *Printer) Info(format string, args ...interface{}) {
	p.printf("%s %s\n", p.au.Cyan("[INFO]").String(), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (p *Printer) Warn(format string, args ...interface{}) {
	p.printf("%s %s\n", p.au.Yellow("[WARN]").String(), fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	p.printf("%s %s\n", p.au.Green("[SUCCESS]").String(), fmt.Sprintf(format, args...))
}

// Failure prints the header of a list of problems.
func (p *Printer) Failure(format string, args ...interface{}) {
	p.printf("%s %s\n", p.au.Red("[WARNING]").String(), fmt.Sprintf(format, args...))
}

var sectionTitles = map[preflight.Category]string{
	preflight.Packages:  "Testing package imports...",
	preflight.Files:     "Testing file structure...",
	preflight.Env:       "Testing environment configuration...",
	preflight.Toolchain: "Testing Docker...",
}

// Preflight prints a verification report and its summary.
func (p *Printer) Preflight(r *preflight.Report) {
	p.Banner("Setup Verification")
	for i, c := range r.Checks {
		if i > 0 {
			p.printf("\n")
		}
		title, ok := sectionTitles[c.Category]
		if !ok {
			title = string(c.Category) + "..."
		}
		p.printf("[*] %s\n", title)
		for _, f := range c.Findings {
			if f.Detail != "" {
				p.Line(f.Status, "%s: %s", f.Subject, f.Detail)
			} else {
				p.Line(f.Status, "%s", f.Subject)
			}
		}
		if c.Category == preflight.Toolchain && !c.Passed {
			p.printf("  Docker is optional: stackup run works without it\n")
		}
	}
	p.printf("\n")
	p.Rule()
	if r.Passed() {
		p.Success("All checks passed! System is ready to run.")
		p.printf("\nTo start:\n  stackup run\n")
	} else {
		p.Failure("Some issues found:")
		for _, f := range r.Issues() {
			p.printf("  - %s\n", IssueText(f))
		}
		p.printf("\nPlease fix the issues above before running.\n")
	}
	p.Rule()
}

// IssueText is the one-line description of a failing finding: its remedy
// when there is one.
func IssueText(f preflight.Finding) string {
	if f.Remedy != "" {
		return f.Remedy
	}
	if f.Detail != "" {
		return f.Subject + ": " + f.Detail
	}
	return f.Subject
}

// Ports prints a port availability report. It returns whether every port
// was available.
func (p *Printer) Ports(results []ports.PortProbeResult) bool {
	p.Banner("Port Availability Check")
	var conflicts []ports.PortProbeResult
	for _, r := range results {
		if r.Available {
			p.Line(preflight.OK, "Port %d (%s) is available", r.Port, describe(r.Name, r.Description))
			continue
		}
		p.Line(preflight.Warn, "Port %d (%s) is already in use", r.Port, describe(r.Name, r.Description))
		conflicts = append(conflicts, r)
	}
	p.printf("\n")
	p.Rule()
	if len(conflicts) == 0 {
		p.Success("All ports are available!")
		p.printf("\nYou can start the system with:\n  stackup run\n")
		p.Rule()
		return true
	}
	p.Failure("Some ports are already in use:")
	for _, r := range conflicts {
		p.printf("  - Port %d (%s)\n", r.Port, describe(r.Name, r.Description))
	}
	p.printf("\nOptions:\n")
	p.printf("1. Stop the service using the port\n")
	p.printf("2. Let stackup pick free ports: stackup init-env\n")
	p.printf("3. Change the port in the env file:\n")
	for _, r := range conflicts {
		p.printf("   %s=%d\n", r.Name, r.Port+1)
	}
	p.Rule()
	return false
}

func describe(name, description string) string {
	if description != "" {
		return description
	}
	return name
}

// Allocation describes an init-env run: the assignment and what happened
// to the target document.
type Allocation struct {
	Specs      []ports.ServicePortSpec `json:"-" yaml:"-"`
	Assignment ports.Assignment        `json:"assignment" yaml:"assignment"`
	Remaps     []ports.RemapRecord     `json:"remaps" yaml:"remaps"`
	Warnings   []ports.Warning         `json:"warnings" yaml:"warnings"`
	Result     *config.PersistResult   `json:"result" yaml:"result"`
}

// Allocation prints the outcome of an init-env run.
func (p *Printer) Allocation(a *Allocation) {
	p.Banner("Creating " + a.Result.Target + " with safe port assignments")
	p.Info("Checking port availability...")
	remapped := make(map[string]ports.RemapRecord)
	for _, r := range a.Remaps {
		remapped[r.Name] = r
	}
	warned := make(map[string]ports.Warning)
	for _, w := range a.Warnings {
		warned[w.Name] = w
	}
	for _, spec := range a.Specs {
		switch {
		case remapped[spec.Name] != (ports.RemapRecord{}):
			r := remapped[spec.Name]
			p.Line(preflight.Warn, "Port %d (%s) is in use, using %d instead", r.OriginalPort, spec.Name, r.NewPort)
		case warned[spec.Name] != (ports.Warning{}):
			p.Line(preflight.Warn, "Port %d (%s) is in use, but no alternative found", spec.DefaultPort, spec.Name)
		default:
			p.Line(preflight.OK, "Port %d (%s) is available", a.Assignment[spec.Name], spec.Name)
		}
	}
	p.printf("\n")

	res := a.Result
	switch {
	case res.Declined:
		p.Info("Cancelled. Using existing %s file.", res.Target)
		p.Rule()
		return
	case res.BackupPath != "":
		p.Info("Backed up existing %s to %s", res.Target, res.BackupPath)
	}
	if res.Unchanged {
		p.Success("%s already has the following ports:", res.Target)
	} else {
		p.Success("Created %s file with the following ports:", res.Target)
	}
	for _, spec := range a.Specs {
		p.printf("  %s=%d\n", spec.Name, a.Assignment[spec.Name])
	}
	for _, key := range res.Appended {
		p.Info("Added %s to %s (not in the template)", key, res.Target)
	}
	if len(a.Remaps) > 0 {
		p.printf("\n")
		p.Info("Port changes made due to conflicts:")
		for _, r := range a.Remaps {
			p.printf("  %s\n", r)
		}
		p.printf("\n")
		p.Info("Update your bookmarks:")
		for _, spec := range a.Specs {
			p.printf("  - %s: http://localhost:%d\n", describe(spec.Name, spec.Description), a.Assignment[spec.Name])
		}
	}
	p.printf("\n")
	p.Info("Don't forget to add your Supabase credentials to %s", res.Target)
	p.Rule()
}

// Processes prints one line per process with its state coloured.
func (p *Printer) Processes(infos []process.ProcessInfo) {
	tw := tabwriter.NewWriter(p.w, 12, 4, 3, ' ', 0)
	state := func(s process.State) aurora.Value {
		switch s {
		case process.Running:
			return p.au.Green(s)
		case process.Stopped:
			return p.au.Red(s)
		default:
			return p.au.Yellow(s)
		}
	}
	for _, info := range infos {
		fields := []string{info.Name, state(info.State).String()}
		if info.Pid != 0 {
			fields = append(fields, fmt.Sprintf("pid %d", info.Pid))
		} else {
			fields = append(fields, "-")
		}
		if info.Port != 0 {
			fields = append(fields, fmt.Sprintf("port %d", info.Port))
		} else {
			fields = append(fields, "-")
		}
		if info.State == process.Stopped && !info.StoppedAt.IsZero() {
			fields = append(fields, fmt.Sprintf("exit status %d", info.ExitStatus))
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}
	tw.Flush()
}

// Formats lists the values accepted by Export.
var Formats = []string{"text", "json", "yaml"}

// Export writes v to w as JSON or YAML.
func Export(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// SortedNames returns the names in an assignment in lexical order.
func SortedNames(a ports.Assignment) []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
