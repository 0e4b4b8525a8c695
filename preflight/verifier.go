// Package preflight checks that a workspace is ready to run the stack:
// interpreter packages are importable, required files exist, the env document
// is configured, and (informationally) whether a container toolchain is
// available as an alternative way to run it.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/config"
)

// Runner runs a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PackageResolver reports whether a package can be imported.
type PackageResolver interface {
	Resolve(ctx context.Context, module string) error
}

// InterpreterResolver resolves a package by asking an interpreter to
// import it.
type InterpreterResolver struct {
	Interpreter string
	Run         Runner
}

func (r InterpreterResolver) Resolve(ctx context.Context, module string) error {
	_, err := r.Run(ctx, r.Interpreter, "-c", "import "+module)
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("interpreter %q not found", r.Interpreter)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return errors.New(lastLine(string(exitErr.Stderr)))
	}
	return err
}

// DaemonPinger checks that a container daemon answers.
type DaemonPinger interface {
	Ping(ctx context.Context) (string, error)
}

// Tool is a command whose presence is reported by the toolchain check.
type Tool struct {
	Name string
	Args []string
	// Alternative is tried when the primary command is missing.
	Alternative []string
}

// DefaultTools are the container toolchain and its companion orchestration
// command.
var DefaultTools = []Tool{
	{Name: "docker", Args: []string{"--version"}},
	{Name: "docker-compose", Args: []string{"--version"}, Alternative: []string{"docker", "compose", "version"}},
}

// Verifier runs the preflight checks.
type Verifier struct {
	Fs           afero.Fs
	Packages     []config.PackageSettings
	Resolver     PackageResolver
	Files        []string
	EnvPath      string
	TemplatePath string
	RequiredKeys []config.RequiredKey
	Tools        []Tool
	Run          Runner
	// Pinger is optional.
	Pinger DaemonPinger
}

// New returns a Verifier for the workspace described by s, checking files
// on fs.
func New(fs afero.Fs, s *config.Settings) *Verifier {
	v := &Verifier{
		Fs:           fs,
		Packages:     s.Preflight.Packages,
		Files:        s.Preflight.Files,
		EnvPath:      s.Target,
		TemplatePath: s.Template,
		RequiredKeys: s.Preflight.RequiredKeys,
		Tools:        DefaultTools,
		Run:          ExecRunner,
	}
	v.Resolver = InterpreterResolver{Interpreter: s.Preflight.Interpreter, Run: v.Run}
	if s.Preflight.DockerPing {
		v.Pinger = DockerPinger{}
	}
	return v
}

// Verify runs every check. Checks are independent and all of them always
// run.
func (v *Verifier) Verify(ctx context.Context) *Report {
	r := &Report{}
	r.Checks = append(r.Checks,
		v.checkPackages(ctx),
		v.checkFiles(),
		v.checkEnv(),
		v.checkToolchain(ctx),
	)
	for _, c := range r.Checks {
		zap.L().Debug("Preflight check", zap.String("category", string(c.Category)), zap.Bool("passed", c.Passed))
	}
	return r
}

func (v *Verifier) checkPackages(ctx context.Context) CheckResult {
	res := newCheck(Packages)
	for _, pkg := range v.Packages {
		module := pkg.Module
		if module == "" {
			module = pkg.Name
		}
		if err := v.Resolver.Resolve(ctx, module); err != nil {
			res.add(Finding{
				Subject: pkg.Name,
				Status:  Fail,
				Detail:  err.Error(),
				Remedy:  fmt.Sprintf("install %s (for example: pip install %s)", pkg.Name, pkg.Name),
			})
			continue
		}
		res.add(Finding{Subject: pkg.Name, Status: OK})
	}
	return res
}

func (v *Verifier) checkFiles() CheckResult {
	res := newCheck(Files)
	for _, name := range v.Files {
		ok, err := afero.Exists(v.Fs, name)
		switch {
		case err != nil:
			res.add(Finding{Subject: name, Status: Fail, Detail: err.Error(), Remedy: "Missing: " + name})
		case !ok:
			res.add(Finding{Subject: name, Status: Fail, Detail: "MISSING", Remedy: "Missing: " + name})
		default:
			res.add(Finding{Subject: name, Status: OK})
		}
	}
	return res
}

func (v *Verifier) checkEnv() CheckResult {
	res := newCheck(Env)
	data, err := afero.ReadFile(v.Fs, v.EnvPath)
	if err != nil {
		f := Finding{Subject: v.EnvPath, Status: Fail, Detail: "file not found"}
		if !errors.Is(err, os.ErrNotExist) {
			f.Detail = err.Error()
		}
		if ok, _ := afero.Exists(v.Fs, v.TemplatePath); ok {
			f.Remedy = fmt.Sprintf("Create %s from %s (stackup init-env)", v.EnvPath, v.TemplatePath)
		} else {
			f.Remedy = fmt.Sprintf("Create %s file (%s is also missing)", v.EnvPath, v.TemplatePath)
		}
		res.add(f)
		return res
	}
	res.add(Finding{Subject: v.EnvPath, Status: OK})

	values, err := godotenv.Unmarshal(string(data))
	if err != nil {
		res.add(Finding{
			Subject: v.EnvPath,
			Status:  Fail,
			Detail:  "cannot parse: " + err.Error(),
			Remedy:  fmt.Sprintf("Fix the syntax of %s", v.EnvPath),
		})
		return res
	}
	for _, key := range v.RequiredKeys {
		value := strings.TrimSpace(values[key.Key])
		if value == "" || (key.Placeholder != "" && value == key.Placeholder) {
			res.add(Finding{
				Subject: key.Key,
				Status:  Fail,
				Detail:  "not configured",
				Remedy:  fmt.Sprintf("Configure %s in %s", key.Key, v.EnvPath),
			})
			continue
		}
		res.add(Finding{Subject: key.Key, Status: OK, Detail: "configured"})
	}
	return res
}

func (v *Verifier) checkToolchain(ctx context.Context) CheckResult {
	res := newCheck(Toolchain)
	for _, tool := range v.Tools {
		out, err := v.Run(ctx, tool.Name, tool.Args...)
		if err != nil && len(tool.Alternative) > 0 {
			out, err = v.Run(ctx, tool.Alternative[0], tool.Alternative[1:]...)
		}
		if err != nil {
			res.Passed = false
			res.add(Finding{
				Subject: tool.Name,
				Status:  Warn,
				Detail:  "not found (optional for local development)",
				Remedy:  "stackup run works without it",
			})
			continue
		}
		res.add(Finding{Subject: tool.Name, Status: OK, Detail: lastLine(string(out))})
	}
	if v.Pinger != nil {
		version, err := v.Pinger.Ping(ctx)
		if err != nil {
			res.Passed = false
			res.add(Finding{Subject: "docker daemon", Status: Warn, Detail: "unreachable: " + err.Error()})
		} else {
			res.add(Finding{Subject: "docker daemon", Status: OK, Detail: "API " + version})
		}
	}
	return res
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
