package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/stackup-dev/stackup/config"
	"github.com/stackup-dev/stackup/internal/zap/encoder"
	"github.com/stackup-dev/stackup/report"
)

// errFailed is returned by commands that have already explained the
// failure to the user.
var errFailed = errors.New("failed")

var logLevel zap.AtomicLevel

func init() {
	cfg := zap.NewDevelopmentConfig()
	encoding := "term-color"
	if os.Getenv("NO_COLOR") != "" {
		encoding = "term"
	}
	cfg.Encoding = encoding
	cfg.DisableStacktrace = true
	cfg.EncoderConfig = encoder.NewDevelopmentEncoderConfig()
	cfg.EncoderConfig.CallerKey = ""
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logLevel = cfg.Level
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(log)
}

var (
	rootOpt = struct {
		Configuration string
		Dir           string
		LogLevel      string

		settings *config.Settings
	}{}

	rootCmd = cobra.Command{
		Use:           "stackup",
		Short:         "Run the local development stack",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logLevel.UnmarshalText([]byte(rootOpt.LogLevel)); err != nil {
				return fmt.Errorf("invalid log level %q", rootOpt.LogLevel)
			}
			s, err := config.Load(settingsPath())
			if err != nil {
				return err
			}
			rootOpt.settings = s
			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rootOpt.Configuration, "config", "c", "", "Settings file (default stackup.yaml in the workspace, if present)")
	flags.StringVarP(&rootOpt.Dir, "dir", "C", ".", "Workspace directory")
	flags.StringVar(&rootOpt.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")

	rootCmd.AddCommand(&portsCmd)
	rootCmd.AddCommand(&initEnvCmd)
	rootCmd.AddCommand(&verifyCmd)
	rootCmd.AddCommand(&runCmd)
	rootCmd.AddCommand(&statusCmd)
	rootCmd.AddCommand(&topCmd)
	rootCmd.AddCommand(&logsCmd)
	rootCmd.AddCommand(&versionCmd)
}

// settingsPath returns the settings file to load, or "" for the defaults.
func settingsPath() string {
	if rootOpt.Configuration != "" {
		return rootOpt.Configuration
	}
	path := filepath.Join(rootOpt.Dir, "stackup.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// workspaceFs returns the workspace as a filesystem, so that relative
// paths in the settings resolve against --dir.
func workspaceFs() afero.Fs {
	if rootOpt.Dir == "" || rootOpt.Dir == "." {
		return afero.NewOsFs()
	}
	return afero.NewBasePathFs(afero.NewOsFs(), rootOpt.Dir)
}

func printer(cmd *cobra.Command) *report.Printer {
	color := os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))
	return report.New(cmd.OutOrStdout(), color)
}

// hint prints a remediation hint on stderr.
func hint(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func Main() int {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(Main())
}
