package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/stackup-dev/stackup/ports"
)

// EnvPrefix prefixes environment variables overriding settings, for example
// STACKUP_HOST or STACKUP_PROBE_TIMEOUT.
const EnvPrefix = "STACKUP"

// Settings holds everything stackup needs to know about the stack it runs.
type Settings struct {
	Host          string                  `mapstructure:"host" validate:"required"`
	ProbeTimeout  time.Duration           `mapstructure:"probe_timeout" validate:"gt=0"`
	MaxCandidates int                     `mapstructure:"max_candidates" validate:"min=1,max=1000"`
	Template      string                  `mapstructure:"template" validate:"required"`
	Target        string                  `mapstructure:"target" validate:"required"`
	Ports         []ports.ServicePortSpec `mapstructure:"ports" validate:"required,dive"`
	Preflight     PreflightSettings       `mapstructure:"preflight"`
	Processes     []ProcessSettings       `mapstructure:"processes" validate:"dive"`
}

// PreflightSettings lists what the preflight verifier checks.
type PreflightSettings struct {
	Interpreter  string            `mapstructure:"interpreter"`
	Packages     []PackageSettings `mapstructure:"packages" validate:"dive"`
	Files        []string          `mapstructure:"files"`
	RequiredKeys []RequiredKey     `mapstructure:"required_keys" validate:"dive"`
	DockerPing   bool              `mapstructure:"docker_ping"`
}

// PackageSettings names a package and the module used to import it when it
// differs from the package name.
type PackageSettings struct {
	Name   string `mapstructure:"name" validate:"required"`
	Module string `mapstructure:"module"`
}

// RequiredKey is an env document key that must be set to something other
// than its placeholder.
type RequiredKey struct {
	Key         string `mapstructure:"key" validate:"required"`
	Placeholder string `mapstructure:"placeholder"`
}

// ProcessSettings describes one supervised service. Env entries have the
// form KEY=VALUE (a list rather than a map, since viper folds map keys to
// lower case). Args and Env values may refer to env document keys as ${KEY}.
type ProcessSettings struct {
	Name         string        `mapstructure:"name" validate:"required"`
	Command      string        `mapstructure:"command" validate:"required"`
	Args         []string      `mapstructure:"args"`
	Dir          string        `mapstructure:"dir"`
	Env          []string      `mapstructure:"env"`
	PortKey      string        `mapstructure:"port_key"`
	StopSignals  []string      `mapstructure:"stop_signals"`
	StopWait     time.Duration `mapstructure:"stop_wait" validate:"gte=0"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" validate:"gte=0"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" validate:"gte=0"`

	// LogFile optionally receives a copy of the process output, rotated
	// once it grows past LogFileMaxBytes.
	LogFile         string `mapstructure:"log_file"`
	LogFileMaxBytes int64  `mapstructure:"log_file_max_bytes" validate:"gte=0"`
	LogFileBackups  int    `mapstructure:"log_file_backups" validate:"gte=0"`
}

var validate = validator.New()

// Load reads settings from path, or from stackup.yaml in the working
// directory when path is empty, applying STACKUP_* overrides on top. A
// missing default settings file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stackup")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("cannot read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("cannot decode settings: %w", err)
	}
	s.fillDefaults(v)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	names := make(map[string]bool)
	for _, p := range s.Ports {
		if names[p.Name] {
			return fmt.Errorf("invalid settings: duplicate port name %q", p.Name)
		}
		names[p.Name] = true
	}
	for _, p := range s.Processes {
		if _, err := ParseSignals(p.StopSignals); err != nil {
			return fmt.Errorf("invalid settings: process %q: %w", p.Name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("probe_timeout", ports.DefaultProbeTimeout)
	v.SetDefault("max_candidates", ports.DefaultMaxCandidates)
	v.SetDefault("template", "env.example")
	v.SetDefault("target", ".env")
	v.SetDefault("preflight.interpreter", "python3")
	v.SetDefault("preflight.docker_ping", true)
}

// fillDefaults supplies list-valued defaults that were not configured.
// Lists are not given to viper as defaults because a configured list must
// replace the default wholesale rather than merge with it.
func (s *Settings) fillDefaults(v *viper.Viper) {
	d := Default()
	if !v.IsSet("ports") {
		s.Ports = d.Ports
	}
	if !v.IsSet("processes") {
		s.Processes = d.Processes
	}
	if !v.IsSet("preflight.packages") {
		s.Preflight.Packages = d.Preflight.Packages
	}
	if !v.IsSet("preflight.files") {
		s.Preflight.Files = d.Preflight.Files
	}
	if !v.IsSet("preflight.required_keys") {
		s.Preflight.RequiredKeys = d.Preflight.RequiredKeys
	}
}

// Default returns the settings for the stack as shipped: a FastAPI backend,
// a Streamlit frontend, Prometheus and Grafana.
func Default() *Settings {
	return &Settings{
		Host:          "127.0.0.1",
		ProbeTimeout:  ports.DefaultProbeTimeout,
		MaxCandidates: ports.DefaultMaxCandidates,
		Template:      "env.example",
		Target:        ".env",
		Ports:         ports.DefaultSpecs(),
		Preflight: PreflightSettings{
			Interpreter: "python3",
			Packages: []PackageSettings{
				{Name: "fastapi"},
				{Name: "streamlit"},
				{Name: "supabase"},
				{Name: "yfinance"},
				{Name: "scikit-learn", Module: "sklearn"},
				{Name: "pandas"},
				{Name: "plotly"},
				{Name: "prometheus-client", Module: "prometheus_client"},
			},
			Files: []string{
				"backend/main.py",
				"backend/app/config.py",
				"backend/app/database.py",
				"backend/app/ml/early_warning.py",
				"backend/requirements.txt",
				"frontend/app.py",
				"frontend/requirements.txt",
				"docker-compose.yml",
				"supabase/schema.sql",
			},
			RequiredKeys: []RequiredKey{
				{Key: "SUPABASE_URL", Placeholder: "your_supabase_url_here"},
				{Key: "SUPABASE_KEY", Placeholder: "your_supabase_key_here"},
			},
			DockerPing: true,
		},
		Processes: []ProcessSettings{{
			Name:    "backend",
			Command: "python3",
			Args: []string{
				"-m", "uvicorn", "main:app", "--reload",
				"--host", "0.0.0.0", "--port", "${API_PORT}",
			},
			Dir:          "backend",
			PortKey:      "API_PORT",
			StopSignals:  []string{"TERM", "KILL"},
			StopWait:     10 * time.Second,
			ReadyTimeout: 30 * time.Second,
			SettleDelay:  3 * time.Second,
		}, {
			Name:    "frontend",
			Command: "python3",
			Args: []string{
				"-m", "streamlit", "run", "app.py",
				"--server.port=${FRONTEND_PORT}", "--server.address=0.0.0.0",
			},
			Dir:          "frontend",
			Env:          []string{"API_URL=http://localhost:${API_PORT}"},
			PortKey:      "FRONTEND_PORT",
			StopSignals:  []string{"TERM", "KILL"},
			StopWait:     10 * time.Second,
			ReadyTimeout: 30 * time.Second,
			SettleDelay:  3 * time.Second,
		}},
	}
}
