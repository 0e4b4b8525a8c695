package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/ports"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: localhost
probe_timeout: 250ms
template: tmpl.env
ports:
  - name: API_PORT
    default_port: 18000
preflight:
  packages: []
  files: [a.txt]
processes:
  - name: api
    command: ./api
    args: ["--port", "${API_PORT}"]
    env: ["MODE=dev"]
    port_key: API_PORT
    stop_wait: 2s
`), 0o644))
	t.Setenv("STACKUP_MAX_CANDIDATES", "3")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, 250*time.Millisecond, s.ProbeTimeout)
	assert.Equal(t, 3, s.MaxCandidates)
	assert.Equal(t, "tmpl.env", s.Template)
	assert.Equal(t, ".env", s.Target)
	assert.Equal(t, []ports.ServicePortSpec{{Name: "API_PORT", DefaultPort: 18000}}, s.Ports)
	assert.Empty(t, s.Preflight.Packages)
	assert.Equal(t, []string{"a.txt"}, s.Preflight.Files)
	assert.Equal(t, Default().Preflight.RequiredKeys, s.Preflight.RequiredKeys)
	require.Len(t, s.Processes, 1)
	assert.Equal(t, ProcessSettings{
		Name:     "api",
		Command:  "./api",
		Args:     []string{"--port", "${API_PORT}"},
		Env:      []string{"MODE=dev"},
		PortKey:  "API_PORT",
		StopWait: 2 * time.Second,
	}, s.Processes[0])
}

func TestLoadInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"port range":   "ports: [{name: A, default_port: 70000}]",
		"duplicate":    "ports: [{name: A, default_port: 1}, {name: A, default_port: 2}]",
		"no command":   "processes: [{name: x}]",
		"bad signal":   "processes: [{name: x, command: y, stop_signals: [NOPE]}]",
		"zero timeout": "probe_timeout: 0s",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stackup.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseSignals(t *testing.T) {
	sigs, err := ParseSignals([]string{"TERM", "KILL"})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "TERM", sigs[0].String())
	assert.Equal(t, "KILL", sigs[1].String())
}

func TestParseSignalsInvalid(t *testing.T) {
	_, err := ParseSignals([]string{"sigterm", "NOPE"})
	assert.EqualError(t, err, "stop signal 2: invalid signal: NOPE")
}
