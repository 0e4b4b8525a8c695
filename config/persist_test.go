package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	templatePath = "/work/env.example"
	targetPath   = "/work/.env"
	backupPath   = "/work/.env.backup"
)

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func unattended() Confirmer {
	return ConfirmFunc(func(string) (bool, error) { return false, ErrUnattended })
}

func mustNotAsk(t *testing.T) Confirmer {
	return ConfirmFunc(func(prompt string) (bool, error) {
		t.Errorf("unexpected confirmation request %q", prompt)
		return false, nil
	})
}

func TestPersistRemap(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: template})
	p := NewPersister(fs, mustNotAsk(t))

	res, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Empty(t, res.BackupPath)
	assert.Empty(t, res.Appended)

	got := readFile(t, fs, targetPath)
	assert.Equal(t, strings.Replace(template, "API_PORT=8000", "API_PORT=8001", 1), got)
}

func TestPersistAllDefaultsIsByteIdentical(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: template})
	p := NewPersister(fs, mustNotAsk(t))

	_, err := p.Persist(templatePath, targetPath, map[string]string{
		"API_PORT":        "8000",
		"FRONTEND_PORT":   "8501",
		"PROMETHEUS_PORT": "9091",
		"GRAFANA_PORT":    "3000",
	})
	require.NoError(t, err)
	assert.Equal(t, template, readFile(t, fs, targetPath))
}

func TestPersistMissingTemplate(t *testing.T) {
	fs := newFs(t, map[string]string{targetPath: "OLD=1\n"})
	p := NewPersister(fs, mustNotAsk(t))

	_, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	var mte *MissingTemplateError
	require.True(t, errors.As(err, &mte), "got %v", err)
	assert.Equal(t, templatePath, mte.Path)
	assert.Equal(t, "OLD=1\n", readFile(t, fs, targetPath))
}

func TestPersistDeclined(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: template, targetPath: "OLD=1\n"})
	asked := 0
	p := NewPersister(fs, ConfirmFunc(func(string) (bool, error) {
		asked++
		return false, nil
	}))

	res, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.False(t, res.Written)
	assert.Equal(t, 1, asked)
	assert.Equal(t, "OLD=1\n", readFile(t, fs, targetPath))
	ok, _ := afero.Exists(fs, backupPath)
	assert.False(t, ok)
}

func TestPersistConfirmed(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "API_PORT=8000\n", targetPath: "OLD=1\n"})
	p := NewPersister(fs, AlwaysConfirm)

	res, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Empty(t, res.BackupPath)
	assert.Equal(t, "API_PORT=8001\n", readFile(t, fs, targetPath))
}

func TestPersistUnattendedBacksUpOnce(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "API_PORT=8000\n", targetPath: "OLD=1\n"})
	p := NewPersister(fs, unattended())

	res, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	require.NoError(t, err)
	assert.Equal(t, backupPath, res.BackupPath)
	assert.Equal(t, "OLD=1\n", readFile(t, fs, backupPath))
	assert.Equal(t, "API_PORT=8001\n", readFile(t, fs, targetPath))

	res, err = p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8002"})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Empty(t, res.BackupPath)
	assert.Equal(t, "OLD=1\n", readFile(t, fs, backupPath), "backup must never be overwritten")
	assert.Equal(t, "API_PORT=8002\n", readFile(t, fs, targetPath))

	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{".env", ".env.backup", "env.example"}, names)
}

func TestPersistUnchangedSkipsPrompt(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "API_PORT=8000\n", targetPath: "API_PORT=8001\n"})
	p := NewPersister(fs, mustNotAsk(t))

	res, err := p.Persist(templatePath, targetPath, map[string]string{"API_PORT": "8001"})
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.False(t, res.Written)
}

func TestPersistEmptyTargetIsOverwrittenWithoutPrompt(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "API_PORT=8000\n", targetPath: ""})
	p := NewPersister(fs, mustNotAsk(t))

	res, err := p.Persist(templatePath, targetPath, nil)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, "API_PORT=8000\n", readFile(t, fs, targetPath))
}

func TestPersistAppendsUnknownKeys(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "# ports\n"})
	p := NewPersister(fs, mustNotAsk(t))

	res, err := p.Persist(templatePath, targetPath, map[string]string{"GRAFANA_PORT": "3001", "API_PORT": "8000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"API_PORT", "GRAFANA_PORT"}, res.Appended)
	assert.Equal(t, "# ports\nAPI_PORT=8000\nGRAFANA_PORT=3001\n", readFile(t, fs, targetPath))
}

func TestPersistConfirmError(t *testing.T) {
	fs := newFs(t, map[string]string{templatePath: "A=1\n", targetPath: "B=2\n"})
	p := NewPersister(fs, ConfirmFunc(func(string) (bool, error) { return false, errors.New("tty gone") }))

	_, err := p.Persist(templatePath, targetPath, nil)
	assert.EqualError(t, err, "cannot confirm overwrite: tty gone")
	assert.Equal(t, "B=2\n", readFile(t, fs, targetPath))
}
