package stackup

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/stackup-dev/stackup/config"
)

// EnsureEnv makes sure the env document at target exists, creating it from
// template when it doesn't. It reports whether it created the document.
func EnsureEnv(fs afero.Fs, template, target string) (bool, error) {
	if ok, err := afero.Exists(fs, target); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	// There's nothing to overwrite, so nobody needs to be asked.
	p := config.NewPersister(fs, config.AlwaysConfirm)
	if _, err := p.Persist(template, target, nil); err != nil {
		return false, err
	}
	return true, nil
}

// LoadEnv reads and parses the env document at path.
func LoadEnv(fs afero.Fs, path string) (*config.Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s not found: %w", path, err)
		}
		return nil, err
	}
	return config.Parse(data), nil
}
