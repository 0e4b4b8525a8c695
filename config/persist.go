package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BackupSuffix is appended to the target path to name its one-time backup.
const BackupSuffix = ".backup"

// MissingTemplateError is returned by Persist when the template document
// does not exist. Nothing has been written when it is returned.
type MissingTemplateError struct {
	Path string
	Err  error
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("template %q not found", e.Path)
}

func (e *MissingTemplateError) Unwrap() error {
	return e.Err
}

// PersistResult describes what Persist did.
type PersistResult struct {
	Target string `json:"target" yaml:"target"`
	// Written is true when the target was replaced.
	Written bool `json:"written" yaml:"written"`
	// Declined is true when the user refused to overwrite the target.
	Declined bool `json:"declined" yaml:"declined"`
	// Unchanged is true when the target already held the merged content.
	Unchanged bool `json:"unchanged" yaml:"unchanged"`
	// BackupPath is set when a backup was created by this call.
	BackupPath string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	// Appended lists keys the template did not assign, added at the end.
	Appended []string `json:"appended,omitempty" yaml:"appended,omitempty"`
}

// Persister merges values into a template document and writes the result
// over a target document.
type Persister struct {
	fs      afero.Afero
	confirm Confirmer
	hash    hash.Hash
}

// NewPersister returns a Persister writing to fs and consulting confirm
// before replacing a target that has content.
func NewPersister(fs afero.Fs, confirm Confirmer) *Persister {
	return &Persister{
		fs:      afero.Afero{Fs: fs},
		confirm: confirm,
		hash:    sha256.New(),
	}
}

// Persist parses templatePath, merges values into it and writes the merged
// document to targetPath.
//
// When targetPath already has content the Confirmer is asked first. A
// refusal leaves the target alone and is not an error. When there is no one
// to ask (ErrUnattended), the existing content is copied to
// targetPath+BackupSuffix, unless that backup already exists, and the target
// is overwritten.
func (p *Persister) Persist(templatePath, targetPath string, values map[string]string) (*PersistResult, error) {
	tmpl, err := p.fs.ReadFile(templatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingTemplateError{Path: templatePath, Err: err}
		}
		return nil, fmt.Errorf("cannot read template: %w", err)
	}
	doc := Parse(tmpl)
	res := &PersistResult{Target: targetPath}
	res.Appended = doc.Merge(values)
	for _, key := range res.Appended {
		doc.Append(key, values[key])
	}
	content := doc.Bytes()

	existing, err := p.fs.ReadFile(targetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("cannot read target: %w", err)
	}

	if len(existing) > 0 {
		if bytes.Equal(p.sum(existing), p.sum(content)) {
			res.Unchanged = true
			return res, nil
		}
		ok, err := p.confirm.Confirm(fmt.Sprintf("%s already exists. Overwrite?", targetPath))
		switch {
		case errors.Is(err, ErrUnattended):
			zap.L().Info("Non-interactive mode, overwriting", zap.String("target", targetPath))
			backup, err := p.backup(targetPath, existing)
			if err != nil {
				return nil, err
			}
			res.BackupPath = backup
		case err != nil:
			return nil, fmt.Errorf("cannot confirm overwrite: %w", err)
		case !ok:
			res.Declined = true
			return res, nil
		}
	}

	if err := p.writeAtomic(targetPath, content); err != nil {
		return nil, err
	}
	res.Written = true
	return res, nil
}

// backup writes content to the backup path of target unless a backup
// already exists. It returns the path written, or "" if none was.
func (p *Persister) backup(target string, content []byte) (string, error) {
	path := target + BackupSuffix
	if ok, err := p.fs.Exists(path); err != nil {
		return "", fmt.Errorf("exists error: %q: %w", path, err)
	} else if ok {
		zap.L().Debug("Backup already present, keeping it", zap.String("backup", path))
		return "", nil
	}
	if err := p.fs.WriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("cannot write backup %q: %w", path, err)
	}
	zap.L().Info("Backed up existing file", zap.String("from", target), zap.String("to", path))
	return path, nil
}

// writeAtomic replaces path with content by renaming a fully written
// temporary file from the same directory over it.
func (p *Persister) writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if ok, err := p.fs.DirExists(dir); err != nil {
		return fmt.Errorf("DirExists error: %q: %w", dir, err)
	} else if !ok {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("unable to create dir %q: %w", dir, err)
		}
	}
	mode := os.FileMode(0o644)
	if info, err := p.fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := p.fs.TempFile(dir, "."+filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("cannot create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = p.fs.Chmod(tmpName, mode)
	}
	if err == nil {
		err = p.fs.Rename(tmpName, path)
	}
	if err != nil {
		_ = p.fs.Remove(tmpName)
		return fmt.Errorf("file write: unable to write file %q: %w", path, err)
	}
	return nil
}

func (p *Persister) sum(data []byte) []byte {
	p.hash.Reset()
	_, _ = io.Copy(p.hash, bytes.NewReader(data))
	return p.hash.Sum(nil)
}
