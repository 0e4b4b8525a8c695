package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// fileLogger writes program output to a file, rotating it when it grows
// too large.
type fileLogger struct {
	fs       afero.Fs
	baseName string
	maxSize  int64
	backups  int
	fileSize int64
	file     afero.File
}

// newFileLogger returns a writer to the named file that limits the file
// size to about maxSize bytes and keeps up to backups rotated copies.
func newFileLogger(fs afero.Fs, name string, maxSize int64, backups int) (io.WriteCloser, error) {
	l := &fileLogger{
		fs:       fs,
		baseName: name,
		maxSize:  maxSize,
		backups:  backups,
	}
	if err := l.openFile(false); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *fileLogger) openFile(trunc bool) error {
	name := l.name(0)
	info, err := l.fs.Stat(name)
	if trunc || err != nil {
		l.fileSize = 0
		l.file, err = l.fs.Create(name)
		return err
	}
	l.fileSize = info.Size()
	l.file, err = l.fs.OpenFile(name, os.O_WRONLY|os.O_APPEND, 0o666)
	return err
}

func (l *fileLogger) rotate() {
	for i := l.backups - 1; i >= 0; i-- {
		if _, err := l.fs.Stat(l.name(i)); err != nil {
			continue
		}
		if err := l.fs.Rename(l.name(i), l.name(i+1)); err != nil {
			zap.L().Error("cannot rename backup log file", zap.Error(err), zap.String("from", l.name(i)), zap.String("to", l.name(i+1)))
		}
	}
}

func (l *fileLogger) name(n int) string {
	if n == 0 {
		return l.baseName
	}
	return fmt.Sprintf("%s.%d", l.baseName, n)
}

func (l *fileLogger) Write(p []byte) (int, error) {
	if l.file == nil {
		return 0, fmt.Errorf("log file %s is closed", l.baseName)
	}
	n, err := l.file.Write(p)
	l.fileSize += int64(n)
	if l.fileSize >= l.maxSize {
		l.Close()
		l.rotate()
		if err := l.openFile(true); err != nil {
			zap.L().Error("cannot open fresh log file", zap.Error(err))
		}
	}
	return n, err
}

func (l *fileLogger) Close() error {
	if file := l.file; file != nil {
		l.file = nil
		return file.Close()
	}
	return nil
}
