// Package logger handles the stdout/stderr output of supervised programs.
package logger

import (
	"io"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultMaxBacklog is the number of output bytes kept in memory for each
// program when Params.MaxBacklog is zero.
const DefaultMaxBacklog = 64 * 1024

// Params holds the parameters for New.
type Params struct {
	// Prefix is prepended to every line written to Output.
	Prefix string

	// Output receives the prefixed program output. Nil discards it.
	Output io.Writer

	// Fs holds the filesystem for LogFile. Defaults to the OS filesystem.
	Fs afero.Fs

	// LogFile optionally names a file receiving the raw program output.
	LogFile string

	// MaxFileSize is the size at which LogFile is rotated.
	MaxFileSize int64

	// Backups is the number of rotated files kept.
	Backups int

	// MaxBacklog bounds the in-memory copy of the output used by Tail.
	MaxBacklog int
}

// Logger receives the output of a single program and fans it out to the
// configured destinations.
type Logger struct {
	mu      sync.Mutex
	backlog *ringBuffer
	out     *compositeWriter
}

// New returns a Logger for the given parameters. A log file that cannot be
// opened is reported and skipped; the other destinations still work.
func New(p Params) *Logger {
	maxBacklog := p.MaxBacklog
	if maxBacklog <= 0 {
		maxBacklog = DefaultMaxBacklog
	}
	l := &Logger{
		backlog: &ringBuffer{maxSize: maxBacklog},
		out:     newCompositeWriter(),
	}
	if p.Output != nil {
		l.out.add(newPrefixWriter(p.Output, p.Prefix))
	}
	if p.LogFile != "" {
		fs := p.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		maxSize := p.MaxFileSize
		if maxSize <= 0 {
			maxSize = 50 * 1024 * 1024
		}
		f, err := newFileLogger(fs, p.LogFile, maxSize, p.Backups)
		if err != nil {
			zap.L().Error("cannot open log file", zap.String("file", p.LogFile), zap.Error(err))
		} else {
			l.out.add(f)
		}
	}
	return l
}

// Write implements io.Writer.
func (l *Logger) Write(buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backlog.Write(buf)
	l.out.Write(buf)
	return len(buf), nil
}

// Tail returns at most the last n lines of output still held in the backlog.
func (l *Logger) Tail(n int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, data := l.backlog.bytes()
	return append([]byte(nil), lastNLines(data, n)...)
}

// Close flushes any partial line and closes the destinations.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
