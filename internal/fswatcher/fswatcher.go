// Package fswatcher reports changes to selected files in a directory.
package fswatcher

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event describes a change to a watched file.
type Event struct {
	Path string
	Op   Op
}

func (e Event) String() string {
	return fmt.Sprintf("%v %q", e.Op, e.Path)
}

// Op represents a kind of event that can happen to a file.
type Op int

const (
	_ = Op(iota)
	Created
	Changed
	Removed
)

func (op Op) String() string {
	switch op {
	case Created:
		return "Created"
	case Changed:
		return "Changed"
	case Removed:
		return "Removed"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// FSWatcher watches the files of a single directory.
type FSWatcher struct {
	eventCh chan Event
	mw      *fsnotify.Watcher
	closed  chan struct{}
	done    chan struct{}
}

// New returns a watcher for the files directly inside dir for which
// selectPath returns true. If selectPath is nil, all files are selected.
//
// The directory is watched rather than the files themselves so that files
// replaced by rename, or created after the watch starts, are still seen.
//
// The returned watcher should be closed by calling Close after use.
func New(dir string, selectPath func(path string) bool) (*FSWatcher, error) {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("provided directory %q must be an existing directory", dir)
	}
	if selectPath == nil {
		selectPath = func(string) bool {
			return true
		}
	}
	mw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create new watcher: %v", err)
	}
	if err := mw.Add(dir); err != nil {
		mw.Close()
		return nil, fmt.Errorf("cannot watch %q: %w", dir, err)
	}
	w := &FSWatcher{
		eventCh: make(chan Event),
		mw:      mw,
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run(selectPath)
	return w, nil
}

// NewFile returns a watcher reporting changes to the single file at path.
func NewFile(path string) (*FSWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return New(filepath.Dir(abs), func(p string) bool {
		return p == abs
	})
}

func (w *FSWatcher) run(selectPath func(string) bool) {
	defer close(w.eventCh)
	defer close(w.done)
	for {
		select {
		case e, ok := <-w.mw.Events:
			if !ok {
				return
			}
			path, err := filepath.Abs(e.Name)
			if err != nil || !selectPath(path) {
				continue
			}
			switch {
			// fsnotify reports a rename as a Rename event for the old
			// name followed by a Create event for the new one.
			case e.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
				w.send(Event{path, Removed})
			case e.Op&fsnotify.Create != 0:
				w.send(Event{path, Created})
			case e.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
				if fi, err := os.Stat(path); err != nil || fi.IsDir() {
					continue
				}
				w.send(Event{path, Changed})
			}
		case _, ok := <-w.mw.Errors:
			if !ok {
				return
			}
		case <-w.closed:
			return
		}
	}
}

func (w *FSWatcher) send(e Event) {
	select {
	case w.eventCh <- e:
	case <-w.closed:
	}
}

// Close closes the watcher. Nothing more will be sent
// on the Events channel after this returns.
func (w *FSWatcher) Close() error {
	close(w.closed)
	err := w.mw.Close()
	<-w.done
	return err
}

// Events returns a channel on which update events can be received.
func (w *FSWatcher) Events() <-chan Event {
	return w.eventCh
}
