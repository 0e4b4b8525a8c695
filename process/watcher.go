package process

import (
	"sync"
)

// stateNotifier lets goroutines wait for processes to reach a state
// without polling them.
type stateNotifier struct {
	changed sync.Cond
	mu      sync.RWMutex
	closed  bool
	state   map[*process]State
}

func newStateNotifier() *stateNotifier {
	w := &stateNotifier{
		state: make(map[*process]State),
	}
	w.changed.L = w.mu.RLocker()
	return w
}

// close causes all current and future waiters to give up.
func (w *stateNotifier) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.changed.Broadcast()
}

// setState records the given state for a process and wakes any waiters
// if it changed.
func (w *stateNotifier) setState(p *process, state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if current, ok := w.state[p]; !ok || current != state {
		w.state[p] = state
		w.changed.Broadcast()
	}
}

// waitFor waits until every one of procs is in a state satisfying desired.
// It sends true on the returned channel when that happens, or false if w
// is closed first. When cancel is closed the wait is abandoned and nothing
// is sent.
func (w *stateNotifier) waitFor(cancel <-chan struct{}, procs []*process, desired func(State) bool) <-chan bool {
	c := make(chan bool, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			// Wake the waiter below so that it notices.
			w.mu.Lock()
			w.changed.Broadcast()
			w.mu.Unlock()
		case <-done:
		}
	}()
	go func() {
		defer close(done)
		w.mu.RLock()
		defer w.mu.RUnlock()
		for {
			if w.allStatesSatisfy(procs, desired) {
				c <- true
				return
			}
			if w.closed {
				c <- false
				return
			}
			select {
			case <-cancel:
				return
			default:
			}
			w.changed.Wait()
		}
	}()
	return c
}

func (w *stateNotifier) allStatesSatisfy(procs []*process, f func(State) bool) bool {
	for _, p := range procs {
		if !f(w.state[p]) {
			return false
		}
	}
	return true
}
