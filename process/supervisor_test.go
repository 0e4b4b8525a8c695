package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rogpeppe/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-dev/stackup/ports"
)

// events records what happened, in order, across the fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeHandle struct {
	name   string
	pid    int
	events *events

	// ignore holds signals that don't make the process exit.
	ignore map[os.Signal]bool

	exitOnce sync.Once
	exitc    chan error

	mu      sync.Mutex
	signals []os.Signal
	waits   int
}

func (h *fakeHandle) Pid() int {
	return h.pid
}

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	h.mu.Unlock()
	h.events.add("signal %s %v", h.name, sig)
	if !h.ignore[sig] {
		h.exit(fmt.Errorf("signal: %v", sig))
	}
	return nil
}

func (h *fakeHandle) Wait() error {
	h.mu.Lock()
	h.waits++
	h.mu.Unlock()
	return <-h.exitc
}

func (h *fakeHandle) exit(err error) {
	h.exitOnce.Do(func() {
		h.exitc <- err
	})
}

func (h *fakeHandle) sent() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]os.Signal(nil), h.signals...)
}

type fakeLauncher struct {
	events *events
	ignore map[os.Signal]bool

	// prober, when set, learns which ports have been launched.
	prober *fakeProber

	// fail holds launch errors by process name.
	fail map[string]error

	// exitImmediately names processes that exit as soon as launched.
	exitImmediately map[string]error

	mu      sync.Mutex
	handles map[string]*fakeHandle
	nextPid int
}

func newFakeLauncher(ev *events) *fakeLauncher {
	return &fakeLauncher{
		events:  ev,
		handles: make(map[string]*fakeHandle),
		nextPid: 1000,
	}
}

func (l *fakeLauncher) Launch(ctx context.Context, spec *Spec) (Handle, error) {
	l.events.add("launch %s", spec.Name)
	if err := l.fail[spec.Name]; err != nil {
		return nil, err
	}
	if l.prober != nil {
		l.prober.launch(spec.Port)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextPid++
	h := &fakeHandle{
		name:   spec.Name,
		pid:    l.nextPid,
		events: l.events,
		ignore: l.ignore,
		exitc:  make(chan error, 1),
	}
	if err, ok := l.exitImmediately[spec.Name]; ok {
		h.exit(err)
	}
	l.handles[spec.Name] = h
	return h, nil
}

func (l *fakeLauncher) handle(name string) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[name]
}

// fakeProber reports the ports in listening as busy once a process using
// them has been launched, and the ports in taken as busy all along.
type fakeProber struct {
	events *events

	mu        sync.Mutex
	listening map[int]bool
	taken     map[int]bool
	launched  map[int]bool
}

func (p *fakeProber) launch(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.launched == nil {
		p.launched = make(map[int]bool)
	}
	p.launched[port] = true
}

func (p *fakeProber) Probe(ctx context.Context, host string, port int) ports.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.taken[port]:
		p.events.add("taken %d", port)
		return ports.Busy
	case p.listening[port] && p.launched[port]:
		p.events.add("ready %d", port)
		return ports.Busy
	}
	return ports.Free
}

func testProbe(prober ports.Prober) *ReadinessProbe {
	return &ReadinessProbe{
		Prober: prober,
		Host:   "127.0.0.1",
		Strategy: retry.Strategy{
			Delay:    time.Millisecond,
			MaxDelay: 5 * time.Millisecond,
			Factor:   2,
		},
	}
}

func stackSpecs() []*Spec {
	return []*Spec{{
		Name:         "backend",
		Command:      "python3",
		Port:         8000,
		StopSignals:  []os.Signal{syscall.SIGTERM},
		StopWait:     20 * time.Millisecond,
		ReadyTimeout: time.Second,
	}, {
		Name:         "frontend",
		Command:      "python3",
		Port:         8501,
		StopSignals:  []os.Signal{syscall.SIGTERM},
		StopWait:     20 * time.Millisecond,
		ReadyTimeout: time.Second,
	}}
}

type runResult struct {
	err error
}

func startSupervisor(t *testing.T, s *Supervisor) (cancel func(), result <-chan runResult) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan runResult, 1)
	go func() {
		c <- runResult{s.Run(ctx)}
	}()
	t.Cleanup(cancel)
	return cancel, c
}

func waitResult(t *testing.T, c <-chan runResult) error {
	select {
	case r := <-c:
		return r.err
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not return")
		return nil
	}
}

func states(s *Supervisor) map[string]State {
	m := make(map[string]State)
	for _, info := range s.Processes() {
		m[info.Name] = info.State
	}
	return m
}

func TestSupervisor_StartsInOrderAndStopsOnCancel(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true, 8501: true}}
	launcher.prober = prober
	s, err := NewSupervisor(stackSpecs(), launcher, testProbe(prober))
	require.NoError(t, err)
	assert.Equal(t, map[string]State{"backend": NotStarted, "frontend": NotStarted}, states(s))

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, s.WaitRunning(ctx))

	infos := s.Processes()
	require.Len(t, infos, 2)
	assert.Equal(t, "backend", infos[0].Name)
	assert.Equal(t, Running, infos[0].State)
	assert.Equal(t, 1001, infos[0].Pid)
	assert.Equal(t, "frontend", infos[1].Name)
	assert.Equal(t, Running, infos[1].State)
	assert.Equal(t, 1002, infos[1].Pid)
	assert.False(t, infos[1].StartedAt.IsZero())

	cancel()
	require.NoError(t, waitResult(t, result))

	assert.Equal(t, map[string]State{"backend": Stopped, "frontend": Stopped}, states(s))
	assert.Equal(t, []string{
		"launch backend",
		"ready 8000",
		"launch frontend",
		"ready 8501",
	}, ev.get()[:4])
	for _, name := range []string{"backend", "frontend"} {
		h := launcher.handle(name)
		assert.Equal(t, []os.Signal{syscall.SIGTERM}, h.sent(), name)
		assert.Equal(t, 1, h.waits, name)
	}
	for _, info := range s.Processes() {
		assert.Zero(t, info.Pid, "handle of %s not released", info.Name)
		assert.False(t, info.StoppedAt.IsZero())
	}
}

func TestSupervisor_ReadinessTimeout(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true}}
	launcher.prober = prober
	specs := stackSpecs()
	specs[1].ReadyTimeout = 30 * time.Millisecond
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	_, result := startSupervisor(t, s)
	err = waitResult(t, result)

	var readinessErr *ReadinessError
	require.True(t, errors.As(err, &readinessErr), "got %v", err)
	assert.Equal(t, "frontend", readinessErr.Name)
	assert.Equal(t, 8501, readinessErr.Port)
	assert.True(t, errors.Is(err, ErrReadinessTimeout))
	var launchErr *LaunchError
	assert.False(t, errors.As(err, &launchErr))

	// Everything that was started has been torn down.
	assert.Equal(t, map[string]State{"backend": Stopped, "frontend": Stopped}, states(s))
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, launcher.handle("backend").sent())
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, launcher.handle("frontend").sent())
}

func TestSupervisor_LaunchFailureSkipsRemaining(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	launcher.fail = map[string]error{"frontend": errors.New("exec: \"python3\": executable file not found in $PATH")}
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true, 8501: true, 9091: true}}
	launcher.prober = prober
	specs := append(stackSpecs(), &Spec{Name: "metrics", Command: "prometheus", Port: 9091})
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	_, result := startSupervisor(t, s)
	err = waitResult(t, result)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr), "got %v", err)
	assert.Equal(t, "frontend", launchErr.Name)
	assert.EqualError(t, err, `cannot launch frontend: exec: "python3": executable file not found in $PATH`)

	assert.Equal(t, map[string]State{
		"backend":  Stopped,
		"frontend": Stopped,
		"metrics":  NotStarted,
	}, states(s))
	assert.NotContains(t, ev.get(), "launch metrics")
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, launcher.handle("backend").sent())
}

func TestSupervisor_ExitDuringReadinessIsLaunchFailure(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	launcher.exitImmediately = map[string]error{"backend": errors.New("exit status 1")}
	prober := &fakeProber{events: ev}
	launcher.prober = prober
	s, err := NewSupervisor(stackSpecs(), launcher, testProbe(prober))
	require.NoError(t, err)

	_, result := startSupervisor(t, s)
	err = waitResult(t, result)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr), "got %v", err)
	assert.Equal(t, "backend", launchErr.Name)
	assert.True(t, errors.Is(err, ErrExited))
	assert.False(t, errors.Is(err, ErrReadinessTimeout))
	assert.Equal(t, map[string]State{"backend": Stopped, "frontend": NotStarted}, states(s))
	assert.Empty(t, launcher.handle("backend").sent())
}

func TestSupervisor_SettleDelayWithoutPort(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{events: ev}
	launcher.prober = prober
	specs := []*Spec{{
		Name:        "worker",
		Command:     "worker",
		SettleDelay: 5 * time.Millisecond,
	}}
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, s.WaitRunning(ctx))
	cancel()
	require.NoError(t, waitResult(t, result))
	assert.Equal(t, []string{"launch worker", "signal worker terminated"}, ev.get())
}

func TestSupervisor_CrashIsRecordedWithoutRestart(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true, 8501: true}}
	launcher.prober = prober
	s, err := NewSupervisor(stackSpecs(), launcher, testProbe(prober))
	require.NoError(t, err)

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, s.WaitRunning(ctx))

	launcher.handle("frontend").exit(errors.New("segfault"))
	require.True(t, <-s.notifier.waitFor(ctx.Done(), s.procs[1:], isStopped))

	infos := s.Processes()
	assert.Equal(t, Running, infos[0].State)
	assert.Equal(t, Stopped, infos[1].State)
	assert.Equal(t, -1, infos[1].ExitStatus)
	assert.Equal(t, "segfault", infos[1].Error)

	cancel()
	require.NoError(t, waitResult(t, result))
	assert.Empty(t, launcher.handle("frontend").sent())
	launches := 0
	for _, e := range ev.get() {
		if e == "launch frontend" {
			launches++
		}
	}
	assert.Equal(t, 1, launches)
}

func TestSupervisor_StopSignalEscalation(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	launcher.ignore = map[os.Signal]bool{syscall.SIGINT: true, syscall.SIGTERM: true}
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true}}
	launcher.prober = prober
	specs := []*Spec{{
		Name:        "backend",
		Command:     "python3",
		Port:        8000,
		StopSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		StopWait:    5 * time.Millisecond,
	}}
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, s.WaitRunning(ctx))
	cancel()
	require.NoError(t, waitResult(t, result))

	assert.Equal(t, []os.Signal{syscall.SIGINT, syscall.SIGTERM, os.Kill}, launcher.handle("backend").sent())
	assert.Equal(t, Stopped, s.Processes()[0].State)
}

func TestSupervisor_DefaultStopSequenceStartsWithTerm(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	launcher.ignore = map[os.Signal]bool{syscall.SIGTERM: true}
	prober := &fakeProber{events: ev, listening: map[int]bool{8000: true}}
	launcher.prober = prober
	specs := []*Spec{{
		Name:     "backend",
		Command:  "python3",
		Port:     8000,
		StopWait: 5 * time.Millisecond,
	}}
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, s.WaitRunning(ctx))
	cancel()
	require.NoError(t, waitResult(t, result))

	assert.Equal(t, []os.Signal{syscall.SIGTERM, os.Kill}, launcher.handle("backend").sent())
}

func TestSupervisor_PortTakenBeforeLaunch(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{
		events:    ev,
		listening: map[int]bool{8000: true, 8501: true},
		taken:     map[int]bool{8501: true},
	}
	launcher.prober = prober
	s, err := NewSupervisor(stackSpecs(), launcher, testProbe(prober))
	require.NoError(t, err)

	_, result := startSupervisor(t, s)
	err = waitResult(t, result)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr), "got %v", err)
	assert.Equal(t, "frontend", launchErr.Name)
	assert.True(t, errors.Is(err, ErrPortInUse))
	assert.EqualError(t, err, "cannot launch frontend: port 8501: port already in use")

	assert.NotContains(t, ev.get(), "launch frontend")
	assert.Nil(t, launcher.handle("frontend"))
	assert.Equal(t, map[string]State{"backend": Stopped, "frontend": Stopped}, states(s))
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, launcher.handle("backend").sent())
}

func TestSupervisor_CancelDuringReadiness(t *testing.T) {
	ev := &events{}
	launcher := newFakeLauncher(ev)
	prober := &fakeProber{events: ev}
	launcher.prober = prober
	specs := stackSpecs()
	specs[0].ReadyTimeout = time.Hour
	s, err := NewSupervisor(specs, launcher, testProbe(prober))
	require.NoError(t, err)

	cancel, result := startSupervisor(t, s)
	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.True(t, <-s.notifier.waitFor(ctx.Done(), s.procs[:1], func(st State) bool { return st == Starting }))
	cancel()
	require.NoError(t, waitResult(t, result))

	assert.Equal(t, map[string]State{"backend": Stopped, "frontend": NotStarted}, states(s))
	assert.Equal(t, ErrSupervisorStopped, s.WaitRunning(context.Background()))
}

func TestNewSupervisor_DuplicateName(t *testing.T) {
	specs := append(stackSpecs(), &Spec{Name: "backend", Command: "true"})
	_, err := NewSupervisor(specs, newFakeLauncher(&events{}), testProbe(&fakeProber{}))
	assert.EqualError(t, err, `duplicate process name "backend"`)
}

func TestSpec_StopSignalsEndWithKill(t *testing.T) {
	s := &Spec{}
	assert.Equal(t, []os.Signal{syscall.SIGTERM, os.Kill}, s.stopSignals())
	s.StopSignals = []os.Signal{syscall.SIGTERM, os.Kill}
	assert.Equal(t, []os.Signal{syscall.SIGTERM, os.Kill}, s.stopSignals())
	assert.Equal(t, DefaultStopWait, s.stopWait())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NotStarted", NotStarted.String())
	assert.Equal(t, "Stopping", Stopping.String())
	assert.Equal(t, "State(42)", State(42).String())
}
