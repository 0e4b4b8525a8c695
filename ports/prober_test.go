package ports

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// freePort returns a port that nothing is listening on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestTCPProberBusy(t *testing.T) {
	port := listen(t)
	p := NewTCPProber(time.Second)
	assert.Equal(t, Busy, p.Probe(context.Background(), "127.0.0.1", port))
}

func TestTCPProberFree(t *testing.T) {
	port := freePort(t)
	p := NewTCPProber(time.Second)
	assert.Equal(t, Free, p.Probe(context.Background(), "127.0.0.1", port))
}

func TestTCPProberOutOfRange(t *testing.T) {
	p := NewTCPProber(0)
	assert.Equal(t, DefaultProbeTimeout, p.Timeout)
	assert.Equal(t, Busy, p.Probe(context.Background(), "127.0.0.1", 0))
	assert.Equal(t, Busy, p.Probe(context.Background(), "127.0.0.1", 65536))
}

func TestProbeAll(t *testing.T) {
	busy := listen(t)
	free := freePort(t)
	results := ProbeAll(context.Background(), NewTCPProber(time.Second), "127.0.0.1", []ServicePortSpec{
		{Name: "A", DefaultPort: busy},
		{Name: "B", DefaultPort: free},
	})
	assert.Equal(t, []PortProbeResult{
		{Name: "A", Port: busy, Available: false},
		{Name: "B", Port: free, Available: true},
	}, results)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "FREE", Free.String())
	assert.Equal(t, "BUSY", Busy.String())
	assert.Equal(t, "Status(7)", Status(7).String())
}
