package ports

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/stackup-dev/stackup/pkg/cast"
)

// DefaultProbeTimeout bounds a single probe against a filtered or
// unreachable host.
const DefaultProbeTimeout = time.Second

// Status is the observed bindability of a port at probe time.
type Status int

const (
	Free Status = iota
	Busy
)

func (s Status) String() string {
	switch s {
	case Free:
		return "FREE"
	case Busy:
		return "BUSY"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Prober tests one host/port pair.
type Prober interface {
	Probe(ctx context.Context, host string, port int) Status
}

// TCPProber probes by dialing. A successful connection means something is
// listening; refusal, timeout and every other dial error mean Free.
type TCPProber struct {
	Timeout time.Duration
}

// NewTCPProber returns a TCPProber using timeout, or DefaultProbeTimeout if
// timeout is not positive.
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProber{Timeout: timeout}
}

// Probe implements Prober. Ports outside the valid range are reported Busy so
// that they are never assigned.
func (p *TCPProber) Probe(ctx context.Context, host string, port int) Status {
	if port < cast.MinPort || port > cast.MaxPort {
		return Busy
	}
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return Free
	}
	_ = conn.Close()
	return Busy
}

// PortProbeResult records the outcome of probing one port.
type PortProbeResult struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Port        int    `json:"port" yaml:"port"`
	Available   bool   `json:"available" yaml:"available"`
}

// ProbeAll probes the default port of every spec, sequentially.
func ProbeAll(ctx context.Context, p Prober, host string, specs []ServicePortSpec) []PortProbeResult {
	results := make([]PortProbeResult, 0, len(specs))
	for _, spec := range specs {
		results = append(results, PortProbeResult{
			Name:        spec.Name,
			Description: spec.Description,
			Port:        spec.DefaultPort,
			Available:   p.Probe(ctx, host, spec.DefaultPort) == Free,
		})
	}
	return results
}
