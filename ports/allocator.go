package ports

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/pkg/cast"
)

// DefaultMaxCandidates is the number of ports above a busy default that are
// tried before giving up.
const DefaultMaxCandidates = 10

// Allocator resolves port conflicts by bounded upward probing.
type Allocator struct {
	prober        Prober
	host          string
	maxCandidates int
}

// NewAllocator returns an Allocator probing host with p. A non-positive
// maxCandidates selects DefaultMaxCandidates.
func NewAllocator(p Prober, host string, maxCandidates int) *Allocator {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Allocator{
		prober:        p,
		host:          host,
		maxCandidates: maxCandidates,
	}
}

// Allocate assigns a port to every spec, in order.
//
// A Free default is kept. A Busy default is replaced by the lowest Free port
// among the next maxCandidates ports, with a RemapRecord. If none is Free the
// default is kept anyway and a Warning is returned; allocation never fails.
// Ports assigned to earlier specs count as Busy for later ones.
func (a *Allocator) Allocate(ctx context.Context, specs []ServicePortSpec) (Assignment, []RemapRecord, []Warning) {
	assignment := make(Assignment, len(specs))
	claimed := make(map[int]string)
	var (
		remaps   []RemapRecord
		warnings []Warning
	)
	for _, spec := range specs {
		zlog := zap.L().With(zap.String("service", spec.Name))
		port, ok := a.resolve(ctx, spec.DefaultPort, claimed)
		switch {
		case !ok:
			port = spec.DefaultPort
			msg := fmt.Sprintf("port %d is in use and no alternative found in %d-%d",
				spec.DefaultPort, spec.DefaultPort+1, spec.DefaultPort+a.maxCandidates)
			if owner, dup := claimed[port]; dup {
				msg += fmt.Sprintf(" (also assigned to %s)", owner)
			}
			warnings = append(warnings, Warning{Name: spec.Name, Port: port, Msg: msg})
			zlog.Warn("Unresolved port conflict", zap.Int("port", port))
		case port != spec.DefaultPort:
			remaps = append(remaps, RemapRecord{
				Name:         spec.Name,
				OriginalPort: spec.DefaultPort,
				NewPort:      port,
			})
			zlog.Info("Port in use, remapped", zap.Int("from", spec.DefaultPort), zap.Int("to", port))
		default:
			zlog.Debug("Port available", zap.Int("port", port))
		}
		assignment[spec.Name] = port
		if _, dup := claimed[port]; !dup {
			claimed[port] = spec.Name
		}
	}
	return assignment, remaps, warnings
}

// resolve returns the first usable port starting at def, or false if def and
// all candidates are taken.
func (a *Allocator) resolve(ctx context.Context, def int, claimed map[int]string) (int, bool) {
	if a.usable(ctx, def, claimed) {
		return def, true
	}
	for port := def + 1; port <= def+a.maxCandidates; port++ {
		if port > cast.MaxPort {
			break
		}
		if a.usable(ctx, port, claimed) {
			return port, true
		}
	}
	return 0, false
}

func (a *Allocator) usable(ctx context.Context, port int, claimed map[int]string) bool {
	if _, ok := claimed[port]; ok {
		return false
	}
	return a.prober.Probe(ctx, a.host, port) == Free
}
