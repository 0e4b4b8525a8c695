package process

import (
	"context"
	"fmt"
	"time"

	"github.com/rogpeppe/retry"
	"go.uber.org/zap"

	"github.com/stackup-dev/stackup/ports"
)

// DefaultReadyTimeout bounds the readiness check when Spec.ReadyTimeout is
// zero.
const DefaultReadyTimeout = 30 * time.Second

// ReadinessProbe decides when a launched process is ready by polling its
// port until something listens there.
type ReadinessProbe struct {
	Prober ports.Prober
	Host   string

	// Strategy is the polling schedule. Its MaxDuration is replaced by the
	// process's ReadyTimeout.
	Strategy retry.Strategy
}

// NewReadinessProbe returns a probe polling host with the given prober on
// a short capped backoff.
func NewReadinessProbe(prober ports.Prober, host string) *ReadinessProbe {
	return &ReadinessProbe{
		Prober: prober,
		Host:   host,
		Strategy: retry.Strategy{
			Delay:    100 * time.Millisecond,
			MaxDelay: time.Second,
			Factor:   2,
		},
	}
}

// checkFree reports ErrPortInUse when something already listens on the port
// of spec.
func (r *ReadinessProbe) checkFree(ctx context.Context, spec *Spec) error {
	if spec.Port == 0 {
		return nil
	}
	if r.Prober.Probe(ctx, r.Host, spec.Port) == ports.Busy {
		return fmt.Errorf("port %d: %w", spec.Port, ErrPortInUse)
	}
	return nil
}

// wait blocks until the process described by spec is ready. It returns
// ErrReadinessTimeout when the retry schedule is exhausted, ErrExited when
// exited is closed first, or the context's error.
func (r *ReadinessProbe) wait(ctx context.Context, spec *Spec, exited <-chan struct{}, zlog *zap.Logger) error {
	if spec.Port == 0 {
		zlog.Debug("no port to probe; waiting to settle", zap.Duration("delay", spec.SettleDelay))
		t := time.NewTimer(spec.SettleDelay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-exited:
			return ErrExited
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-exited:
			cancel()
		case <-pollCtx.Done():
		}
	}()

	strategy := r.Strategy
	strategy.MaxDuration = spec.ReadyTimeout
	if strategy.MaxDuration <= 0 {
		strategy.MaxDuration = DefaultReadyTimeout
	}
	for i := strategy.Start(); i.Next(pollCtx.Done()); {
		zlog.Debug("probing port", zap.String("host", r.Host), zap.Int("port", spec.Port))
		if r.Prober.Probe(pollCtx, r.Host, spec.Port) == ports.Busy {
			return nil
		}
	}
	select {
	case <-exited:
		return ErrExited
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrReadinessTimeout
}
