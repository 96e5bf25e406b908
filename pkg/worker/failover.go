package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/snapdoc/snapdoc/pkg/logger"
)

const (
	// failoverHold is how long the remote is benched after a transport
	// failure before the first recovery probe.
	failoverHold = time.Minute
	// failoverProbeInterval paces probes while the remote stays down.
	failoverProbeInterval = 30 * time.Second
	failoverProbeTimeout  = 3 * time.Second
)

// Failover chains a remote worker with the in-process pipeline. Batches
// go to the remote until it proves unreachable, then run locally while
// the remote is probed back to health. Batch-level failures (an
// oversized document, say) are answers, not outages; only transport
// errors trip the switch.
type Failover struct {
	remote Invoker
	local  Invoker
	probe  func(context.Context) error

	mu          sync.Mutex
	degraded    bool
	degradedAt  time.Time
	nextProbeAt time.Time
}

func NewFailover(remote *Client, local Local) *Failover {
	return &Failover{
		remote: remote,
		local:  local,
		probe:  remote.Health,
	}
}

func (f *Failover) Invoke(ctx context.Context, req Request) (Response, error) {
	if f.remoteEligible(ctx, time.Now()) {
		resp, err := f.remote.Invoke(ctx, req)
		if err == nil || !errors.Is(err, ErrTransportUnavailable) {
			return resp, err
		}
		f.markDegraded(time.Now())
		logger.WarnCF("worker", "Remote worker unreachable, running batch locally", map[string]interface{}{
			"user":  req.UserKey,
			"error": err.Error(),
		})
	}
	return f.local.Invoke(ctx, req)
}

// remoteEligible reports whether this batch should try the remote. While
// degraded it also runs the due recovery probe, so a healthy remote takes
// back traffic without operator action.
func (f *Failover) remoteEligible(ctx context.Context, now time.Time) bool {
	f.mu.Lock()
	if !f.degraded {
		f.mu.Unlock()
		return true
	}
	if now.Before(f.nextProbeAt) {
		f.mu.Unlock()
		return false
	}
	f.nextProbeAt = now.Add(failoverProbeInterval)
	f.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, failoverProbeTimeout)
	defer cancel()
	if err := f.probe(probeCtx); err != nil {
		logger.DebugCF("worker", "Remote worker still down", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	f.mu.Lock()
	downFor := now.Sub(f.degradedAt)
	f.degraded = false
	f.mu.Unlock()
	logger.InfoCF("worker", "Remote worker healthy again", map[string]interface{}{
		"down_for": downFor.String(),
	})
	return true
}

func (f *Failover) markDegraded(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		f.degraded = true
		f.degradedAt = now
	}
	f.nextProbeAt = now.Add(failoverHold)
}

// Degraded reports whether batches are currently running locally.
func (f *Failover) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}
