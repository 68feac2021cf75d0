package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/webfetch/pkg/metrics"
	"github.com/Sriram-PR/webfetch/pkg/utils"
)

// Token is one occupied global slot plus one occupied host slot.
// Release is safe to call more than once; only the first call returns the slots.
type Token struct {
	gate     *Gate
	host     string
	released atomic.Bool
}

// Host returns the host this token's slot belongs to.
func (t *Token) Host() string { return t.host }

// Release returns both slots to the gate.
func (t *Token) Release() {
	if t == nil || t.gate == nil {
		return
	}
	t.gate.Release(t)
}

// Gate enforces a global in-flight ceiling and an independent per-host ceiling.
// The global ceiling is absolute: a per-host limit above it is clamped.
type Gate struct {
	global     *semaphore.Weighted
	hosts      *HostSemaphorePool
	maxGlobal int
	inFlight  atomic.Int64
	peak      atomic.Int64
	log       *logrus.Entry
}

// NewGate creates a gate. Both limits must be positive.
func NewGate(maxConcurrent, maxPerHost int, hostIdleTTL time.Duration, log *logrus.Entry) (*Gate, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max_concurrent must be > 0 (got %d)", utils.ErrConfigValidation, maxConcurrent)
	}
	if maxPerHost <= 0 {
		return nil, fmt.Errorf("%w: max_per_host must be > 0 (got %d)", utils.ErrConfigValidation, maxPerHost)
	}
	if maxPerHost > maxConcurrent {
		log.WithFields(logrus.Fields{"max_per_host": maxPerHost, "max_concurrent": maxConcurrent}).
			Debug("Per-host limit exceeds global limit; clamping")
		maxPerHost = maxConcurrent
	}
	return &Gate{
		global:    semaphore.NewWeighted(int64(maxConcurrent)),
		hosts:     NewHostSemaphorePool(maxPerHost, hostIdleTTL, log),
		maxGlobal: maxConcurrent,
		log:       log,
	}, nil
}

// Acquire blocks until both a host slot and a global slot are free. The host slot is
// taken first so that a request queued behind a busy host does not pin a global slot.
// On ctx expiry nothing is held and the ctx error is returned.
func (g *Gate) Acquire(ctx context.Context, host string) (*Token, error) {
	if err := g.hosts.Acquire(ctx, host); err != nil {
		return nil, err
	}
	if err := g.global.Acquire(ctx, 1); err != nil {
		g.hosts.Release(host)
		return nil, err
	}

	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.InFlight.Inc()
	return &Token{gate: g, host: host}, nil
}

// Release returns the token's slots. Calling it again for the same token is a no-op.
func (g *Gate) Release(t *Token) {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	g.inFlight.Add(-1)
	metrics.InFlight.Dec()
	g.global.Release(1)
	g.hosts.Release(t.host)
}

// InFlight returns the number of currently held tokens.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// HostInFlight returns the number of held tokens for host.
func (g *Gate) HostInFlight(host string) int { return g.hosts.InUse(host) }

// Peak returns the highest InFlight value observed since the gate was created.
func (g *Gate) Peak() int { return int(g.peak.Load()) }

// Limits returns the effective global and per-host ceilings.
func (g *Gate) Limits() (global, perHost int) { return g.maxGlobal, g.hosts.Limit() }

// TrackedHosts returns how many hosts currently have per-host state.
func (g *Gate) TrackedHosts() int { return g.hosts.Len() }
