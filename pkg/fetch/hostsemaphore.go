package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// hostEntry tracks a single host's semaphore and its usage state.
type hostEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // number of held + waiting permits
	held        int64     // number of held permits only
	lastUsed    time.Time // creation, last Release, or last abandoned Acquire
}

// HostSemaphorePool manages per-host semaphores. Entries are created lazily on the
// first request to a host and dropped once no permit is held or awaited.
// With idleTTL == 0 an entry is dropped on its last Release; otherwise it is kept
// for idleTTL and swept on a later Acquire.
type HostSemaphorePool struct {
	entries   map[string]*hostEntry
	mu        sync.Mutex
	limit     int64
	idleTTL   time.Duration
	lastSweep time.Time
	log       *logrus.Entry
}

// NewHostSemaphorePool creates a new pool with the given per-host concurrency limit.
func NewHostSemaphorePool(maxPerHost int, idleTTL time.Duration, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("max_per_host invalid or zero, defaulting to %d", limit)
	}
	if idleTTL < 0 {
		idleTTL = 0
	}
	return &HostSemaphorePool{
		entries:   make(map[string]*hostEntry),
		limit:     limit,
		idleTTL:   idleTTL,
		lastSweep: time.Now(),
		log:       log,
	}
}

// Acquire gets or creates a host semaphore and acquires one permit.
// Blocks until the permit is available or ctx is cancelled.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string) error {
	p.mu.Lock()
	if p.idleTTL > 0 && time.Since(p.lastSweep) >= p.idleTTL {
		p.evictIdleLocked(p.idleTTL)
	}
	entry, exists := p.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(p.limit), lastUsed: time.Now()}
		p.entries[host] = entry
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created new host semaphore")
	}
	entry.activeCount++
	p.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		entry.activeCount--
		entry.lastUsed = time.Now()
		p.dropIfUnusedLocked(host, entry)
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	entry.held++
	p.mu.Unlock()
	return nil
}

// Release releases one permit for the given host.
func (p *HostSemaphorePool) Release(host string) {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists || entry.held == 0 {
		p.mu.Unlock()
		p.log.Errorf("hostsemaphore: Release called without a held permit for host: %s", host)
		return
	}
	entry.activeCount--
	entry.held--
	entry.lastUsed = time.Now()
	p.dropIfUnusedLocked(host, entry)
	p.mu.Unlock()

	entry.sem.Release(1)
}

// dropIfUnusedLocked removes an entry nobody holds or waits on when no idle
// retention is configured. Caller holds p.mu.
func (p *HostSemaphorePool) dropIfUnusedLocked(host string, entry *hostEntry) {
	if p.idleTTL == 0 && entry.activeCount == 0 && p.entries[host] == entry {
		delete(p.entries, host)
	}
}

// evictIdleLocked removes entries that have been idle longer than maxIdle. Caller holds p.mu.
func (p *HostSemaphorePool) evictIdleLocked(maxIdle time.Duration) {
	now := time.Now()
	p.lastSweep = now
	evicted := 0
	for host, entry := range p.entries {
		if entry.activeCount == 0 && now.Sub(entry.lastUsed) >= maxIdle {
			delete(p.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(p.entries))
	}
}

// InUse returns the number of permits currently held for host.
func (p *HostSemaphorePool) InUse(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[host]; ok {
		return int(entry.held)
	}
	return 0
}

// Len returns the current number of tracked hosts.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Limit returns the per-host permit count.
func (p *HostSemaphorePool) Limit() int {
	return int(p.limit)
}
