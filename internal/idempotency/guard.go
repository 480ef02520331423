// Package idempotency claims gateway session ids so that concurrent or
// repeated deliveries of the same payment are applied at most once.
package idempotency

import (
	"context"
	"sync"
	"time"
)

type ClaimState int

const (
	// Acquired means the caller owns the session and must Complete or Release it.
	Acquired ClaimState = iota
	// InFlight means another delivery holds the claim right now.
	InFlight
	// Done means the session was already applied.
	Done
)

func (s ClaimState) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	}
	return "unknown"
}

type Guard interface {
	Claim(ctx context.Context, sessionID string) (ClaimState, error)
	Complete(ctx context.Context, sessionID string) error
	Release(ctx context.Context, sessionID string) error
}

const (
	DefaultLockTTL = 5 * time.Minute
	// Stripe retries failed deliveries for up to three days.
	DefaultDoneTTL = 72 * time.Hour
)

const sweepThreshold = 1024

type entry struct {
	done    bool
	expires time.Time
}

// MemoryGuard is a process-local Guard. It is only correct when a single
// process receives the webhook.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]entry
	lockTTL time.Duration
	doneTTL time.Duration
	now     func() time.Time
}

func NewMemoryGuard(lockTTL, doneTTL time.Duration) *MemoryGuard {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}
	return &MemoryGuard{
		entries: make(map[string]entry),
		lockTTL: lockTTL,
		doneTTL: doneTTL,
		now:     time.Now,
	}
}

func (g *MemoryGuard) Claim(_ context.Context, sessionID string) (ClaimState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if len(g.entries) >= sweepThreshold {
		g.sweep(now)
	}
	if e, ok := g.entries[sessionID]; ok && now.Before(e.expires) {
		if e.done {
			return Done, nil
		}
		return InFlight, nil
	}
	g.entries[sessionID] = entry{expires: now.Add(g.lockTTL)}
	return Acquired, nil
}

// sweep drops expired entries. Callers hold g.mu.
func (g *MemoryGuard) sweep(now time.Time) {
	for k, e := range g.entries {
		if !now.Before(e.expires) {
			delete(g.entries, k)
		}
	}
}

func (g *MemoryGuard) Complete(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[sessionID] = entry{done: true, expires: g.now().Add(g.doneTTL)}
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, sessionID)
	return nil
}
