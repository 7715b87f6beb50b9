package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// idleAgentTTL is how long an agent may go without claiming before its
	// budget is forgotten. A returning agent starts with a full burst.
	idleAgentTTL  = 10 * time.Minute
	sweepInterval = time.Minute
)

// claimBudget is the remaining claim allowance of one agent.
type claimBudget struct {
	tokens   float64
	lastSeen time.Time
}

// refill tops the budget up for the time elapsed since lastSeen, capped at burst.
func (b *claimBudget) refill(now time.Time, perSecond, burst float64) {
	b.tokens = min(burst, b.tokens+now.Sub(b.lastSeen).Seconds()*perSecond)
	b.lastSeen = now
}

// MemoryLimiter keeps one token bucket per agent in process memory. It is
// correct for a single coordinator instance only; replicas each enforce
// their own budget.
type MemoryLimiter struct {
	perSecond float64
	burst     float64

	mu      sync.Mutex
	buckets map[string]*claimBudget
	now     func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter allows each agent perSecond claims per second on
// average, with bursts of up to burst. Idle agents are swept in the
// background until Close.
func NewMemoryLimiter(perSecond float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		perSecond: perSecond,
		burst:     float64(burst),
		buckets:   make(map[string]*claimBudget),
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow spends one token of agent's budget.
func (m *MemoryLimiter) Allow(_ context.Context, agent string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, seen := m.buckets[agent]
	if !seen {
		b = &claimBudget{tokens: m.burst, lastSeen: now}
		m.buckets[agent] = b
	} else {
		b.refill(now, m.perSecond, m.burst)
	}

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Len reports how many agents currently hold a budget.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idleAgentTTL)
	for agent, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, agent)
		}
	}
}
