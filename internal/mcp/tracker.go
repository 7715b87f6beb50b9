package mcp

import (
	"sync"
	"time"
)

const (
	findWindow      = time.Hour
	maxTrackedFinds = 1000
)

// findTracker remembers which (task type, parameter checksum) pairs were
// looked up with taskqueue_find, so handleEnqueue can remind callers that
// skipped the lookup. In-memory only; the reminder is advisory.
type findTracker struct {
	mu     sync.Mutex
	finds  map[findKey]time.Time
	window time.Duration
	now    func() time.Time
}

type findKey struct {
	taskType string
	checksum string
}

func newFindTracker(window time.Duration) *findTracker {
	return &findTracker{
		finds:  make(map[findKey]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Record notes a lookup of checksum within taskType.
func (t *findTracker) Record(taskType, checksum string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finds[findKey{taskType, checksum}] = t.now()
	if len(t.finds) > maxTrackedFinds {
		t.purgeStale()
	}
}

// WasLookedUp reports whether Record was called for the pair within the window.
func (t *findTracker) WasLookedUp(taskType, checksum string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := findKey{taskType, checksum}
	at, ok := t.finds[k]
	if !ok {
		return false
	}
	if t.now().Sub(at) > t.window {
		delete(t.finds, k)
		return false
	}
	return true
}

// purgeStale must be called with mu held.
func (t *findTracker) purgeStale() {
	now := t.now()
	for k, at := range t.finds {
		if now.Sub(at) > t.window {
			delete(t.finds, k)
		}
	}
}
