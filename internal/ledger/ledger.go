// Package ledger provides bounded recency sets used to avoid notifying the
// same match twice.
package ledger

import "sync"

// Ledger is a FIFO set of match ids with a fixed capacity. Once full, adding a
// new id evicts the oldest one.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	order    []string
	members  map[string]struct{}
}

// New constructs a ledger. Capacity below one is treated as one.
func New(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	return &Ledger{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is currently recorded.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.members[id]
	return ok
}

// Add records id and returns false when it was already present.
func (l *Ledger) Add(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.members[id]; ok {
		return false
	}
	if len(l.order) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.members, oldest)
	}
	l.order = append(l.order, id)
	l.members[id] = struct{}{}
	return true
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

// Capacity returns the configured bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// Snapshot returns the ids oldest first.
func (l *Ledger) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
