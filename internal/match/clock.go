package match

import (
	"sync"
	"time"
)

const (
	firstHalfCap  = 45
	halfTimeMark  = 46
	secondHalfCap = 90
)

type observation struct {
	start time.Time
	phase Phase
}

// Clock remembers when each match was first seen in its current half and
// derives elapsed minutes from that wall-clock delta.
type Clock struct {
	mu    sync.Mutex
	now   func() time.Time
	first map[string]observation
}

// NewClock builds a Clock. A nil now defaults to time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, first: make(map[string]observation)}
}

// Observe records the match if unseen in this phase and returns elapsed minutes.
func (c *Clock) Observe(id string, phase Phase) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if phase == PhaseHalfTime {
		delete(c.first, id)
		return halfTimeMark
	}

	obs, ok := c.first[id]
	if !ok || obs.phase != phase {
		obs = observation{start: now, phase: phase}
		c.first[id] = obs
	}

	minutes := int(now.Sub(obs.start) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}

	if phase == PhaseFirstHalf {
		if minutes > firstHalfCap {
			return firstHalfCap
		}
		return minutes
	}

	minutes += halfTimeMark
	if minutes > secondHalfCap {
		return secondHalfCap
	}
	return minutes
}

// Forget drops a match from the cache.
func (c *Clock) Forget(id string) {
	c.mu.Lock()
	delete(c.first, id)
	c.mu.Unlock()
}

// Retain drops every tracked match whose id is not in ids and returns how
// many were dropped.
func (c *Clock) Retain(ids []string) int {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id := range c.first {
		if _, ok := keep[id]; !ok {
			delete(c.first, id)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of tracked matches.
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.first)
}
