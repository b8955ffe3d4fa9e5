package syncer

import (
	"sync"
	"time"

	"schedsync/internal/eventbus"
)

// idemCache remembers the completion event per processed EventID so duplicate
// submissions re-emit the cached result instead of re-applying the mutation.
//
// Bounded two ways: entries expire after ttl, and when the map exceeds max
// the oldest entries are evicted. Sized for the expected in-flight request
// count, not for history.
type idemCache struct {
	mu      sync.Mutex
	entries map[string]idemEntry
	max     int
	ttl     time.Duration
	now     func() time.Time
}

type idemEntry struct {
	event eventbus.Event
	at    time.Time
}

func newIdemCache(max int, ttl time.Duration) *idemCache {
	if max <= 0 {
		max = 1000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &idemCache{entries: map[string]idemEntry{}, max: max, ttl: ttl, now: time.Now}
}

func (c *idemCache) Get(eventID string) (eventbus.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[eventID]
	if !ok {
		return eventbus.Event{}, false
	}
	if c.now().Sub(e.at) > c.ttl {
		delete(c.entries, eventID)
		return eventbus.Event{}, false
	}
	return e.event, true
}

func (c *idemCache) Put(eventID string, ev eventbus.Event) {
	if eventID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[eventID] = idemEntry{event: ev, at: c.now()}
	c.pruneLocked()
}

func (c *idemCache) pruneLocked() {
	now := c.now()
	for id, e := range c.entries {
		if now.Sub(e.at) > c.ttl {
			delete(c.entries, id)
		}
	}
	// Oldest-first eviction when still over budget.
	for len(c.entries) > c.max {
		oldestID := ""
		var oldest time.Time
		for id, e := range c.entries {
			if oldestID == "" || e.at.Before(oldest) {
				oldestID = id
				oldest = e.at
			}
		}
		delete(c.entries, oldestID)
	}
}

func (c *idemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
