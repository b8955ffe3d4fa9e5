package syncer

import (
	"fmt"
	"testing"
	"time"

	"schedsync/internal/eventbus"
)

func TestIdemCacheExpiresByTTL(t *testing.T) {
	t.Parallel()
	c := newIdemCache(10, time.Minute)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("e1", eventbus.Event{Topic: eventbus.TopicCreateComplete})
	if _, ok := c.Get("e1"); !ok {
		t.Fatal("fresh entry must hit")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("e1"); ok {
		t.Fatal("expired entry must miss")
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d after expiry, want 0", c.Len())
	}
}

func TestIdemCacheEvictsOldestOverMax(t *testing.T) {
	t.Parallel()
	c := newIdemCache(3, time.Hour)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("e%d", i), eventbus.Event{})
		now = now.Add(time.Second)
	}

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	for _, id := range []string{"e0", "e1"} {
		if _, ok := c.Get(id); ok {
			t.Fatalf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"e2", "e3", "e4"} {
		if _, ok := c.Get(id); !ok {
			t.Fatalf("%s should have survived", id)
		}
	}
}

func TestIdemCacheIgnoresEmptyKey(t *testing.T) {
	t.Parallel()
	c := newIdemCache(3, time.Hour)
	c.Put("", eventbus.Event{})
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}
