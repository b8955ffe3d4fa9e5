package eventbus

import (
	"sync"
	"testing"
	"time"

	logx "schedsync/pkg/logx"
)

func TestPublishDeliversInOrder(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	const n = 100
	got := make(chan int, n)
	unsub := b.Subscribe("topic.a", func(e Event) {
		got <- e.Data.(int)
	})
	defer unsub()

	for i := 0; i < n; i++ {
		b.Publish(Event{Topic: "topic.a", Data: i})
	}

	for i := 0; i < n; i++ {
		select {
		case v := <-got:
			if v != i {
				t.Fatalf("event %d delivered out of order (got %d)", i, v)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishOnlyReachesMatchingTopic(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	hits := make(chan string, 4)
	defer b.Subscribe("topic.a", func(e Event) { hits <- "a" })()
	defer b.Subscribe("topic.b", func(e Event) { hits <- "b" })()

	b.Publish(Event{Topic: "topic.b"})

	select {
	case v := <-hits:
		if v != "b" {
			t.Fatalf("wrong subscriber fired: %s", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	select {
	case v := <-hits:
		t.Fatalf("unexpected extra delivery: %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishIsAsynchronous(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	unsub := b.Subscribe("slow", func(e Event) {
		close(started)
		<-release
		close(done)
	})
	defer unsub()

	// Publish must return even though the handler blocks.
	b.Publish(Event{Topic: "slow"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}
	close(release)
	<-done
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	var mu sync.Mutex
	count := 0
	delivered := make(chan struct{}, 8)
	unsub := b.Subscribe("topic", func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		delivered <- struct{}{}
	})

	b.Publish(Event{Topic: "topic"})
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("first event never delivered")
	}

	unsub()
	unsub() // idempotent
	b.Publish(Event{Topic: "topic"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestHandlerPanicDoesNotKillSubscription(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	got := make(chan int, 2)
	unsub := b.Subscribe("topic", func(e Event) {
		if e.Data.(int) == 0 {
			panic("boom")
		}
		got <- e.Data.(int)
	})
	defer unsub()

	b.Publish(Event{Topic: "topic", Data: 0})
	b.Publish(Event{Topic: "topic", Data: 1})

	select {
	case v := <-got:
		if v != 1 {
			t.Fatalf("got %d, want 1", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription died after handler panic")
	}
}

func TestPublishStampsTime(t *testing.T) {
	t.Parallel()
	b := New(logx.Nop())
	defer b.Close()

	got := make(chan Event, 1)
	defer b.Subscribe("topic", func(e Event) { got <- e })()

	b.Publish(Event{Topic: "topic"})
	select {
	case e := <-got:
		if e.Time.IsZero() {
			t.Fatal("event time not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
