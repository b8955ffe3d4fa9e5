package eventbus

import (
	"runtime/debug"
	"sync"
	"time"

	logx "schedsync/pkg/logx"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Handlers run asynchronously, after Publish returns.
//   - Delivery is ordered per subscriber in publish order.
//
// Data carries one typed payload struct per topic; subscribers type-assert
// at the bus boundary and ignore payloads they don't recognize.
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

// Handler consumes one event. Handlers for a given subscription are invoked
// sequentially; a slow handler delays only its own subscription.
type Handler func(Event)

type Bus interface {
	Publish(e Event)
	// Subscribe registers a handler for a topic and returns an unsubscribe
	// function. Unsubscribe is idempotent; events already queued for the
	// subscription may still be delivered.
	Subscribe(topic string, h Handler) (unsubscribe func())
	// Close stops all subscriptions. Publish after Close is a no-op.
	Close()
}

// New returns an in-memory fanout bus.
//
// Each subscription owns one delivery goroutine feeding off an unbounded
// FIFO queue, so Publish never blocks and never drops.
func New(log logx.Logger) Bus {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &memBus{subs: map[string]map[uint64]*subscription{}, log: log}
}

type memBus struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscription
	seq    uint64
	closed bool
	log    logx.Logger
}

type subscription struct {
	mu      sync.Mutex
	queue   []Event
	wake    chan struct{} // cap 1
	done    chan struct{}
	closer  sync.Once
	handler Handler
	log     logx.Logger
	topic   string
}

// close is safe to call from both Unsubscribe and Bus.Close.
func (s *subscription) close() {
	s.closer.Do(func() { close(s.done) })
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold the bus lock while enqueuing.
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	var targets []*subscription
	for _, s := range b.subs[e.Topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(e)
	}
}

func (b *memBus) Subscribe(topic string, h Handler) func() {
	s := &subscription{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: h,
		log:     b.log,
		topic:   topic,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.seq++
	id := b.seq
	m := b.subs[topic]
	if m == nil {
		m = map[uint64]*subscription{}
		b.subs[topic] = m
	}
	m[id] = s
	b.mu.Unlock()

	go s.run()

	return func() {
		b.mu.Lock()
		if m := b.subs[topic]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
		s.close()
	}
}

func (b *memBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, m := range b.subs {
		for _, s := range m {
			all = append(all, s)
		}
	}
	b.subs = map[string]map[uint64]*subscription{}
	b.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

func (s *subscription) enqueue(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.deliver(e)
		}
	}
}

func (s *subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in event handler",
				logx.String("topic", s.topic),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	s.handler(e)
}
