package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "schedsync/pkg/logx"
)

// FlusherConfig controls write coalescing.
//
// Debounce is an operational default, not a business requirement.
type FlusherConfig struct {
	Debounce     time.Duration // default 500ms
	WriteTimeout time.Duration // default 5s
}

func (c FlusherConfig) withDefaults() FlusherConfig {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Flusher coalesces any number of MarkDirty calls within the debounce window
// into a single whole-snapshot write.
//
// Persistence is best-effort and eventually consistent with memory, never the
// reverse: a failed write is logged (throttled) and retried on the next
// cycle; the in-memory store stays authoritative.
type Flusher struct {
	cfg      FlusherConfig
	store    Store
	snapshot func() Snapshot
	log      logx.Logger

	dirty chan struct{} // cap 1: pending-flush flag

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	wg       sync.WaitGroup

	// warnLimit throttles repeated write-failure warnings so a broken disk
	// doesn't flood the log.
	warnLimit *rate.Limiter

	failures atomic.Uint64
	writes   atomic.Uint64
}

// NewFlusher builds a flusher over store. A nil store disables flushing;
// MarkDirty becomes a no-op.
func NewFlusher(cfg FlusherConfig, store Store, snapshot func() Snapshot, log logx.Logger) *Flusher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Flusher{
		cfg:       cfg.withDefaults(),
		store:     store,
		snapshot:  snapshot,
		log:       log,
		dirty:     make(chan struct{}, 1),
		warnLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// MarkDirty schedules a flush. Never blocks; callers may invoke it from the
// store's critical section.
func (f *Flusher) MarkDirty() {
	if f == nil || f.store == nil {
		return
	}
	select {
	case f.dirty <- struct{}{}:
	default:
	}
}

// Failures reports consecutive failed flush cycles. Consumers may surface a
// degraded-mode warning when this stays non-zero across cycles.
func (f *Flusher) Failures() uint64 { return f.failures.Load() }

// Writes reports completed snapshot writes.
func (f *Flusher) Writes() uint64 { return f.writes.Load() }

func (f *Flusher) Start(ctx context.Context) {
	if f.store == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopCh != nil {
		return
	}
	f.stopCh = make(chan struct{})
	stopCh := f.stopCh

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.worker(ctx, stopCh)
	}()
	f.log.Debug("flusher started", logx.Duration("debounce", f.cfg.Debounce))
}

func (f *Flusher) Stop(ctx context.Context) {
	f.mu.Lock()
	if f.stopCh == nil {
		f.mu.Unlock()
		return
	}
	if f.stopDone != nil {
		done := f.stopDone
		f.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	f.stopDone = done
	stopCh := f.stopCh
	f.mu.Unlock()

	close(stopCh)

	go func() {
		f.wg.Wait()
		f.mu.Lock()
		f.stopCh = nil
		f.stopDone = nil
		f.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (f *Flusher) worker(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			f.finalFlush()
			return
		case <-ctx.Done():
			f.finalFlush()
			return
		case <-f.dirty:
		}

		// Fixed window from the first mark; marks landing during the window
		// coalesce into this write.
		timer := time.NewTimer(f.cfg.Debounce)
		select {
		case <-stopCh:
			timer.Stop()
			f.flushOnce()
			return
		case <-ctx.Done():
			timer.Stop()
			f.flushOnce()
			return
		case <-timer.C:
		}

		// Drain the coalesced flag before snapshotting.
		select {
		case <-f.dirty:
		default:
		}

		if err := f.flushOnce(); err != nil {
			// Retry on the next debounce cycle.
			f.MarkDirty()
		}
	}
}

// finalFlush performs one last write on shutdown if a flush is pending.
func (f *Flusher) finalFlush() {
	select {
	case <-f.dirty:
		_ = f.flushOnce()
	default:
	}
}

func (f *Flusher) flushOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.WriteTimeout)
	defer cancel()

	snap := f.snapshot()
	snap.Version = SnapshotVersion
	snap.LastSync = time.Now()

	if err := f.store.Save(ctx, snap); err != nil {
		n := f.failures.Add(1)
		if f.warnLimit.Allow() {
			f.log.Warn("snapshot write failed; will retry",
				logx.Err(err),
				logx.Uint64("consecutive_failures", n))
		}
		return err
	}
	f.failures.Store(0)
	f.writes.Add(1)
	f.log.Debug("snapshot written",
		logx.Int("schedules", len(snap.Events)),
		logx.Int("projects", len(snap.ProjectLinks)))
	return nil
}

// Flush writes immediately, bypassing the debounce. Used at shutdown and in
// tests.
func (f *Flusher) Flush(ctx context.Context) error {
	if f == nil || f.store == nil {
		return ErrDisabled
	}
	select {
	case <-f.dirty:
	default:
	}
	snap := f.snapshot()
	snap.Version = SnapshotVersion
	snap.LastSync = time.Now()
	return f.store.Save(ctx, snap)
}
