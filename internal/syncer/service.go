package syncer

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	logx "schedsync/pkg/logx"
)

// Config controls the sync coordinator.
//
// The window and cache knobs default to sensible values; they are
// operational constants, not business requirements.
type Config struct {
	QueueSize      int           // default 256
	ConflictWindow time.Duration // default 60s
	IdempotencyTTL time.Duration // default 10m
	IdempotencyMax int           // default 1000
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.ConflictWindow <= 0 {
		c.ConflictWindow = 60 * time.Second
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 10 * time.Minute
	}
	if c.IdempotencyMax <= 0 {
		c.IdempotencyMax = 1000
	}
	return c
}

// Service is the sync coordinator: it owns all store mutation, serialized
// through a single FIFO worker, and speaks the request/response-over-pub/sub
// protocol with decoupled collaborators.
//
// Requests cannot be cancelled once enqueued; a caller that wants to abandon
// one simply ignores the eventual completion/error event.
type Service struct {
	mu sync.Mutex

	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	store *schedule.Store

	res   *resolver
	cache *idemCache

	queue     chan Request
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	unsub func()
}

func New(cfg Config, store *schedule.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		store: store,
		res:   &resolver{store: store, window: cfg.ConflictWindow, log: log},
		cache: newIdemCache(cfg.IdempotencyMax, cfg.IdempotencyTTL),
	}
}

// Apply updates tunables that are safe to change live.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.res.window = cfg.ConflictWindow
	s.mu.Unlock()
	// Note: queue resizing and cache rebuilds require a restart.
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double workers).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel

	// Fresh queue per run to avoid applying stale requests after a
	// stop/start toggle.
	s.queue = make(chan Request, s.cfg.QueueSize)

	queue := s.queue
	stopCh := s.stopCh

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in sync worker",
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()
		s.worker(runCtx, stopCh, queue)
	}()

	// Bus boundary: decode inbound sync requests and feed the FIFO queue.
	s.unsub = s.bus.Subscribe(eventbus.TopicSyncRequested, func(e eventbus.Event) {
		req, ok := decodeRequest(e.Data)
		if !ok {
			s.log.Warn("dropping malformed sync request payload", logx.Any("data", e.Data))
			return
		}
		if err := s.Submit(req); err != nil {
			s.publishError(req, KindBadRequest, err.Error())
		}
	})

	s.log.Info("sync coordinator started",
		logx.Int("queue_size", s.cfg.QueueSize),
		logx.Duration("conflict_window", s.cfg.ConflictWindow))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	unsub := s.unsub
	s.runCancel = nil
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("sync coordinator stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// Submit validates the envelope and enqueues the request.
//
// It is non-blocking: a full queue returns ErrQueueFull and drops the request.
func (s *Service) Submit(req Request) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		return ErrStopped
	}
	if strings.TrimSpace(req.EventID) == "" {
		return errors.New("eventId is required")
	}
	if !req.Op.Valid() {
		return errors.New("unknown operation " + string(req.Op))
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	select {
	case q <- req:
		return nil
	default:
		s.log.Warn("sync queue full; dropping request",
			logx.String("event_id", req.EventID),
			logx.String("source", req.Source))
		return ErrQueueFull
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan Request) {
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case req := <-queue:
			s.process(req)
		}
	}
}

// process applies exactly one request. Validation and conflict resolution run
// synchronously inside this turn; only the persistence flush is deferred.
func (s *Service) process(req Request) {
	// Idempotency: a seen EventID re-emits the cached completion, nothing else.
	if cached, ok := s.cache.Get(req.EventID); ok {
		if p, ok := cached.Data.(CompletePayload); ok {
			p.Replayed = true
			cached.Data = p
			cached.Time = time.Time{}
		}
		s.log.Debug("duplicate sync request; replaying cached completion",
			logx.String("event_id", req.EventID))
		s.bus.Publish(cached)
		return
	}

	res, err := s.res.apply(req)
	if err != nil {
		s.publishError(req, errorKind(err), err.Error())
		return
	}

	if res.conflict != nil {
		s.bus.Publish(eventbus.Event{
			Topic: eventbus.TopicConflictResolved,
			Data:  *res.conflict,
		})
	}

	ev := eventbus.Event{
		Topic: res.topic,
		Data: CompletePayload{
			EventID:       req.EventID,
			CorrelationID: req.CorrelationID,
			Source:        req.Source,
			Op:            req.Op,
			Schedule:      res.schedule,
		},
	}
	s.cache.Put(req.EventID, ev)
	s.bus.Publish(ev)
}

func (s *Service) publishError(req Request, kind, msg string) {
	s.log.Debug("sync request failed",
		logx.String("event_id", req.EventID),
		logx.String("kind", kind),
		logx.String("msg", msg))
	s.bus.Publish(eventbus.Event{
		Topic: eventbus.TopicSyncError,
		Data: ErrorPayload{
			EventID:       req.EventID,
			CorrelationID: req.CorrelationID,
			Op:            req.Op,
			Kind:          kind,
			Message:       msg,
		},
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		return KindNotFound
	case schedule.IsValidation(err):
		return KindValidation
	default:
		return KindBadRequest
	}
}

func decodeRequest(data any) (Request, bool) {
	switch v := data.(type) {
	case Request:
		return v, true
	case *Request:
		if v == nil {
			return Request{}, false
		}
		return *v, true
	default:
		return Request{}, false
	}
}
