package remind

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"schedsync/internal/eventbus"
	"schedsync/internal/schedule"
	logx "schedsync/pkg/logx"
)

// Config controls the reminder scanner.
type Config struct {
	Enabled bool
	Spec    string        // cron spec; default "@every 1m"
	Lead    time.Duration // default 15m
}

func (c Config) withDefaults() Config {
	if c.Spec == "" {
		c.Spec = "@every 1m"
	}
	if c.Lead <= 0 {
		c.Lead = 15 * time.Minute
	}
	return c
}

// ReminderPayload rides schedule:reminder.
type ReminderPayload struct {
	Schedule schedule.Schedule `json:"schedule"`
	StartsIn time.Duration     `json:"startsIn"`
}

// Service periodically scans upcoming schedules and publishes one reminder
// per schedule entering the lead window. Consumers (notification UI) decide
// presentation; this service only emits the signal.
type Service struct {
	cfg   Config
	store *schedule.Store
	bus   eventbus.Bus
	log   logx.Logger

	parser cron.Parser

	mu   sync.Mutex
	c    *cron.Cron
	sent map[string]time.Time // schedule id -> reminded at
}

func New(cfg Config, store *schedule.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   bus,
		log:   log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		sent:   map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}

	sched, err := s.parser.Parse(s.cfg.Spec)
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(s.parser))
	c.Schedule(sched, cron.FuncJob(func() { s.scan(time.Now()) }))
	c.Start()
	s.c = c
	s.log.Info("reminder scanner started",
		logx.String("spec", s.cfg.Spec),
		logx.Duration("lead", s.cfg.Lead))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// scan publishes reminders for scheduled items starting within the lead
// window. Exposed to tests via the now parameter.
func (s *Service) scan(now time.Time) {
	due := s.store.Query(schedule.Filter{
		Statuses: []schedule.Status{schedule.StatusScheduled},
		From:     now,
		To:       now.Add(s.cfg.Lead),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range due {
		if _, ok := s.sent[sc.ID]; ok {
			continue
		}
		s.sent[sc.ID] = now
		s.bus.Publish(eventbus.Event{
			Topic: eventbus.TopicReminder,
			Data:  ReminderPayload{Schedule: sc, StartsIn: sc.Start.Sub(now)},
		})
	}
	s.pruneLocked(now)
}

func (s *Service) pruneLocked(now time.Time) {
	for id, at := range s.sent {
		if now.Sub(at) > 24*time.Hour {
			delete(s.sent, id)
		}
	}
}
