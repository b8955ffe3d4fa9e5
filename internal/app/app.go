package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"schedsync/internal/config"
	"schedsync/internal/diag"
	"schedsync/internal/eventbus"
	"schedsync/internal/persist"
	"schedsync/internal/phase"
	"schedsync/internal/remind"
	"schedsync/internal/schedule"
	"schedsync/internal/syncer"
	logx "schedsync/pkg/logx"
)

// App is the process root. Every collaborator gets its dependencies here at
// construction time; nothing is discovered through globals at runtime.
type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus   eventbus.Bus
	store *schedule.Store

	snap    persist.Store
	flusher *persist.Flusher

	sync    *syncer.Service
	trigger *phase.Trigger
	rem     *remind.Service
	diag    *diag.Server

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New loads the config and wires the whole engine. It does not start any
// background work; call Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		_ = ctx
		return validate(c)
	})
	if err := validate(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	}

	bus := eventbus.New(log.With(logx.String("comp", "bus")))
	store := schedule.NewStore(log.With(logx.String("comp", "store")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
	}

	if err := a.openPersistence(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	}

	syncCfg, err := syncConfig(cfg.Sync)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.sync = syncer.New(syncCfg, store, bus, log.With(logx.String("comp", "syncer")))
	a.trigger = phase.New(bus, log.With(logx.String("comp", "phase")))

	remCfg, err := remindConfig(cfg.Reminders)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.rem = remind.New(remCfg, store, bus, log.With(logx.String("comp", "remind")))
	a.diag = diag.New(diagConfig(cfg.Diag), a.engineStatus, log.With(logx.String("comp", "diag")))

	return a, nil
}

// engineStatus feeds the diagnostics /statusz document.
func (a *App) engineStatus() diag.Status {
	_, links := a.store.Snapshot()
	return diag.Status{
		Schedules:      a.store.Len(),
		Projects:       len(links),
		SnapshotWrites: a.flusher.Writes(),
		FlushFailures:  a.flusher.Failures(),
	}
}

// openPersistence opens the snapshot driver, restores the store, and builds
// the flusher. A load failure is fatal to persistence only: the engine
// starts empty and warns once.
func (a *App) openPersistence(cfg *config.Config) error {
	pcfg, fcfg, err := persistConfig(cfg.Storage)
	if err != nil {
		return err
	}

	snap, err := persist.Open(pcfg, a.log.With(logx.String("comp", "persist")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.snap = snap

	if snap != nil {
		loaded, ok, err := snap.Load(context.Background())
		switch {
		case err != nil:
			a.log.Warn("snapshot unreadable; starting with an empty store", logx.Err(err))
		case ok:
			a.store.Restore(loaded.Events)
			a.log.Info("snapshot restored",
				logx.Int("schedules", len(loaded.Events)),
				logx.Time("last_sync", loaded.LastSync))
		}
	}

	a.flusher = persist.NewFlusher(fcfg, snap, func() persist.Snapshot {
		events, links := a.store.Snapshot()
		return persist.Snapshot{Events: events, ProjectLinks: links}
	}, a.log.With(logx.String("comp", "flusher")))
	a.store.SetDirtyHook(a.flusher.MarkDirty)
	return nil
}

// Bus exposes the event bus to external collaborators (calendar views, chat
// booking flows). All mutation goes through it.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Store exposes the read/query surface. Mutating methods must not be called
// outside the coordinator loop.
func (a *App) Store() *schedule.Store { return a.store }

func (a *App) Start(ctx context.Context) error {
	a.flusher.Start(ctx)
	a.sync.Start(ctx)
	a.trigger.Start()
	if err := a.rem.Start(ctx); err != nil {
		return fmt.Errorf("start reminders: %w", err)
	}
	if err := a.diag.Start(ctx); err != nil {
		return fmt.Errorf("start diag server: %w", err)
	}

	// Config hot reload.
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	updates := a.cfgm.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(updates)
		old := a.cfgm.Get()
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(old, cfg)
				old = cfg
			}
		}
	}()

	a.log.Info("engine started", logx.String("config", a.cfgPath))
	return nil
}

// applyConfig applies live-tunable sections. Storage driver changes require
// a restart and are intentionally ignored here.
func (a *App) applyConfig(old, cfg *config.Config) {
	changed, attrs := config.SummarizeConfigChange(old, cfg)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{
		logx.String("sections", strings.Join(changed, ",")),
	}, attrs...)...)

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if syncCfg, err := syncConfig(cfg.Sync); err == nil {
		a.sync.Apply(syncCfg)
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.diag.Stop(ctx)
	a.rem.Stop(ctx)
	a.trigger.Stop()
	a.sync.Stop(ctx)

	// Final flush before the driver closes so shutdown never loses mutations.
	a.flusher.Stop(ctx)
	if a.snap != nil {
		if err := a.flusher.Flush(ctx); err != nil && !errors.Is(err, persist.ErrDisabled) {
			a.log.Warn("final snapshot flush failed", logx.Err(err))
		}
		_ = a.snap.Close()
	}

	a.bus.Close()
	a.wg.Wait()
	a.log.Info("engine stopped")
	return a.logs.Close()
}

// ---- config translation ----

func validate(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if _, _, err := persistConfig(cfg.Storage); err != nil {
		return err
	}
	if _, err := syncConfig(cfg.Sync); err != nil {
		return err
	}
	if _, err := remindConfig(cfg.Reminders); err != nil {
		return err
	}
	return nil
}

func persistConfig(sc *config.StorageConfig) (persist.Config, persist.FlusherConfig, error) {
	if sc == nil {
		return persist.Config{}, persist.FlusherConfig{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return persist.Config{}, persist.FlusherConfig{}, err
	}
	debounce, err := config.ParseDurationOrDefault("storage.flush_debounce", sc.FlushDebounce, 500*time.Millisecond)
	if err != nil {
		return persist.Config{}, persist.FlusherConfig{}, err
	}
	return persist.Config{Driver: sc.Driver, Path: sc.Path, BusyTimeout: busy},
		persist.FlusherConfig{Debounce: debounce}, nil
}

func syncConfig(sc config.SyncConfig) (syncer.Config, error) {
	window, err := config.ParseDurationOrDefault("sync.conflict_window", sc.ConflictWindow, 60*time.Second)
	if err != nil {
		return syncer.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("sync.idempotency_ttl", sc.IdempotencyTTL, 10*time.Minute)
	if err != nil {
		return syncer.Config{}, err
	}
	return syncer.Config{
		QueueSize:      sc.QueueSize,
		ConflictWindow: window,
		IdempotencyTTL: ttl,
		IdempotencyMax: sc.IdempotencyMax,
	}, nil
}

func diagConfig(dc *config.DiagConfig) diag.Config {
	if dc == nil {
		return diag.Config{}
	}
	return diag.Config{
		Enabled:       dc.Enabled,
		Addr:          dc.Addr,
		Token:         dc.Token,
		AllowInsecure: dc.AllowInsecure,
	}
}

func remindConfig(rc *config.RemindersConfig) (remind.Config, error) {
	if rc == nil {
		return remind.Config{}, nil
	}
	lead, err := config.ParseDurationOrDefault("reminders.lead", rc.Lead, 15*time.Minute)
	if err != nil {
		return remind.Config{}, err
	}
	return remind.Config{Enabled: rc.Enabled, Spec: strings.TrimSpace(rc.Spec), Lead: lead}, nil
}
