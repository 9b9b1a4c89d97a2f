// Package core assembles the bot: config, logging, transport, storage,
// the reminder scheduler, and the operational listeners.
package core

import (
	"context"
	"fmt"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/observability/health"
	"remindbot/internal/remind"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/services/maintenance"
	"remindbot/internal/services/notify"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	notif   *notify.Service
	sched   *remind.Scheduler
	handler *bot.Handler
	maint   *maintenance.Service
	health  *health.Service

	updates chan kit.Update
	started time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	notif := notify.New(notify.Config{RatePerSec: cfg.Notify.RatePerSec},
		adapter, log.With(logx.String("comp", "notify")))

	sched := remind.NewScheduler(store, notif, log.With(logx.String("comp", "scheduler")))
	handler := bot.NewHandler(adapter, sched, log.With(logx.String("comp", "bot")))
	sched.SetUI(handler)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: adapter,
		store:   store,
		notif:   notif,
		sched:   sched,
		handler: handler,
		maint:   maintenance.New(sched, log.With(logx.String("comp", "maintenance"))),
		updates: make(chan kit.Update, 256),
		started: time.Now(),
	}
	a.health = health.New(log.With(logx.String("comp", "health")), func() health.Stats {
		return health.Stats{
			LiveWaits: sched.LiveWaits(),
			Uptime:    time.Since(a.started).Round(time.Second).String(),
		}
	})
	return a, nil
}

// Done is closed when the app run context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	cfg := a.cfgm.Get()

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.maint.Start(a.sup.Context(), maintenance.Config{SweepSpec: cfg.Maintenance.SweepSpec}); err != nil {
		return err
	}
	a.health.Apply(a.sup.Context(), mapHealthConfig(cfg))

	a.sup.Go0("bot.dispatch", func(c context.Context) {
		a.handler.Run(c, a.updates)
	})

	// config hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, newCfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig propagates a reloaded config to the components that support
// hot apply. Transport token and storage backend changes need a restart and
// are called out instead of silently ignored.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	a.notif.Apply(notify.Config{RatePerSec: cfg.Notify.RatePerSec})
	if err := a.maint.Apply(maintenance.Config{SweepSpec: cfg.Maintenance.SweepSpec}); err != nil {
		a.log.Warn("maintenance config rejected", logx.Err(err))
	}
	a.health.Apply(ctx, mapHealthConfig(cfg))
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("health", time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}

// ---- config mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{
		Enabled: cfg.Health.Enabled,
		Addr:    cfg.Health.Addr,
		Pprof:   cfg.Health.Pprof,
	}
}
