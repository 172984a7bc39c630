// Package app wires the process: config, logging, storage, the Zabbix
// client, the reconcile and detection loops, and the Telegram surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monbot/internal/bot"
	"monbot/internal/config"
	"monbot/internal/notify"
	"monbot/internal/reconcile"
	"monbot/internal/relay"
	"monbot/internal/runtime/supervisor"
	"monbot/internal/schedule"
	"monbot/internal/store"
	"monbot/internal/zabbix"
	logx "monbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st       *store.Store
	bot      *bot.Bot
	tg       *notify.Telegram
	engine   *reconcile.Engine
	detector *relay.Detector

	reconcileSpec schedule.Spec
	problemsEvery time.Duration

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationOrDefault("database.busy_timeout", cfg.Database.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	apiTimeout, err := config.ParseDurationOrDefault("zabbix.timeout", cfg.Zabbix.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	zb, err := zabbix.New(zabbix.Config{
		URL:     cfg.Zabbix.URL,
		APIKey:  cfg.Zabbix.APIKey,
		Timeout: apiTimeout,
	}, log.With(logx.String("comp", "zabbix")))
	if err != nil {
		return nil, err
	}

	spec, err := schedule.Parse(scheduleOrDefault(cfg.Reconcile.Schedule))
	if err != nil {
		return nil, fmt.Errorf("reconcile.schedule: %w", err)
	}
	problemsEvery, err := config.ParseDurationOrDefault("problems.interval", cfg.Problems.Interval, 15*time.Second)
	if err != nil {
		return nil, err
	}

	engine := reconcile.NewEngine(zb, st, log.With(logx.String("comp", "reconcile")))
	relaySvc := relay.NewService(zb, zb, st, log.With(logx.String("comp", "relay")))

	botSvc, err := bot.New(cfg.Telegram, relaySvc, st, st, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	tg := notify.NewTelegram(botSvc, sendRate(cfg.Notify), log.With(logx.String("comp", "notify")))
	var ops relay.Announcer
	if cfg.Notify != nil && len(cfg.Notify.OpsURLs) > 0 {
		ops = notify.NewOpsMirror(cfg.Notify.OpsURLs, nil, log.With(logx.String("comp", "ops")))
	}
	dispatcher := relay.NewDispatcher(st, tg, ops, log.With(logx.String("comp", "dispatch")))
	detector := relay.NewDetector(zb, dispatcher, log.With(logx.String("comp", "detector")))

	return &App{
		cfgm:          cfgm,
		logs:          logSvc,
		log:           log,
		st:            st,
		bot:           botSvc,
		tg:            tg,
		engine:        engine,
		detector:      detector,
		reconcileSpec: spec,
		problemsEvery: problemsEvery,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.sup.GoRestart("telegram.poll", a.bot.Run)
	a.sup.GoRestart("reconcile.loop", a.reconcileLoop)
	a.sup.GoRestart("problems.loop", a.detectLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c, a.applyConfig)
	})

	a.log.Info("started",
		logx.String("reconcile_schedule", a.reconcileSpec.Source),
		logx.Duration("problems_interval", a.problemsEvery))
	return nil
}

// Done is closed when the supervisor context is canceled (fatal error or Stop).
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

func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.sup != nil {
		if werr := a.sup.Stop(ctx); werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	}
	if cerr := a.st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// reconcileLoop refreshes the structure mirror: once at startup, then on
// the configured schedule. A failing pass is logged and retried at the next
// slot; the mirror keeps its previous state.
func (a *App) reconcileLoop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if err := a.engine.Reconcile(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("reconcile pass failed", logx.Err(err))
		}
		next := a.reconcileSpec.Next(time.Now())
		timer.Reset(time.Until(next))
	}
}

// detectLoop polls the problem snapshot. The first tick only captures the
// baseline; transitions flow from the second tick on.
func (a *App) detectLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.problemsEvery)
	defer ticker.Stop()

	if err := a.detector.Tick(ctx); err != nil && ctx.Err() == nil {
		a.log.Error("problem tick failed", logx.Err(err))
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := a.detector.Tick(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("problem tick failed", logx.Err(err))
		}
	}
}

// applyConfig handles hot reload. Logging and the send rate apply live;
// anything else needs a restart and is only reported.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg.Logging))
	a.tg.SetRate(sendRate(cfg.Notify))

	if spec, err := schedule.Parse(scheduleOrDefault(cfg.Reconcile.Schedule)); err == nil {
		if spec.Source != a.reconcileSpec.Source {
			a.log.Warn("reconcile.schedule changed; restart required to take effect")
		}
	}
	a.log.Info("config reloaded")
}

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func scheduleOrDefault(raw string) string {
	if raw == "" {
		return "5m"
	}
	return raw
}

// sendRate resolves the Telegram flood-control rate. The section is
// optional; the default is one message per second.
func sendRate(nc *config.NotifyConfig) int {
	if nc == nil || nc.RatePerSec == 0 {
		return 1
	}
	return nc.RatePerSec
}
