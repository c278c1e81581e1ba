// Package app wires the daemon together: config, logging, settings store,
// delivery gateway, alert registry facade, task source, and refresh loop.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"duebell/internal/config"
	"duebell/internal/eventbus"
	"duebell/internal/gateway"
	"duebell/internal/refresh"
	"duebell/internal/registry"
	"duebell/internal/reminder"
	"duebell/internal/settings"
	"duebell/internal/tasksource"
	"duebell/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store settings.Store
	gw    *gateway.Gateway
	rem   *reminder.Service
	src   *tasksource.Client
	ref   *refresh.Service

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
	cfgCh       chan *config.Config
	busUnsub    func()
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Settings persistence (best-effort by contract; opening can still
	// fail hard on a misconfigured path, which we want at startup).
	busyTimeout, err := cfg.SettingsStore.BusyTimeout.Value("settings_store.busy_timeout")
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(settings.Config{
		Driver:      cfg.SettingsStore.Driver,
		Path:        cfg.SettingsStore.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, err
	}

	driver, err := buildDriver(cfg, log)
	if err != nil {
		return nil, err
	}

	gwCfg, err := mapGatewayConfig(cfg)
	if err != nil {
		return nil, err
	}
	gw := gateway.New(gwCfg, driver, log.With(logx.String("comp", "gateway")))

	lookahead, err := cfg.Alerts.Lookahead.Or("alerts.lookahead", registry.DefaultLookahead)
	if err != nil {
		return nil, err
	}
	rem := reminder.New(gw, store, log.With(logx.String("comp", "reminder")), bus,
		registry.Options{Lookahead: lookahead})

	srcTimeout, err := cfg.Source.Timeout.Value("source.timeout")
	if err != nil {
		return nil, err
	}
	src, err := tasksource.New(tasksource.Config{
		BaseURL:  cfg.Source.BaseURL,
		Token:    cfg.Source.Token,
		PageSize: cfg.Source.PageSize,
		Timeout:  srcTimeout,
	}, log.With(logx.String("comp", "tasksource")))
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := cfg.Refresh.FetchTimeout.Value("refresh.fetch_timeout")
	if err != nil {
		return nil, err
	}
	ref := refresh.New(refresh.Config{
		Enabled:      cfg.Refresh.Enabled,
		Schedule:     cfg.Refresh.Schedule,
		FetchTimeout: fetchTimeout,
	}, src, rem, log.With(logx.String("comp", "refresh")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		gw:      gw,
		rem:     rem,
		src:     src,
		ref:     ref,
	}, nil
}

// Reminder exposes the facade for embedding callers (tests, future RPC).
func (a *App) Reminder() *reminder.Service { return a.rem }

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	// Config hot reload: logging and gateway knobs apply live; source and
	// refresh topology changes take a restart.
	wctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.watchCancel = cancel
	a.cfgCh = a.cfgm.Subscribe(2)
	a.mu.Unlock()

	a.watchWG.Add(2)
	go func() {
		defer a.watchWG.Done()
		_ = a.cfgm.Watch(wctx)
	}()
	go func() {
		defer a.watchWG.Done()
		for cfg := range a.cfgCh {
			a.applyReload(cfg)
		}
	}()

	// Alert lifecycle observability, decoupled from the registry.
	busCh, unsub := a.bus.Subscribe(32,
		registry.EventArmed, registry.EventRearmed, registry.EventCancelled, registry.EventFired)
	a.mu.Lock()
	a.busUnsub = unsub
	a.mu.Unlock()
	a.watchWG.Add(1)
	go func() {
		defer a.watchWG.Done()
		for ev := range busCh {
			if ae, ok := ev.Data.(registry.AlertEvent); ok {
				a.log.Debug("alert event",
					logx.String("type", ev.Type),
					logx.String("task", ae.TaskID),
					logx.Time("fire_at", ae.FireAt))
			}
		}
	}()

	// Headless daemon: run the consent flow up front so reconcile can arm.
	if state := a.rem.RequestPermission(ctx); state != gateway.PermissionGranted {
		a.log.Warn("alerts not granted; scheduling is a no-op until permission changes",
			logx.String("state", string(state)))
	}

	if err := a.ref.Start(ctx); err != nil {
		return err
	}
	a.log.Info("started",
		logx.Bool("supported", a.rem.Supported()),
		logx.String("permission", string(a.rem.Permission())))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.ref.Stop(ctx)

	a.mu.Lock()
	cancel := a.watchCancel
	cfgCh := a.cfgCh
	unsub := a.busUnsub
	a.watchCancel, a.cfgCh, a.busUnsub = nil, nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cfgCh != nil {
		a.cfgm.Unsubscribe(cfgCh)
	}
	if unsub != nil {
		unsub()
	}
	a.watchWG.Wait()

	// Every armed entry is a live runtime timer; release them before the
	// owning process goes away.
	err := a.rem.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	if gwCfg, err := mapGatewayConfig(cfg); err == nil {
		a.gw.Apply(gwCfg)
	}
	a.log.Info("reload applied", logx.String("channel", cfg.Alerts.Channel))
}

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

func mapGatewayConfig(cfg *config.Config) (gateway.Config, error) {
	sendTimeout, err := cfg.Alerts.SendTimeout.Value("alerts.send_timeout")
	if err != nil {
		return gateway.Config{}, err
	}
	return gateway.Config{
		RatePerSec:  cfg.Alerts.RatePerSec,
		SendTimeout: sendTimeout,
	}, nil
}

func buildDriver(cfg *config.Config, log logx.Logger) (gateway.Driver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Alerts.Channel)) {
	case "", "desktop":
		return gateway.NewDesktop(), nil
	case "telegram":
		handshake, err := cfg.Telegram.HandshakeTimeout.Or("telegram.handshake_timeout", 10*time.Second)
		if err != nil {
			return nil, err
		}
		return gateway.NewTelegram(gateway.TelegramConfig{
			Token:   cfg.Telegram.Token,
			ChatID:  cfg.Telegram.ChatID,
			Timeout: handshake,
		}, log.With(logx.String("comp", "telegram"))), nil
	case "none":
		return gateway.NewNoop(), nil
	default:
		return nil, fmt.Errorf("alerts.channel: unknown %q", cfg.Alerts.Channel)
	}
}

// validate rejects a bad hot-reload before it is committed.
func validate(cfg *config.Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Alerts.Channel)) {
	case "", "desktop", "telegram", "none":
	default:
		return fmt.Errorf("alerts.channel: unknown %q", cfg.Alerts.Channel)
	}
	if cfg.Alerts.RatePerSec < 0 {
		return fmt.Errorf("alerts.rate_per_sec must be >= 0")
	}
	for _, f := range []struct {
		path string
		d    config.Duration
	}{
		{"alerts.send_timeout", cfg.Alerts.SendTimeout},
		{"alerts.lookahead", cfg.Alerts.Lookahead},
		{"telegram.handshake_timeout", cfg.Telegram.HandshakeTimeout},
		{"settings_store.busy_timeout", cfg.SettingsStore.BusyTimeout},
		{"source.timeout", cfg.Source.Timeout},
		{"refresh.fetch_timeout", cfg.Refresh.FetchTimeout},
	} {
		if _, err := f.d.Value(f.path); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Source.BaseURL) == "" {
		return fmt.Errorf("source.base_url is required")
	}
	return nil
}
