package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"zeitslot/internal/config"
	"zeitslot/internal/dispatch"
	"zeitslot/internal/eligibility"
	"zeitslot/internal/eventbus"
	"zeitslot/internal/metrics"
	"zeitslot/internal/notifier"
	"zeitslot/internal/rowsource"
	rtsup "zeitslot/internal/runtime/supervisor"
	"zeitslot/internal/scheduler"
	"zeitslot/internal/storage"
	kit "zeitslot/internal/transport"
	"zeitslot/internal/transport/telegram"
	logx "zeitslot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	sender kit.Sender

	engine  *eligibility.Engine
	source  *rowsource.Source
	notif   *notifier.Service
	disp    *dispatch.Dispatcher
	sched   *scheduler.Service
	metrics *metrics.Metrics
	msrv    *metrics.Server

	// timezone the row source was built with; changing it needs a restart
	tz       string
	logLevel string
}

type options struct {
	sender   kit.Sender
	store    storage.Store
	logLevel string
}

type Option func(*options)

// WithSender replaces the Telegram adapter; no token is required then.
func WithSender(s kit.Sender) Option { return func(o *options) { o.sender = s } }

// WithStore replaces the configured storage driver. The app closes it on Stop.
func WithStore(st storage.Store) Option { return func(o *options) { o.store = st } }

// WithLogLevel overrides logging.level, including after reloads.
func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = strings.TrimSpace(level) }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg, o.logLevel))
	root := log
	log = log.With(logx.String("comp", "app"))

	loc, err := loadLocation(cfg)
	if err != nil {
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		if tc.Token == "" {
			return nil, errors.New("telegram.token is required")
		}
		ad, err := telegram.New(tc, root.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		sender = ad
	}

	store := o.store
	if store == nil {
		st, err := OpenStore(cfg, root)
		if err != nil {
			return nil, err
		}
		store = st
	}
	// from here on a failed constructor must release the store
	fail := func(err error) (*App, error) {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	settings, err := mapEngineSettings(cfg)
	if err != nil {
		return fail(err)
	}
	eng, err := eligibility.NewEngine(settings, store, root.With(logx.String("comp", "eligibility")))
	if err != nil {
		return fail(fmt.Errorf("policy: %w", err))
	}

	src := rowsource.New(store, loc, root.With(logx.String("comp", "rowsource")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return fail(err)
	}
	notif := notifier.New(ncfg, sender, root.With(logx.String("comp", "notifier")), bus, store)

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return fail(err)
	}
	disp, err := dispatch.New(dcfg, dispatch.Deps{
		Engine:  eng,
		Source:  src,
		Sender:  sender,
		Alerter: notif,
		Audit:   store,
		Bus:     bus,
		Log:     root.With(logx.String("comp", "dispatch")),
	})
	if err != nil {
		return fail(err)
	}

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return fail(err)
	}
	sched := scheduler.New(scfg, func(ctx context.Context) error {
		_, err := disp.Tick(ctx)
		return err
	}, root.With(logx.String("comp", "scheduler")))
	if err := sched.Validate(scfg); err != nil {
		return fail(err)
	}

	m := metrics.New(bus)
	msrv := metrics.NewServer(mapMetricsConfig(cfg), m, root.With(logx.String("comp", "metrics")))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		sender:   sender,
		engine:   eng,
		source:   src,
		notif:    notif,
		disp:     disp,
		sched:    sched,
		metrics:  m,
		msrv:     msrv,
		tz:       strings.TrimSpace(cfg.Scheduler.Timezone),
		logLevel: o.logLevel,
	}, nil
}

// OpenStore opens the configured storage driver. Commands that only touch
// rows use it without building the whole app.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage (%s): %w", sc.Driver, err)
	}
	return st, nil
}

func (a *App) Store() storage.Store { return a.store }
func (a *App) Logger() logx.Logger { return a.log }
func (a *App) Scheduler() scheduler.Snapshot { return a.sched.Snapshot() }
func (a *App) Engine() *eligibility.Engine { return a.engine }
func (a *App) Config() *config.Config { return a.cfgm.Get() }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce evaluates every entry a single time with alerts enabled and waits
// for queued alerts before returning. It does not start the trigger.
func (a *App) RunOnce(ctx context.Context) (dispatch.Report, error) {
	a.notif.Start(ctx)
	rep, err := a.disp.Tick(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	a.notif.Stop(stopCtx)
	return rep, err
}

// Close releases storage and log files of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// ValidateConfig is the transactional reload hook: a config that cannot be
// turned into live component settings is rejected before it is committed.
func ValidateConfig(_ context.Context, cfg *config.Config) error {
	s, err := mapEngineSettings(cfg)
	if err != nil {
		return err
	}
	if _, err := eligibility.NewValidator(s.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	if err := scheduler.New(scfg, nil, logx.Nop()).Validate(scfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
		rtsup.WithPanicHook(a.metrics.GoroutinePanicked),
	)
	a.metrics.TrackActive(a.sup.Active)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(ValidateConfig)

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}

	a.sup.Go0("metrics.consume", func(c context.Context) { a.metrics.Consume(c, a.bus) })
	a.msrv.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// debug only; a tick emits one event per entry
				a.log.Debug("event", logx.String("type", string(e.Type)), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("scheduler: %w", err)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(interval / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}

	snap := a.sched.Snapshot()
	a.log.Info("app started",
		logx.Bool("scheduler", snap.Enabled),
		logx.Bool("alerts", a.notif.Enabled()),
		logx.String("tz", a.source.Location().String()),
	)
	return nil
}

// applyConfig pushes a committed config into the live components. Sections
// that cannot change at runtime only log a warning.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev != nil && (prev.Telegram.Token != next.Telegram.Token || prev.Telegram.APIURL != next.Telegram.APIURL) {
		a.log.Warn("telegram token or api_url changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(next, a.logLevel))

	if s, err := mapEngineSettings(next); err != nil {
		a.log.Warn("invalid eligibility config; keeping previous", logx.Err(err))
	} else if err := a.engine.Apply(s); err != nil {
		a.log.Warn("invalid policy; keeping previous", logx.Err(err))
	}

	if dcfg, err := mapDispatchConfig(next); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}

	if scfg, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		if scfg.Timezone != a.tz {
			a.log.Warn("scheduler.timezone changed; restart required for changes to take effect",
				logx.String("active", a.tz), logx.String("configured", scfg.Timezone))
			scfg.Timezone = a.tz
		}
		if err := a.sched.Apply(scfg); err != nil {
			a.log.Warn("scheduler apply failed", logx.Err(err))
		}
	}

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.msrv.Reconfigure(ctx, mapMetricsConfig(next))

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: sections})

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// scheduler first so no tick starts while the rest shuts down
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("metrics", 1*time.Second, func(c context.Context) error { a.msrv.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
