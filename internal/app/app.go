// Package app wires configuration, the check loop, delivery, the journal,
// and the status server into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"stockwatch/internal/config"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/fetch"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/runtime/supervisor"
	"stockwatch/internal/status"
	"stockwatch/internal/storage"
	logx "stockwatch/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	checker *monitor.Checker
	sched   *monitor.Scheduler
	status  *status.Server

	mu       sync.RWMutex
	resolved config.Resolved
}

// New loads the configuration at cfgPath and builds every component. Nothing
// runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info").With(logx.String("comp", "boot"))
	if err := config.LoadDotEnv(""); err != nil {
		bootLog.Warn(".env found but could not be loaded", logx.Err(err))
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	r, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, root := logx.New(r.Logging)
	log := root.With(logx.String("comp", "app"))
	for _, d := range r.Duplicates {
		log.Warn("duplicate product url ignored", logx.String("name", d.Name), logx.String("url", d.URL))
	}

	store, err := storage.Open(ctx, r.Storage, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	notifier, err := notify.Open(r.Notify, root.With(logx.String("comp", "notify")))
	if err != nil {
		closeStore(store)
		_ = logSvc.Close()
		return nil, err
	}
	fetcher := fetch.NewColly(r.Fetch, root.With(logx.String("comp", "fetch")))

	bus := eventbus.New()
	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		resolved: r,
	}
	a.checker = monitor.NewChecker(r.Monitor, fetcher, notifier,
		monitor.WithLogger(root.With(logx.String("comp", "monitor"))),
		monitor.WithBus(bus))
	a.sched = monitor.NewScheduler(a.checker,
		monitor.WithSchedulerLogger(root.With(logx.String("comp", "scheduler"))),
		monitor.WithSchedulerBus(bus),
		monitor.WithCycleHook(a.cycleStatus))

	if r.Status.Enabled {
		var opts []status.Option
		if r.Status.Pprof {
			opts = append(opts, status.WithProfiler(r.Status.PprofToken))
		}
		a.status = status.New(r.Status.Addr, status.Source{
			Scheduler: a.sched,
			Settings:  a.checker.Settings,
			Throttle:  a.checker.Throttle(),
		}, root.With(logx.String("comp", "status")), opts...)
	}
	return a, nil
}

func closeStore(s storage.Store) {
	if s != nil {
		_ = s.Close()
	}
}

// Done is closed once the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Scheduler() *monitor.Scheduler { return a.sched }

func (a *App) current() config.Resolved {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resolved
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true))
	if a.status != nil {
		a.status.SetTasks(a.sup.Snapshot)
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })

	r := a.current()
	a.log.Info("starting",
		logx.Int("products", len(r.Monitor.Products)),
		logx.Int("interval_min", r.Monitor.IntervalMin),
		logx.Int("interval_max", r.Monitor.IntervalMax),
		logx.String("schedule", a.cfgm.Get().Check.Schedule),
		logx.Duration("cooldown", r.Monitor.Cooldown),
		logx.String("notify_driver", r.Notify.Driver),
		logx.String("storage_driver", r.Storage.Driver),
		logx.Bool("tls_verify_disabled", r.Fetch.InsecureSkipVerify))

	events, unsubEvents := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsubEvents()
		a.consumeEvents(c, events)
	})

	a.sup.Go("scheduler", a.sched.Run)

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if a.status != nil {
		a.sup.GoRestart("status.http", a.status.Run, supervisor.WithMaxRestarts(5))
	}
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.notifySystemd(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// consumeEvents logs every event at debug and forwards check and
// notification events to the journal.
func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) {
	var j *journal
	if a.store != nil {
		j = &journal{
			store:  a.store,
			driver: func() string { return a.current().Notify.Driver },
			log:    a.log.With(logx.String("comp", "journal")),
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if j != nil {
				j.handle(ctx, e)
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts to the newest version.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					drained = true
				}
			}
			if err := a.applyConfig(last, cfg); err != nil {
				a.log.Warn("config reload not applied; keeping previous", logx.Err(err))
				continue
			}
			last = cfg
		}
	}
}

// applyConfig swaps in a new configuration between cycles. Fetch and notify
// collaborators are rebuilt only when their sections changed.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) error {
	r, err := newCfg.Resolve()
	if err != nil {
		return err
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return nil
	}
	changed := make(map[string]bool, len(sections))
	for _, s := range sections {
		changed[s] = true
	}

	var (
		f fetch.PageFetcher
		n notify.Notifier
	)
	if changed["fetch"] || changed["inspect"] {
		f = fetch.NewColly(r.Fetch, a.log.With(logx.String("comp", "fetch")))
	}
	if changed["notify"] {
		if n, err = notify.Open(r.Notify, a.log.With(logx.String("comp", "notify"))); err != nil {
			return err
		}
	}
	if changed["logging"] {
		a.logs.Apply(r.Logging)
	}
	for _, d := range r.Duplicates {
		a.log.Warn("duplicate product url ignored", logx.String("url", d.URL))
	}
	a.checker.Apply(r.Monitor, f, n)

	a.mu.Lock()
	prev := a.resolved
	r.Storage, r.Status = prev.Storage, prev.Status
	a.resolved = r
	a.mu.Unlock()

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	return nil
}

// Stop cancels everything and waits for shutdown, bounding each step so one
// stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.notifySystemd(daemon.SdNotifyStopping)
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		start := time.Now()
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
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
