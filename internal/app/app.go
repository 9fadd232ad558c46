package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cartellino/internal/bot"
	"cartellino/internal/config"
	"cartellino/internal/eventbus"
	"cartellino/internal/httpapi"
	"cartellino/internal/notifier"
	rtsup "cartellino/internal/runtime/supervisor"
	"cartellino/internal/storage"
	"cartellino/internal/task/scheduler"
	"cartellino/internal/tracker"
	kit "cartellino/internal/transport"
	telegram "cartellino/internal/transport/telegram/adapter"
	logx "cartellino/pkg/logx"
)

// App wires the long-running bot process together.
type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	notif *notifier.Service
	track *tracker.Tracker
	bot   *bot.Bot
	sched *scheduler.Service
	http  *httpapi.Server

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	tgCfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(tgCfg, logx.NewConsole("info"))
	if err != nil {
		return nil, err
	}

	// The sink target is set before Telegram logging is switched on, so the
	// first Apply does not warn about a missing group_log.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if id := groupLogChat(cfg); id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.Component("app")

	bus := eventbus.New()

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	notifCfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(notifCfg, ad, log, bus)

	trCfg, err := TrackerConfig(cfg)
	if err != nil {
		return nil, err
	}
	track := tracker.New(store, notif, trCfg, log, bus)

	b := bot.New(ad, track, store, mapBotConfig(cfg), log)

	sched := scheduler.New(mapSchedulerConfig(cfg), log)
	if err := registerJobs(sched, store, pruneSchedule(cfg), retainDays(cfg), track.Now, log.Component("jobs"), bus); err != nil {
		return nil, fmt.Errorf("scheduler.prune_schedule: %w", err)
	}

	srv := httpapi.New(mapHTTPConfig(cfg), httpapi.Deps{Shifts: track, Chats: store}, log)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		notif:   notif,
		track:   track,
		bot:     b,
		sched:   sched,
		http:    srv,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context is canceled by a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate rejects hot-reloaded configs that the running components could
// not apply.
func validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := TrackerConfig(cfg); err != nil {
		return err
	}
	if _, _, err := StorageConfig(cfg); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return cfg.Validate()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.Component("config"))
	a.cfgm.SetValidator(validate)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, a.bot.Commands()); err != nil {
			a.log.Warn("menu commands not updated", logx.Err(err))
		}
		cancel()
	}

	a.notif.Start(a.sup.Context())
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	a.http.Reconfigure(a.sup.Context(), mapHTTPConfig(a.cfgm.Get()))

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	if a.bus != nil {
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
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// keep only the newest of a burst
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.apply(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// apply pushes a reloaded config into every component that supports it.
func (a *App) apply(ctx context.Context, old, next *config.Config) {
	sections, fields := config.SummarizeConfigChange(old, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required for changes to take effect")
			break
		}
	}

	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLoggingConfig(next))

	if nc, err := mapNotifierConfig(next); err == nil {
		a.notif.Apply(nc)
	}
	if tc, err := TrackerConfig(next); err == nil {
		a.track.Apply(tc)
	}
	a.bot.Apply(mapBotConfig(next))

	a.sched.Apply(mapSchedulerConfig(next))
	if err := registerJobs(a.sched, a.store, pruneSchedule(next), retainDays(next), a.track.Now, a.log.Component("jobs"), a.bus); err != nil {
		a.log.Warn("prune job not updated", logx.Err(err))
	}
	if a.sched.Enabled() {
		a.sched.Start(ctx)
	} else {
		a.sched.Stop(ctx)
	}

	a.http.Reconfigure(ctx, mapHTTPConfig(next))

	eventbus.Emit(a.bus, eventbus.TypeConfigReloaded, sections)
	fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, max(time.Until(dl), 0))
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
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
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
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

	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", time.Second, func(c context.Context) error { return a.notif.Stop(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
