package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"shiftbot/internal/config"
	"shiftbot/internal/eventbus"
	"shiftbot/internal/observability/pprof"
	"shiftbot/internal/observability/tracing"
	"shiftbot/internal/registrar"
	"shiftbot/internal/router"
	rtsup "shiftbot/internal/runtime/supervisor"
	"shiftbot/internal/scheduling"
	"shiftbot/internal/trello"
	kit "shiftbot/internal/transport"
	"shiftbot/internal/transport/discord"
	logx "shiftbot/pkg/logx"
)

// Version is reported to the tracing resource; set with -ldflags.
var Version = "dev"

var setupTracing = tracing.Setup

// platform is a transport that also owns a global command registry.
type platform interface {
	kit.Adapter
	kit.CommandRegistrar
}

type App struct {
	cfgm *config.ConfigManager

	supMu sync.Mutex
	sup   *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter platform
	cmdm    *router.CommandManager
	reg     *registrar.Registrar
	pprof   *pprof.Service

	registerTimeout time.Duration
	traceShutdown   func(context.Context) error

	updates chan kit.Update
}

// New loads configuration and wires the Discord bot. A missing Discord
// token fails here.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "discord"))
	ad, err := discord.New(discord.Config{Token: cfg.Discord.Token}, bootLog)
	if err != nil {
		return nil, err
	}
	return newApp(cfgm, cfg, ad)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, ad platform) (*App, error) {
	// Enable the Discord sink only after its target is set so Apply does not
	// warn about a missing channel.
	logCfg := mapLogging(cfg)
	finalDiscord := logCfg.Discord.Enabled
	logCfg.Discord.Enabled = false
	logSvc, log := logx.New(logCfg, ad)
	logSvc.SetDiscordTarget(cfg.Discord.LogChannelID)
	logCfg.Discord.Enabled = finalDiscord
	logSvc.Apply(logCfg)

	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	tcfg, err := mapTrello(cfg)
	if err != nil {
		return nil, err
	}
	if missing := cfg.MissingTrello(); len(missing) > 0 {
		appLog.Warn("trello credentials missing; /schedule will reply with a failure", logx.String("missing", strings.Join(missing, ",")))
	}
	cards := trelloCards{client: trello.New(tcfg)}
	handler := scheduling.NewHandler(cards, log.With(logx.String("comp", "scheduling")), bus)

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "router")), ad, cfg.Discord.Workers)
	cmdm.SetRegistry(handler.Routes())

	a := &App{
		cfgm:            cfgm,
		log:             appLog,
		logs:            logSvc,
		bus:             bus,
		adapter:         ad,
		cmdm:            cmdm,
		reg:             registrar.New(ad, cfg.Discord.ClientID, log.With(logx.String("comp", "registrar")), bus),
		registerTimeout: registerTimeout(cfg),
		updates:         make(chan kit.Update, 256),
	}
	a.pprof = pprof.New(log, a.snapshots)
	return a, nil
}

func (a *App) supervisor() *rtsup.Supervisor {
	a.supMu.Lock()
	defer a.supMu.Unlock()
	return a.sup
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	sup := a.supervisor()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if sup := a.supervisor(); sup != nil {
		return sup.Err()
	}
	return nil
}

func (a *App) snapshots() map[string]rtsup.Snapshot {
	out := map[string]rtsup.Snapshot{}
	if sup := a.supervisor(); sup != nil {
		out["app"] = sup.Snapshot()
	}
	if sup := a.cmdm.Supervisor(); sup != nil {
		out["router.workers"] = sup.Snapshot()
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		if sup := sp.Supervisor(); sup != nil {
			out["discord.adapter"] = sup.Snapshot()
		}
	}
	return out
}

// Start opens the Discord session and starts background work. Command
// registration runs asynchronously; its failure never fails Start.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	shutdown, err := setupTracing(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
	})
	if err != nil {
		a.log.Warn("tracing disabled", logx.Err(err))
	} else if strings.TrimSpace(cfg.Tracing.Endpoint) != "" {
		a.log.Info("tracing enabled", logx.String("endpoint", cfg.Tracing.Endpoint))
	}
	a.traceShutdown = shutdown

	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.supMu.Lock()
	a.sup = sup
	a.supMu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, next *config.Config) error {
		if _, err := mapPprof(next); err != nil {
			return err
		}
		if _, err := mapTrello(next); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(sup.Context(), a.updates); err != nil {
		sup.Cancel()
		if shutdown != nil {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			if serr := shutdown(sctx); serr != nil {
				a.log.Warn("tracing shutdown failed", logx.Err(serr))
			}
			cancel()
		}
		return err
	}

	sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	sup.Go0("commands.register", func(c context.Context) {
		rctx, cancel := context.WithTimeout(c, a.registerTimeout)
		defer cancel()
		_, _ = a.reg.Register(rctx, a.cmdm.Specs())
	})

	if pcfg, err := mapPprof(cfg); err == nil && pcfg.Enabled {
		if err := a.pprof.Reconfigure(sup.Context(), pcfg); err != nil {
			a.log.Warn("pprof not started", logx.Err(err))
		}
	}

	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
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

	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
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
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started")
	return nil
}

// applyConfig applies the live-reloadable parts of next. Discord, Trello
// and tracing changes only take effect after a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	if restart {
		a.log.Warn("config change requires restart to take effect", fields...)
	}

	a.logs.SetDiscordTarget(next.Discord.LogChannelID)
	a.logs.Apply(mapLogging(next))

	if pcfg, err := mapPprof(next); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else if err := a.pprof.Reconfigure(ctx, pcfg); err != nil {
		a.log.Warn("pprof reconfigure failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in order, each step bounded so one stuck
// component cannot stall the rest. The dispatcher drains before the
// Discord session closes so accepted interactions still get their reply.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	sup := a.supervisor()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 9*time.Second, func(c context.Context) error { return sup.Wait(c) })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("tracing", 2*time.Second, func(c context.Context) error {
		if a.traceShutdown != nil {
			return a.traceShutdown(c)
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
