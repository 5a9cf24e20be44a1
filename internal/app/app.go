// Package app wires the gchatlog daemon: config, logging, the chat sink,
// log sources, heartbeat and the failure journal.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gchatlog/internal/config"
	"gchatlog/internal/eventbus"
	"gchatlog/internal/observability/admin"
	"gchatlog/internal/runtime/supervisor"
	"gchatlog/internal/storage"
	"gchatlog/pkg/gchat"
	logx "gchatlog/pkg/logx"
	"gchatlog/pkg/msgfmt"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	diag logx.Logger
	logs *logx.Service

	bus      eventbus.Bus
	store    storage.Store
	relay    *relay
	reporter *failureReporter
	admin    *admin.Server

	client    gchat.Doer
	stdin     io.Reader
	stdinDone chan struct{}

	mu    sync.Mutex
	files *fileSources
	hb    *heartbeat
}

type Option func(*App)

// WithStdin replaces os.Stdin as the stdin source.
func WithStdin(r io.Reader) Option { return func(a *App) { a.stdin = r } }

// WithHTTPClient makes every chat sink use d instead of its own client.
func WithHTTPClient(d gchat.Doer) Option { return func(a *App) { a.client = d } }

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		diag:  logx.NewWriter(logx.Stderr(), cfg.Logging.Level).With(logx.String("comp", "chat.delivery")),
		logs:  logSvc,
		bus:   eventbus.New(),
		relay: &relay{},
		stdin: os.Stdin,
	}
	for _, o := range opts {
		o(a)
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		a.store = st
		a.log.Info("failure journal enabled", logx.String("driver", sc.Driver))
	}

	a.reporter = newFailureReporter(a.diag, a.bus, a.store)

	sink, err := a.buildSink(cfg.Chat)
	if err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		return nil, err
	}
	a.relay.swap(sink)
	logSvc.SetSink(a.relay)

	a.admin = admin.New(cfg.AdminServer(), func() any { return a.Health() }, log.With(logx.String("comp", "admin")))

	return a, nil
}

func (a *App) buildSink(c config.ChatConfig) (*gchat.Sink, error) {
	if !c.Enabled {
		return nil, nil
	}
	opts, err := mapSinkOptions(c, a.reporter.hooks(), a.client)
	if err != nil {
		return nil, err
	}
	return gchat.NewSink(c.Template(), c.CleanWebhooks(), opts...)
}

// validate is the reload hook: it rejects configs the sink could not be
// built from.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if cfg.Chat.Enabled {
		if _, err := msgfmt.New(cfg.Chat.Template()); err != nil {
			return fmt.Errorf("chat.output_template: %w", err)
		}
		if _, err := mapSinkOptions(cfg.Chat, a.reporter.hooks(), nil); err != nil {
			return err
		}
	}
	_, _, err := mapStorageConfig(cfg)
	return err
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Sink returns the current chat sink, or nil when chat is disabled.
func (a *App) Sink() *gchat.Sink { return a.relay.current() }

// StdinDone is closed when the stdin source reached EOF. It is nil (never
// ready) when no stdin source is configured.
func (a *App) StdinDone() <-chan struct{} { return a.stdinDone }

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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	cfg := a.cfgm.Get()
	srcLog := a.log.With(logx.String("comp", "source"))

	a.mu.Lock()
	a.files = startFileSources(a.sup.Context(), cfg.Sources, a.relay, srcLog)
	hb, err := startHeartbeat(cfg.Heartbeat, a.log.With(logx.String("comp", "heartbeat")))
	a.hb = hb
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	if sc, ok := stdinSource(cfg.Sources); ok {
		a.stdinDone = make(chan struct{})
		done := a.stdinDone
		a.sup.Go("source.stdin", func(c context.Context) error {
			return runStdin(c, a.stdin, sc, a.relay, srcLog, done)
		})
	}

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
				a.diag.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

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
				// Coalesce bursts: keep only the latest config.
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
				sdNotify(a.log, "RELOADING=1")
				a.apply(c, lastApplied, newCfg)
				lastApplied = newCfg
				sdNotify(a.log, "READY=1")
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if err := a.admin.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	sdNotify(a.log, "READY=1")
	a.log.Info("app started",
		logx.Bool("chat", a.relay.current() != nil),
		logx.Int("sources", len(cfg.Sources)),
	)
	return nil
}

// apply moves the running app from oldCfg to newCfg.
func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(newCfg.LogxConfig())

	for _, s := range sections {
		switch s {
		case "chat":
			a.reloadSink(newCfg.Chat)
		case "sources":
			if _, ok := stdinSource(newCfg.Sources); ok != (a.stdinDone != nil) {
				a.log.Warn("stdin source changed; restart required")
			}
			a.mu.Lock()
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := a.files.stop(stopCtx); err != nil {
				a.log.Warn("stopping file sources", logx.Err(err))
			}
			cancel()
			a.files = startFileSources(a.sup.Context(), newCfg.Sources, a.relay, a.log.With(logx.String("comp", "source")))
			a.mu.Unlock()
		case "heartbeat":
			a.mu.Lock()
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.hb.stop(stopCtx)
			cancel()
			hb, err := startHeartbeat(newCfg.Heartbeat, a.log.With(logx.String("comp", "heartbeat")))
			if err != nil {
				a.log.Warn("heartbeat not restarted", logx.Err(err))
			}
			a.hb = hb
			a.mu.Unlock()
		case "admin":
			if err := a.admin.Reconfigure(a.sup.Context(), newCfg.AdminServer()); err != nil {
				a.log.Warn("admin server not restarted", logx.Err(err))
			}
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// reloadSink swaps in a sink for c, then flushes and closes the old one. A
// sink that cannot be built leaves the current one in place.
func (a *App) reloadSink(c config.ChatConfig) {
	next, err := a.buildSink(c)
	if err != nil {
		a.diag.Warn("chat sink rebuild failed; keeping previous", logx.Err(err))
		return
	}
	prev := a.relay.swap(next)
	if prev != nil {
		if err := prev.Close(); err != nil {
			a.diag.Warn("closing previous chat sink", logx.Err(err))
		}
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TopicSinkReloaded, Data: next != nil})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, "STOPPING=1")
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
				max = time.Until(dl)
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("admin", 2*time.Second, a.admin.Stop)
	step("heartbeat", time.Second, func(c context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.hb.stop(c)
		return nil
	})
	step("sources", 2*time.Second, func(c context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.files.stop(c)
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	// The sink flushes on close and its failures go to the journal, so it
	// closes before storage.
	step("chat", 35*time.Second, func(context.Context) error {
		a.logs.SetSink(nil)
		if s := a.relay.swap(nil); s != nil {
			return s.Close()
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// PrintFailures writes the newest n journal entries of cfgPath's storage to
// w, one JSON object per line.
func PrintFailures(cfgPath string, n int, w io.Writer) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("storage is disabled in %s", cfgPath)
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.RecentFailures(context.Background(), n)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
