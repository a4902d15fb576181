// Package app wires the engine, its data sources and its surfaces into one
// daemon and keeps them in step with the config file.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"qctrack/internal/api"
	"qctrack/internal/completion"
	"qctrack/internal/config"
	"qctrack/internal/digest"
	"qctrack/internal/inventory"
	"qctrack/internal/observability/pprof"
	"qctrack/internal/qc"
	"qctrack/internal/remote"
	"qctrack/internal/runtime/supervisor"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  atomic.Pointer[supervisor.Supervisor]

	log  logx.Logger
	logs *logx.Service

	// store and local are nil when storage is disabled; client is nil
	// without a remote service.
	store  storage.Store
	local  *completion.LocalCacheSource
	client *remote.Client
	inv    *inventory.Static
	merged *completion.MergingStore
	agg    *qc.Aggregator
	digest *digest.Service
	http   *api.Server
	pprof  *pprof.Service

	loc atomic.Pointer[time.Location]
	now func() time.Time
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.Component("app"),
		logs:    logSvc,
		now:     time.Now,
	}
	if err := a.build(cfg, log); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	opts, loc, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.loc.Store(loc)

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, log.Component("storage"))
		if err != nil {
			return err
		}
		a.store = st
		a.local = completion.NewLocalCacheSource(st, cacheKey(cfg), log.Component("cache"))
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	rc, hasRemote, err := mapRemoteConfig(cfg)
	if err != nil {
		return err
	}
	if hasRemote {
		if a.client, err = remote.New(rc, log.Component("remote")); err != nil {
			return err
		}
	}

	a.inv, err = inventory.NewStatic(nil, nil)
	if err != nil {
		return err
	}
	if err := a.applyInventory(cfg); err != nil {
		return err
	}

	var dir qc.Directory = a.inv
	if !cfg.UseStaticInventory() && a.client != nil {
		dir = a.client
		if cfg.Inventory != nil {
			dir = &inventory.Fallback{Primary: a.client, Secondary: a.inv, Log: log.Component("inventory")}
		}
	}

	// Typed nils must not leak into the Source interfaces.
	var remoteSrc, localSrc completion.Source
	if a.client != nil {
		remoteSrc = completion.NewRemoteSource(a.client)
	}
	if a.local != nil {
		localSrc = a.local
	}
	a.merged = completion.NewMergingStore(remoteSrc, localSrc, rc.Timeout, log.Component("completions"))
	a.agg = qc.NewAggregator(dir, a.merged, opts, log.Component("engine"))

	a.digest = digest.New(a.agg, log.Component("digest"))
	dc, sink, err := mapDigestConfig(cfg, loc, log.Component("digest"))
	if err != nil {
		return err
	}
	if err := a.digest.Apply(dc, sink); err != nil {
		return err
	}

	timeouts, err := cfg.HTTP.Timeouts()
	if err != nil {
		return err
	}
	srvOpts := api.Options{
		Addr:         cfg.HTTP.AddrOrDefault(),
		ReadTimeout:  timeouts.Read,
		WriteTimeout: timeouts.Write,
		IdleTimeout:  timeouts.Idle,
		RequestLogs:  cfg.HTTP.RequestLogs,
		Engine:       a.agg,
		Today:        a.Today,
		Health:       a.health,
		Log:          log.Component("http"),
	}
	if a.local != nil {
		srvOpts.Recorder = a.local
		srvOpts.Auditor = a.store
	}
	a.http = api.NewServer(srvOpts)
	a.pprof = pprof.New(log.Component("pprof"))

	machines, worksheets := a.inv.Counts()
	a.log.Info("engine ready",
		logx.String("tz", loc.String()),
		logx.Bool("remote", a.client != nil),
		logx.Bool("static_inventory", dir == qc.Directory(a.inv)),
		logx.Int("machines", machines),
		logx.Int("worksheets", worksheets),
	)
	return nil
}

func (a *App) applyInventory(cfg *config.Config) error {
	if cfg.Inventory == nil {
		return a.inv.Replace(nil, nil)
	}
	machines, worksheets, err := inventory.FromConfig(cfg.Inventory)
	if err != nil {
		return err
	}
	return a.inv.Replace(machines, worksheets)
}

// Today is the current civil date in the engine timezone.
func (a *App) Today() qc.Date {
	return qc.Today(a.now(), a.loc.Load())
}

func (a *App) health() any {
	if sup := a.sup.Load(); sup != nil {
		return sup.Snapshot()
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	sup := a.sup.Load()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if sup := a.sup.Load(); sup != nil {
		return sup.Err()
	}
	return nil
}

// validate is the full check a config must pass before it is committed.
func validate(cfg *config.Config) error {
	errs := []error{config.Validate(cfg)}
	if cfg != nil && cfg.Inventory != nil {
		if _, _, err := inventory.FromConfig(cfg.Inventory); err != nil {
			errs = append(errs, fmt.Errorf("inventory: %w", err))
		}
	}
	if cfg != nil && cfg.Digest != nil && cfg.Digest.Enabled {
		if err := digest.ValidateSchedule(cfg.Digest.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("digest: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Start(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.Component("supervisor")), supervisor.WithCancelOnError(true))
	if !a.sup.CompareAndSwap(nil, sup) {
		return errors.New("app already started")
	}

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.Component("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	sup.Go("http", a.http.Serve)
	a.digest.Start(sup.Context())
	// The profiler is optional; a bind failure is logged, not fatal.
	if err := a.pprof.Reconfigure(ctx, mapPprofConfig(a.cfgm.Get())); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	updates, unsubscribe := a.cfgm.Subscribe()
	sup.Go("config.reload", func(c context.Context) error {
		defer unsubscribe()
		applied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				// the subscription holds only the newest config, bursts arrive coalesced
				a.applyConfig(applied, next)
				applied = next
			}
		}
	})
	sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}
