package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/expressions"
	"github.com/dominossauro/lowcode/internal/graph"
	"github.com/dominossauro/lowcode/internal/isolation"
	"github.com/dominossauro/lowcode/internal/loader"
	"github.com/dominossauro/lowcode/internal/metrics"
	"github.com/dominossauro/lowcode/internal/nodes"
	"github.com/dominossauro/lowcode/internal/plugins"
	"github.com/dominossauro/lowcode/internal/scheduler"
	"github.com/dominossauro/lowcode/internal/server"
	"github.com/dominossauro/lowcode/internal/store"
	"github.com/dominossauro/lowcode/internal/streaming"
	"github.com/dominossauro/lowcode/internal/validation"
	"github.com/dominossauro/lowcode/pkg/mcp"
)

// app is the wired engine: catalog, registry, executor and the supporting
// datasources, metrics and reloader.
type app struct {
	cfg      Config
	logger   *slog.Logger
	catalog  *graph.Catalog
	loader   *loader.Loader
	registry *nodes.Registry
	executor *engine.Executor
	pool     *engine.Pool
	metrics  *metrics.Collector
	events   *streaming.Hub
	stores   *store.Manager
	reloader *scheduler.Reloader
}

func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	validator, err := validation.NewDocumentValidator()
	if err != nil {
		return nil, fmt.Errorf("document validator: %w", err)
	}
	ld := loader.New(validator, logger)

	catalog, err := ld.LoadDir(cfg.FlowsDir)
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	logger.Info("flows loaded", "dir", cfg.FlowsDir, "controllers", catalog.Names())

	stores, err := store.Open(ctx, cfg.Datasources, logger)
	if err != nil {
		return nil, fmt.Errorf("open datasources: %w", err)
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("cel engine: %w", err)
	}

	var discoverer nodes.Discoverer
	if cfg.ManifestPath != "" {
		breakers := plugins.NewBreakers(plugins.DefaultBreakerConfig())
		discoverer = plugins.NewManifestDiscoverer(cfg.ManifestPath, breakers, logger).
			WithSandbox(isolation.New(logger))
	}
	registry := nodes.NewRegistry(discoverer)
	if err := nodes.RegisterBuiltins(registry, nodes.BuiltinConfig{CEL: cel, DB: stores}); err != nil {
		stores.Close()
		return nil, fmt.Errorf("register builtin nodes: %w", err)
	}

	collector := metrics.New()

	var pool *engine.Pool
	if cfg.MaxConcurrent > 0 {
		pool = engine.NewPool(cfg.MaxConcurrent)
		collector.TrackGauge("lowcode_executions_active", "Flow executions currently running.",
			func() float64 { return float64(pool.Metrics().Active) })
	}

	events := streaming.NewHub()
	collector.TrackGauge("lowcode_event_subscribers", "Clients following the execution event stream.",
		func() float64 { return float64(events.Subscribers()) })
	observer := engine.Observers(collector, events)

	interp := engine.NewInterpreter(registry,
		engine.WithLogger(logger),
		engine.WithObserver(observer),
	)
	executor := engine.NewExecutor(catalog, interp, engine.ExecutorConfig{
		Logger:   logger,
		Observer: observer,
		Pool:     pool,
	})

	reloader, err := scheduler.NewReloader(cfg.ReloadSchedule, cfg.FlowsDir, ld, catalog, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}
	collector.TrackGauge("lowcode_controllers", "Controllers currently served.",
		func() float64 { return float64(catalog.Len()) })
	collector.TrackGauge("lowcode_flow_reloads", "Times the flows directory was reloaded.",
		func() float64 { return float64(reloader.Reloads()) })

	return &app{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		loader:   ld,
		registry: registry,
		executor: executor,
		pool:     pool,
		metrics:  collector,
		events:   events,
		stores:   stores,
		reloader: reloader,
	}, nil
}

// mcpServer builds the MCP tool server over this app's executor.
func (a *app) mcpServer() *mcp.Server {
	return mcp.NewServer(mcp.ServerDeps{
		Executor: a.executor,
		Reloader: a.reloader,
		Logger:   a.logger,
		Version:  version,
	})
}

// httpHandler builds the HTTP surface for cfg. Only fields that can change
// without a restart are read from cfg; everything else comes from a.cfg.
func (a *app) httpHandler(cfg Config) http.Handler {
	srv := server.New(server.Deps{
		Executor:       a.executor,
		Metrics:        a.metrics.Handler(),
		Logger:         a.logger,
		ShowExceptions: cfg.ShowExceptions,
		MaxBodyBytes:   a.cfg.MaxBodyBytes,
		Version:        version,
		Events:         a.events,
	})
	if !a.cfg.MCPHTTP {
		return srv.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", a.mcpServer().HTTPHandler())
	mux.Handle("/", srv.Handler())
	return mux
}

func (a *app) close() error {
	var errs []error
	if err := a.reloader.Stop(); err != nil {
		errs = append(errs, err)
	}
	if a.pool != nil {
		a.pool.Shutdown()
	}
	if err := a.stores.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
