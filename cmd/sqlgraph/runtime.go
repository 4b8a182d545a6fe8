package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leofalp/sqlgraph"
	"github.com/leofalp/sqlgraph/core/extract"
	"github.com/leofalp/sqlgraph/core/llm"
	"github.com/leofalp/sqlgraph/internal/config"
	"github.com/leofalp/sqlgraph/pipeline"
	"github.com/leofalp/sqlgraph/providers/database/sqldb"
	"github.com/leofalp/sqlgraph/providers/llm/openai"
	"github.com/leofalp/sqlgraph/providers/observability"
	"github.com/leofalp/sqlgraph/providers/observability/promobs"
	"github.com/leofalp/sqlgraph/providers/observability/slogobs"
	retrievalmem "github.com/leofalp/sqlgraph/providers/retrieval/inmemory"
	"github.com/leofalp/sqlgraph/providers/session/pgturns"
)

// runtime holds everything a command needs, wired from the configuration.
type runtime struct {
	config    config.Config
	observer  observability.Provider
	databases *sqldb.Manager
	index     *retrievalmem.Index
	engine    *sqlgraph.Engine
	metrics   *http.Server
	history   *pgxpool.Pool

	indexMu sync.Mutex
	indexed map[string]bool
}

// newObserver returns the slog observer, wrapped by a Prometheus observer
// when metrics are served. The registry is nil without metrics.
func newObserver(cfg config.Config, logOutput io.Writer) (observability.Provider, *prometheus.Registry) {
	base := slogobs.New(
		slogobs.WithOutput(logOutput),
		slogobs.WithLevel(slogobs.ParseLogLevel(cfg.Observability.LogLevel)),
		slogobs.WithFormat(slogobs.ParseFormat(cfg.Observability.LogFormat)),
	)
	if cfg.Observability.MetricsAddr == "" {
		return base, nil
	}

	registry := prometheus.NewRegistry()
	return promobs.New(promobs.WithDelegate(base), promobs.WithRegisterer(registry)), registry
}

// newInvoker builds the model façade over the OpenAI-compatible endpoint.
// Middlewares run outermost first: observation sees the outcome after
// retries and every attempt gets its own deadline.
func newInvoker(cfg config.Config, observer observability.Provider) *llm.ProviderInvoker {
	provider := openai.New(openai.WithBaseURL(cfg.LLM.BaseURL), openai.WithAPIKey(cfg.LLM.APIKey))

	return llm.NewProviderInvoker(provider, extract.NewRegistry(),
		llm.WithMiddleware(
			llm.NewObservabilityMiddleware(observer, "openai"),
			llm.NewRetryMiddleware(llm.RetryConfig{MaxRetries: cfg.LLM.MaxRetries}),
			llm.NewTimeoutMiddleware(cfg.LLM.Timeout),
		),
		llm.WithMaxConcurrency(cfg.LLM.MaxConcurrency),
		llm.WithDefaultModel(llm.ModelConfig{Name: cfg.LLM.Model}),
		llm.WithObserver(observer),
	)
}

func newRuntime(ctx context.Context, cfg config.Config, logOutput io.Writer) (*runtime, error) {
	observer, registry := newObserver(cfg, logOutput)

	databases, err := sqldb.New(cfg.Databases,
		sqldb.WithMaxRows(cfg.Database.MaxRows),
		sqldb.WithAllowWrites(cfg.Database.AllowWrites),
		sqldb.WithObserver(observer),
	)
	if err != nil {
		return nil, err
	}
	app := &runtime{
		config:    cfg,
		observer:  observer,
		databases: databases,
		index:     retrievalmem.New(),
		indexed:   make(map[string]bool),
	}

	opts := []sqlgraph.Option{sqlgraph.WithObserver(observer)}
	if cfg.Chat.History.DSN != "" {
		turnLog, err := app.openHistory(ctx)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		opts = append(opts, sqlgraph.WithTurnLog(turnLog))
	}

	app.engine, err = sqlgraph.New(cfg.Pipeline, pipeline.Deps{
		Invoker:   newInvoker(cfg, observer),
		Database:  databases,
		Retriever: app.index,
	}, opts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	for _, warning := range app.engine.Warnings() {
		observer.Warn(ctx, "pipeline configuration warning", observability.String("warning", warning))
	}

	if registry != nil {
		app.serveMetrics(registry)
	}
	return app, nil
}

// openHistory connects to the chat turn log and creates its table.
func (app *runtime) openHistory(ctx context.Context) (*pgturns.Log, error) {
	pool, err := pgxpool.New(ctx, app.config.Chat.History.DSN)
	if err != nil {
		return nil, fmt.Errorf("open chat history: %w", err)
	}
	app.history = pool

	var opts []pgturns.Option
	if app.config.Chat.History.Table != "" {
		opts = append(opts, pgturns.WithTableName(app.config.Chat.History.Table))
	}
	turnLog := pgturns.New(pool, opts...)
	if err := turnLog.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return turnLog, nil
}

// serveMetrics exposes registry on /metrics in the background.
func (app *runtime) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	app.metrics = &http.Server{
		Addr:              app.config.Observability.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := app.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.observer.Error(context.Background(), "metrics server stopped", observability.Error(err))
		}
	}()
	app.observer.Info(context.Background(), "serving metrics",
		observability.String("metrics.addr", app.config.Observability.MetricsAddr))
}

// prepare indexes dbID for retrieval once per process.
func (app *runtime) prepare(ctx context.Context, dbID string) error {
	app.indexMu.Lock()
	defer app.indexMu.Unlock()
	if app.indexed[dbID] {
		return nil
	}
	ctx = observability.ContextWithObserver(ctx, app.observer)
	if err := app.index.IndexDatabase(ctx, app.databases, dbID, app.config.Retrieval.SampleValues); err != nil {
		return err
	}
	app.indexed[dbID] = true
	return nil
}

func (app *runtime) Close() error {
	var errs []error
	if app.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, app.metrics.Shutdown(ctx))
		cancel()
	}
	if app.history != nil {
		app.history.Close()
	}
	errs = append(errs, app.databases.Close())
	return errors.Join(errs...)
}
