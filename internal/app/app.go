// Package app initializes and holds the long-lived services shared by every
// pipeline command: configuration, logger, database store, rate limiter,
// run tracker and the operational HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/api"
	"github.com/kaishamap/company-pipeline/internal/config"
	"github.com/kaishamap/company-pipeline/internal/logging"
	"github.com/kaishamap/company-pipeline/internal/metrics"
	"github.com/kaishamap/company-pipeline/internal/progress"
	"github.com/kaishamap/company-pipeline/internal/ratelimit"
	"github.com/kaishamap/company-pipeline/internal/storage/postgres"
	"github.com/kaishamap/company-pipeline/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// App is the dependency container built once at startup and handed to the
// commands. Store is nil when no database DSN is configured; commands that
// need it must check.
type App struct {
	Cfg     config.Config
	Logger  *zap.Logger
	Store   *postgres.CompanyStore
	Tracker *progress.Tracker
	Limiter *ratelimit.Limiter
	Client  *http.Client

	opsSrv *http.Server
	tracer *sdktrace.TracerProvider
}

// New builds the App from the config file at cfgPath (empty means defaults
// plus environment only). It fails fast on bad configuration; the database
// pool itself connects lazily.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	tracer, err := telemetry.InitTracerProvider(ctx, "company-pipeline")
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a := &App{
		Cfg:     cfg,
		Logger:  logger,
		Tracker: progress.NewTracker(),
		Limiter: ratelimit.New(cfg.SourceDelays(), time.Second),
		Client:  newHTTPClient(cfg.FetchTimeout()),
		tracer:  tracer,
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewCompanyStore(ctx, postgres.CompanyStoreConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.Store = store
	}

	return a, nil
}

// StartOpsServer serves health, metrics and run-history endpoints in the
// background until Close.
func (a *App) StartOpsServer() {
	var pinger api.Pinger
	if a.Store != nil {
		pinger = a.Store
	}
	srv := api.NewServer(a.Tracker, pinger, a.Logger)
	a.opsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := a.opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Warn("ops server stopped", zap.Error(err))
		}
	}()
	a.Logger.Info("ops server listening", zap.Int("port", a.Cfg.Server.Port))
}

// Close shuts down the ops server, the database pool and the logger.
func (a *App) Close() {
	if a.opsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.opsSrv.Shutdown(ctx); err != nil {
			a.Logger.Warn("ops server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.Logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
	}
	_ = a.Logger.Sync()
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
