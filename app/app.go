// Package app wires configuration into a running service.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/seo-optimizer/insights/aio"
	"github.com/seo-optimizer/insights/analyzer"
	"github.com/seo-optimizer/insights/api"
	"github.com/seo-optimizer/insights/batch"
	"github.com/seo-optimizer/insights/cache"
	"github.com/seo-optimizer/insights/clients"
	"github.com/seo-optimizer/insights/config"
	"github.com/seo-optimizer/insights/credentials"
	"github.com/seo-optimizer/insights/db"
	"github.com/seo-optimizer/insights/fallback"
	"github.com/seo-optimizer/insights/logging"
	"github.com/seo-optimizer/insights/middleware"
	"github.com/seo-optimizer/insights/models"
	"github.com/seo-optimizer/insights/page"
	"github.com/seo-optimizer/insights/pagespeed"
	"github.com/seo-optimizer/insights/stats"
)

// App holds the long-lived components of the service.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	DB       *sql.DB
	Analyzer *analyzer.Analyzer
	Clients  clients.Repo
	Keys     api.CredentialWriter
	Bulk     *batch.Orchestrator
	Stats    *stats.Storage
	Limiter  *middleware.RateLimiter

	closers []func() error
}

// Build connects storage and assembles the pipeline. Without DATABASE_URL,
// or when the database is unreachable, clients and keys live in memory.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	a := &App{Config: cfg, Logger: logger}

	if cfg.Database.URL != "" {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		opts.Logger = logger
		conn, err := db.Connect(ctx, cfg.Database.URL, opts)
		if err != nil {
			logger.WithError(err).Warn("database unavailable, falling back to memory")
		} else if err := db.RunMigrations(ctx, conn); err != nil {
			logger.WithError(err).Warn("migrations failed, falling back to memory")
			conn.Close()
		} else {
			a.DB = conn
			a.closers = append(a.closers, conn.Close)
		}
	}

	tier2, err := a.openTier2()
	if err != nil {
		a.Close()
		return nil, err
	}

	statsStore, err := stats.NewStorage(cfg.Stats.DataDir, stats.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("stats storage: %w", err)
	}
	a.Stats = statsStore
	a.closers = append(a.closers, func() error { statsStore.Shutdown(); return nil })

	// Deployment-wide keys back up per-user keys.
	static := credentials.Static{
		credentials.ProviderPageSpeed: cfg.PageSpeed.APIKey,
		credentials.ProviderAI:        cfg.AIO.APIKey,
	}
	var userKeys credentials.Store
	if a.DB != nil {
		pg := &credentials.PGStore{DB: a.DB}
		userKeys, a.Keys = pg, pg
		a.Clients = &clients.PGRepo{DB: a.DB}
	} else {
		mem := credentials.NewMemoryStore()
		userKeys, a.Keys = mem, mem
		a.Clients = clients.NewMemoryRepo()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	an, err := analyzer.New(analyzer.Config{
		Results: cache.New[models.CombinedAnalysisResult](cache.Options{
			Name: analyzer.ResultNamespace, TTL: cfg.Cache.ResultTTL, Store: tier2, Logger: logger, MaxEntries: cfg.Cache.MaxEntries,
		}),
		Payloads: cache.New[pagespeed.Payload](cache.Options{
			Name: analyzer.PayloadNamespace, TTL: cfg.PageSpeed.PayloadTTL, Store: tier2, Logger: logger, MaxEntries: cfg.Cache.MaxEntries,
		}),
		Credentials: credentials.Chain{userKeys, static},
		Fetcher: pagespeed.NewClient(pagespeed.Options{
			Endpoint: cfg.PageSpeed.Endpoint, Timeout: cfg.PageSpeed.Timeout, HTTPClient: httpClient, Logger: logger,
		}),
		Content: aio.NewClient(aio.Options{
			Endpoint: cfg.AIO.Endpoint, Model: cfg.AIO.Model, Timeout: cfg.AIO.Timeout, HTTPClient: httpClient, Logger: logger,
		}),
		Pages:       page.NewFetcher(&http.Client{Timeout: 15 * time.Second, Transport: httpClient.Transport}, logger),
		Synthesizer: fallback.Synthesizer{},
		Stats:       statsStore,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Analyzer = an

	a.Bulk = &batch.Orchestrator{
		Clients:   a.Clients,
		Analyzer:  an,
		BatchSize: cfg.Batch.Size,
		Stats:     statsStore,
		Logger:    logger,
	}
	a.Limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	return a, nil
}

func (a *App) openTier2() (cache.Store, error) {
	cfg := a.Config.Cache
	switch cfg.Tier2 {
	case "file":
		fs, err := cache.NewFileStore(cfg.Path, time.Minute, cache.WithFileLogger(a.Logger))
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
		a.closers = append(a.closers, fs.Close)
		return fs, nil
	case "sqlite":
		ss, err := cache.OpenSQLiteStore(filepath.Join(cfg.Path, "cache.db"))
		if err != nil {
			return nil, fmt.Errorf("sqlite cache: %w", err)
		}
		a.closers = append(a.closers, ss.Close)
		return ss, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// Router builds the HTTP engine with middleware and routes.
func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.Server.GinMode)
	r := gin.New()
	r.Use(
		middleware.ErrorHandler(a.Logger),
		logging.RequestLogger(a.Logger),
		middleware.RequestMetrics(),
		middleware.CORS(),
		a.Limiter.RateLimit(),
	)
	api.RegisterRoutes(r, &api.Handler{
		Analysis: a.Analyzer,
		Clients:  a.Clients,
		Bulk:     a.Bulk,
		Keys:     a.Keys,
		Stats:    a.Stats,
		Logger:   a.Logger,
	})
	return r
}

// RunBackground prunes old statistics, then starts cache, limiter and
// statistics housekeeping until ctx is done.
func (a *App) RunBackground(ctx context.Context) {
	a.pruneStats()
	go a.Analyzer.RunCleanup(ctx, a.Config.Cache.CleanupInterval)
	go func() {
		sweep := time.NewTicker(time.Minute)
		defer sweep.Stop()
		prune := time.NewTicker(time.Hour)
		defer prune.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				a.Limiter.Sweep()
			case <-prune.C:
				a.pruneStats()
			}
		}
	}()
}

func (a *App) pruneStats() {
	if n := a.Config.Stats.RetainMonths; n > 0 {
		a.Stats.Cleanup(n)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Addr is the listen address for the configured port.
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.Config.Server.Port)
}
