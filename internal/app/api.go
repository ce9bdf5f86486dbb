package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tidecharts/tilecache/internal/fetch"
	v1 "github.com/tidecharts/tilecache/internal/infrastructure/http/v1"
	"github.com/tidecharts/tilecache/internal/infrastructure/http/v1/handler"
	"github.com/tidecharts/tilecache/internal/repository/store"
	"github.com/tidecharts/tilecache/internal/tilecache"
	"github.com/tidecharts/tilecache/internal/usecase"
	"github.com/tidecharts/tilecache/pkg/config"
	"github.com/tidecharts/tilecache/pkg/http_server"
	"github.com/tidecharts/tilecache/pkg/logger"
	"github.com/tidecharts/tilecache/pkg/telemetry"
)

const upstreamUserAgent = "TidechartsTileCache/1.0 (https://github.com/tidecharts/tilecache)"

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
	}

	st, err := newStore(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile store", "backend", cfg.Cache.Backend, "error", err)
	}

	cache, err := tilecache.New(st, cfg.Cache.MaxBytes, l)
	if err != nil {
		l.Fatal("failed to initialize tile cache", "error", err)
	}

	fetcher := fetch.NewClient(cfg.HTTP.Timeout, upstreamUserAgent, l)

	tileUseCase := usecase.NewTileUseCase(cache, fetcher, usecase.ProviderConfig{
		Key:           cfg.Provider.Key,
		URLTemplate:   cfg.Provider.URLTemplate,
		Subdomains:    cfg.Provider.Subdomains,
		MaxNativeZoom: cfg.Provider.MaxNativeZoom,
	}, usecase.PrefetchDefaults{
		Concurrency: cfg.Prefetch.Concurrency,
		RetryCount:  cfg.Prefetch.RetryCount,
		RetryDelay:  cfg.Prefetch.RetryDelay,
	}, l)

	validate := validator.New()
	h := handler.NewHandler(validate, tileUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server...", "address", httpServer.Addr)
		serverErr := httpServer.ListenAndServe()
		if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", serverErr)
		}
	}()

	<-ctx.Done()
	l.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	l.Info("application shutdown completed")
}

func newStore(cfg *config.Config, l logger.Logger) (store.Store, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Cache.Path, l)
	case "filesystem":
		return store.NewFilesystemStore(cfg.Cache.Path)
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Cache.Backend)
	}
}
