package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeanGrijp/identity-gate/internal/adapters/http/handlers"
	httpMiddleware "github.com/JeanGrijp/identity-gate/internal/adapters/http/middleware"
	"github.com/JeanGrijp/identity-gate/internal/adapters/http/router"
	promrecorder "github.com/JeanGrijp/identity-gate/internal/adapters/metrics/prometheus"
	redisstorage "github.com/JeanGrijp/identity-gate/internal/adapters/storage/redis"
	"github.com/JeanGrijp/identity-gate/internal/config"
	"github.com/JeanGrijp/identity-gate/internal/core/services"
	"github.com/JeanGrijp/identity-gate/internal/logging"
	"github.com/JeanGrijp/identity-gate/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("identity service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := promrecorder.NewRecorder(nil)

	storage, closeFn, err := initStorage(ctx, cfg.Storage, recorder, logger)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer closeFn()

	limiterOpts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(recorder),
		services.WithFailurePolicy(cfg.RateLimiter.FailurePolicy),
	}
	global, err := services.NewTokenBucketLimiter(storage, cfg.RateLimiter.Global, limiterOpts...)
	if err != nil {
		return fmt.Errorf("failed to create global limiter: %w", err)
	}
	sensitive, err := services.NewFixedWindowLimiter(storage, cfg.RateLimiter.Sensitive, limiterOpts...)
	if err != nil {
		return fmt.Errorf("failed to create sensitive limiter: %w", err)
	}

	errs := httpMiddleware.NewErrorHandler(logger)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router.New(router.Config{
			Logger:             logger,
			Errors:             errs,
			Resolver:           httpMiddleware.IdentityResolver{TrustProxy: cfg.Server.TrustProxy},
			Global:             global,
			Sensitive:          sensitive,
			SensitiveWindow:    cfg.RateLimiter.Sensitive.Window,
			CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
			MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	admin := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Server.AdminPort),
		Handler: router.NewAdmin(router.AdminConfig{
			Metrics:            recorder.Handler(),
			Store:              storage,
			Diagnostics:        handlers.Diagnostics(storage, errs, global, sensitive),
			DiagnosticsEnabled: cfg.Server.DiagnosticsEnabled,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sup := supervisor.New(ctx, logger)
	sup.GoCritical("http", serve(srv))
	sup.Go("admin-http", serve(admin))
	sup.Go("redis-monitor", func(ctx context.Context) error {
		return storage.Monitor(ctx, 5*time.Second, logger)
	})

	logger.Info("identity service listening",
		slog.String("port", cfg.Server.Port),
		slog.String("admin_port", cfg.Server.AdminPort),
		slog.String("failure_policy", string(cfg.RateLimiter.FailurePolicy)),
	)

	<-sup.Context().Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, s := range []*http.Server{srv, admin} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("addr", s.Addr), slog.Any("error", err))
		}
	}
	sup.Stop()

	if cause := sup.Cause(); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func serve(srv *http.Server) func(context.Context) error {
	return func(context.Context) error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func initStorage(ctx context.Context, cfg config.StorageConfig, observer redisstorage.LatencyObserver, logger *slog.Logger) (*redisstorage.Storage, func(), error) {
	storage, err := redisstorage.New(ctx, redisstorage.Config{
		URL:         cfg.Redis.URL,
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
		IOTimeout:   cfg.Redis.IOTimeout,
		Observer:    observer,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return storage, func() {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close redis storage", slog.Any("error", err))
		}
	}, nil
}
