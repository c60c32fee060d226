package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hrpulse/hr-notify/internal/api"
	"github.com/hrpulse/hr-notify/internal/config"
	"github.com/hrpulse/hr-notify/internal/db"
	"github.com/hrpulse/hr-notify/internal/metrics"
	"github.com/hrpulse/hr-notify/internal/ratelimiter"
	"github.com/hrpulse/hr-notify/internal/realtime"
	"github.com/hrpulse/hr-notify/internal/repository"
	"github.com/hrpulse/hr-notify/internal/service"
	"github.com/hrpulse/hr-notify/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewPgStore(pool)

	if err := service.EnsureDefaultTemplates(ctx, store); err != nil {
		logger.Fatal("failed to seed templates", zap.Error(err))
	}

	tokens := realtime.NewTokenIssuer(cfg.SocketTokenSecret, cfg.SocketTokenTTL)
	onJoin, onLeave := m.HubHooks()
	hub := realtime.NewHub(tokens, logger.Named("realtime"), realtime.ConnHooks{
		OnJoin:  onJoin,
		OnLeave: onLeave,
	})

	svc := service.NewDispatchService(store, logger.Named("dispatch"))
	limiter := ratelimiter.New(cfg.DispatchRate)

	// ---- queue worker + poller ----
	onProcessed, onFanout := m.WorkerHooks()
	qw := worker.NewQueueWorker(store, hub, cfg.MaxAttempts, logger.Named("worker"), worker.Hooks{
		OnProcessed: onProcessed,
		OnFanout:    onFanout,
	})

	pollerCtx, cancelPoller := context.WithCancel(ctx)
	defer cancelPoller()

	poller := worker.NewPoller(qw, cfg.PollInterval, logger.Named("poller"))
	poller.Start(pollerCtx)

	// ---- HTTP server ----
	router := api.NewRouter(api.Deps{
		Service:   svc,
		Store:     store,
		Processor: qw,
		Hub:       hub,
		Tokens:    tokens,
		Limiter:   limiter,
		Registry:  reg,
		Logger:    logger.Named("http"),
		OnQueued:  func() { m.DispatchesTotal.Inc() },
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests and websocket joins.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the poller and wait for any in-flight job to finish.
	cancelPoller()
	poller.Wait()

	// 3. Drop remaining realtime connections.
	hub.Close()

	logger.Info("server stopped cleanly")
}
