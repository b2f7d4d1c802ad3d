package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"offboarding/ocm/internal/app"
	"offboarding/ocm/internal/config"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/obs"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.Register()

	backend, err := config.NewResolver(cfg).Resolve(ctx, config.Backend{})
	if err != nil {
		logger.Fatal("backend config failed", zap.Error(err))
	}
	if !backend.Complete() {
		logger.Warn("backend URL or anon key missing; runtime-config will report NOT_CONFIGURED")
	}

	checks := map[string]app.Check{}
	if backend.Complete() {
		gw, err := gateway.New(gateway.Options{
			BaseURL: backend.BaseURL,
			AnonKey: backend.AnonKey,
			Timeout: cfg.RequestTimeout,
			Logger:  logger.Named("gateway"),
		})
		if err != nil {
			logger.Fatal("gateway setup failed", zap.Error(err))
		}
		checks["backend"] = gw.Health
	}

	sessions, closeSessions, err := app.OpenSessions(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("session store failed", zap.Error(err))
	}
	defer closeSessions()
	if p, ok := sessions.(pinger); ok {
		checks["sessions"] = p.Ping
	}

	httpServer := app.NewHTTPServer(backend, checks, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ocm api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
