package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockchat/internal/app"
	"stockchat/internal/config"
	"stockchat/internal/httpapi"
	"stockchat/internal/util"
)

func main() {
	// Load config.
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLoggerWithOptions(util.LogOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("building stockchat: %v", err)
	}
	defer a.Close()

	maint, err := a.NewMaintenance(ctx)
	if err != nil {
		log.Fatalf("scheduling maintenance: %v", err)
	}
	maint.Start()
	defer maint.Stop()

	// Stream snapshots to WebSocket clients.
	hub := httpapi.NewHub()
	go hub.Run(ctx)
	subID, snaps := a.Orchestrator.Subscribe(16)
	defer a.Orchestrator.Unsubscribe(subID)
	go hub.Forward(snaps)

	var history httpapi.History
	if a.QueryLog != nil {
		history = a.QueryLog
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewServer(a.Orchestrator, history, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("stockchat server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down stockchat server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func configPath() string {
	p := app.DefaultConfigPath(os.Getenv)
	if _, err := os.Stat(p); err != nil && os.Getenv("STOCKCHAT_CONFIG") == "" {
		// Run from defaults and environment alone.
		return ""
	}
	return p
}
