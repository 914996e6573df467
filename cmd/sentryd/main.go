package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sentrymon/engine/internal/alert"
	"github.com/sentrymon/engine/internal/api"
	"github.com/sentrymon/engine/internal/config"
	"github.com/sentrymon/engine/internal/engine"
	"github.com/sentrymon/engine/internal/notify"
	"github.com/sentrymon/engine/internal/probe"
	"github.com/sentrymon/engine/internal/secrets"
	"github.com/sentrymon/engine/internal/state"
	"github.com/sentrymon/engine/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sentryd %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting sentryd", "version", version, "listen", cfg.Server.Listen)

	st, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxReadConns)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secretResolver, err := newSecretResolver(cfg.Secrets, logger)
	if err != nil {
		logger.Error("failed to configure secret resolver", "error", err)
		os.Exit(1)
	}

	registry := probe.DefaultRegistry(cfg.Monitor.CommandAllowlist, cfg.Monitor.AllowPrivateTargets, secretResolver)

	dedup := newDedupCache(cfg.Cache, logger)

	sink := notify.NewEmailSink(notify.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: cfg.Notify.SMTPUsername,
		Password: cfg.Notify.SMTPPassword,
		From:     cfg.Notify.FromAddress,
		TLSMode:  cfg.Notify.TLSMode,
	})

	alertMgr := alert.NewManager(st, sink, dedup, logger)
	stateMgr := state.NewManager(st, alertMgr, logger)

	executor := engine.NewExecutor(st, registry, stateMgr, logger)
	if cfg.Monitor.CheckRateLimitPerSec > 0 {
		executor = executor.WithRateLimit(cfg.Monitor.CheckRateLimitPerSec, cfg.Monitor.CheckRateLimitBurst)
	}

	scheduler := engine.NewScheduler(executor, cfg.Monitor.Workers, logger)
	if cfg.Monitor.AdaptiveIntervals {
		scheduler = scheduler.WithAdaptiveBackoff(4)
	}
	scheduler.Start(ctx)

	retention := store.NewRetentionWorker(st, cfg.Database.RetentionDays, cfg.Database.RetentionPeriod, logger)
	go retention.Run(ctx)

	srv := api.NewServer(ctx, cfg, st, executor, scheduler, logger, version)
	httpServer := startHTTPServer(cfg, srv, logger, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newSecretResolver builds the 1Password Connect-backed resolver used
// for credential_ref fields. Left unconfigured, it returns a nil
// probe.SecretResolver — checkers with a credential_ref then fail at
// check time rather than at startup, since not every deployment stores
// secrets outside its monitor settings.
func newSecretResolver(cfg config.SecretsConfig, logger *slog.Logger) (probe.SecretResolver, error) {
	if cfg.OnePasswordConnectHost == "" || cfg.OnePasswordConnectToken == "" {
		logger.Info("secrets.onepassword_connect_host/token not set, credential_ref resolution disabled")
		return nil, nil
	}
	r, err := secrets.NewResolver(cfg.OnePasswordConnectHost, cfg.OnePasswordConnectToken)
	if err != nil {
		return nil, fmt.Errorf("1password connect resolver: %w", err)
	}
	return r, nil
}

// newDedupCache prefers Redis so the reminder gate holds across
// multiple engine instances; it falls back to an in-process map when
// no Redis URL is configured, matching the single-instance assumption
// this engine otherwise makes.
func newDedupCache(cfg config.CacheConfig, logger *slog.Logger) notify.DedupCache {
	if cfg.RedisURL == "" {
		logger.Info("cache.redis_url not set, using in-process dedup cache")
		return notify.NewMemoryDedupCache()
	}
	cache, err := notify.NewRedisDedupCache(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis, falling back to in-process dedup cache", "error", err)
		return notify.NewMemoryDedupCache()
	}
	logger.Info("redis dedup cache connected")
	return cache
}

func startHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger, cancel context.CancelFunc) *http.Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		go func() {
			logger.Info("starting HTTPS server", "listen", cfg.Server.Listen)
			if err := httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTPS server error", "error", err)
				cancel()
			}
		}()
	} else {
		go func() {
			logger.Info("starting HTTP server", "listen", cfg.Server.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "error", err)
				cancel()
			}
		}()
	}

	return httpServer
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
