package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"milkman/internal/auth"
	"milkman/internal/cli"
	"milkman/internal/config"
	apphttp "milkman/internal/http"
	"milkman/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	if !cfg.RateExplicit {
		logger.Warn("No rate configured, using built-in default",
			"rate", cfg.DefaultGlobalRate, "hint", "set DEFAULT_GLOBAL_RATE or DEFAULT_RATE_SOURCE")
	}
	if !cfg.AuthConfigured() {
		logger.Warn("ADMIN_USERNAME/ADMIN_PASSWORD not set, the web UI will refuse every login")
	}

	rt, err := cli.BuildLedger(context.Background(), cfg, logger, cli.LedgerOptions{Publish: true})
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer rt.Close()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Ledger:            rt.Ledger,
		Gate:              auth.NewGate(cfg.AdminUsername, cfg.AdminPassword),
		Sessions:          auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL),
		Logger:            logger,
		SettingsSaveDelay: cfg.SettingsSaveDelay,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting milkman server",
		"addr", srv.Addr,
		"backend", cfg.DataBackend,
		"cache", cfg.CacheBackend,
		"events", rt.Publisher != nil)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", log.FieldError, err)
		rt.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
