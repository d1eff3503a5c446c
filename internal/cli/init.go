// Package cli provides common CLI initialization utilities shared by
// cmd/milkman, cmd/milkman-worker and cmd/milkmanctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"milkman/internal/amqp"
	"milkman/internal/backend"
	"milkman/internal/cache"
	"milkman/internal/config"
	"milkman/internal/core"
	"milkman/internal/log"
	"milkman/internal/services"
)

// SetupLogger initializes structured logging at the LOG_LEVEL from the
// environment and sets it as the default logger.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it with validate
// (for example (*config.Config).ValidateServer). Exits the process on failure.
func LoadAndValidateConfig(logger *log.Logger, validate func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if validate == nil {
		validate = (*config.Config).Validate
	}
	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Runtime bundles the ledger and the resources that must be released with it.
type Runtime struct {
	Ledger    *services.Ledger
	Publisher *amqp.Client
	logger    *log.Logger
	cleanups  []func() error
}

// LedgerOptions selects the optional ledger features a binary wants.
type LedgerOptions struct {
	// Publish enables change events when AMQP_URL is set.
	Publish bool
	// SharedCacheOnly skips the in-process override cache. Processes that
	// do not receive every write must not cache overrides locally.
	SharedCacheOnly bool
}

// BuildLedger opens the configured backend, override cache and publisher.
func BuildLedger(ctx context.Context, cfg *config.Config, logger *log.Logger, opts LedgerOptions) (*Runtime, error) {
	rt := &Runtime{logger: logger}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	if res.Cleanup != nil {
		rt.cleanups = append(rt.cleanups, res.Cleanup)
	}

	ledgerOpts := []services.LedgerOption{services.WithLogger(logger)}
	switch cfg.CacheBackend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.cleanups = append(rt.cleanups, client.Close)
		c := cache.NewRedisCache[[]core.Override](client, "milkman:overrides", cfg.CacheTTL,
			logger.WithComponent(log.ComponentCache).Logger)
		ledgerOpts = append(ledgerOpts, services.WithOverrideCache(c))
		logger.Info("Override cache enabled", "backend", "redis", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	case "memory":
		// Only safe while this process is the store's sole writer: writes
		// from milkmanctl or another server never reach this LRU.
		if !opts.SharedCacheOnly {
			lru := cache.NewLRUCache[[]core.Override](24, cfg.CacheTTL)
			mgr := cache.NewManager(func(removed int) {
				logger.Debug("Expired override cache entries removed", "count", removed)
			})
			mgr.Register(lru)
			mgr.StartCleanup(cfg.CacheTTL)
			rt.cleanups = append(rt.cleanups, func() error { mgr.Stop(); return nil })
			ledgerOpts = append(ledgerOpts, services.WithOverrideCache(lru))
			logger.Info("Override cache enabled", "backend", "memory", "ttl", cfg.CacheTTL)
		}
	default:
		logger.Debug("Override cache disabled")
	}

	if opts.Publish && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// Writes still succeed without events; the worker's periodic
			// export catches up.
			logger.WithComponent(log.ComponentAMQP).Error("Failed to initialize AMQP client, change events disabled",
				log.FieldError, err)
		} else {
			rt.Publisher = client
			rt.cleanups = append(rt.cleanups, client.Close)
			ledgerOpts = append(ledgerOpts, services.WithPublisher(client))
		}
	}

	rt.Ledger = services.NewLedger(res.Backend, cfg.DefaultSettings(), ledgerOpts...)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() {
	for i := len(rt.cleanups) - 1; i >= 0; i-- {
		if err := rt.cleanups[i](); err != nil {
			rt.logger.Warn("Cleanup failed", log.FieldError, err)
		}
	}
	rt.cleanups = nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
