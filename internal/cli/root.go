package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"milkman/internal/config"
	"milkman/internal/core"
	"milkman/internal/log"
	"milkman/internal/storage"
)

// Ledger is what the operator commands read and write.
type Ledger interface {
	GetSettings(ctx context.Context) (core.Settings, error)
	SaveSettings(ctx context.Context, s core.Settings) error
	ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error)
	SaveOverride(ctx context.Context, o core.Override) error
	MonthBill(ctx context.Context, m core.Month) (core.Bill, error)
}

// App carries the dependencies of the milkmanctl commands.
type App struct {
	Out  io.Writer
	Now  func() time.Time
	Open func(ctx context.Context) (Ledger, func(), error)
	// Migrate applies schema migrations and describes what it did.
	Migrate func(ctx context.Context) (string, error)
}

// DefaultApp wires the commands to the configured backend.
func DefaultApp() *App {
	return &App{
		Out:     os.Stdout,
		Now:     time.Now,
		Open:    openConfiguredLedger,
		Migrate: migrateConfigured,
	}
}

// NewRootCommand builds the milkmanctl command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "milkmanctl",
		Short: "Operate the milk delivery ledger",
		Long: `milkmanctl reads and edits the delivery ledger from the command line.

It uses the same configuration as the server (DATA_BACKEND, SQLITE_DB_PATH,
MONGODB_URI, AMQP_URL, ...). Writes publish change events like the web UI does.`,
		SilenceUsage: true,
	}
	root.SetOut(app.Out)

	root.AddCommand(newBillCmd(app))
	root.AddCommand(newSettingsCmd(app))
	root.AddCommand(newOverrideCmd(app))
	root.AddCommand(newMigrateCmd(app))
	return root
}

// Execute runs milkmanctl against the configured backend.
func Execute() {
	LoadEnvFile()
	if err := NewRootCommand(DefaultApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withLedger opens the ledger for the duration of fn.
func (a *App) withLedger(cmd *cobra.Command, fn func(ctx context.Context, l Ledger) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l, closeFn, err := a.Open(ctx)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(ctx, l)
}

// monthArg parses --month (YYYY-MM), defaulting to the current month.
func (a *App) monthArg(raw string) (core.Month, error) {
	if raw == "" {
		return core.MonthOf(a.Now()), nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return core.Month{}, fmt.Errorf("%w: %q (want YYYY-MM)", core.ErrInvalidMonth, raw)
	}
	return core.MonthOf(t), nil
}

// cliLogger writes to stderr so command output stays clean. Warnings and
// errors only unless LOG_LEVEL says otherwise.
func cliLogger() *log.Logger {
	level := log.ParseLevel("warn")
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level = log.ParseLevel(raw)
	}
	logger := log.New(log.Config{Level: level, Component: log.ComponentApp, Output: os.Stderr})
	log.SetDefault(logger)
	return logger
}

func openConfiguredLedger(ctx context.Context) (Ledger, func(), error) {
	logger := cliLogger()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	rt, err := BuildLedger(ctx, cfg, logger, LedgerOptions{Publish: true, SharedCacheOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return rt.Ledger, rt.Close, nil
}

func migrateConfigured(_ context.Context) (string, error) {
	cliLogger()
	cfg := config.Load()
	if cfg.DataBackend != "sqlite" {
		return fmt.Sprintf("Backend %q has no schema migrations", cfg.DataBackend), nil
	}
	if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("Migrated %s", cfg.SQLiteDBPath), nil
}
