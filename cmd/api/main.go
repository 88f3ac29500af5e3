package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/config"
	"github.com/kursadbilgin/publish-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/publish-engine/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "publish-engine",
		Short:         "Publishes content to third-party platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newSweepCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job workers and background scanners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cfg, logger, !skipMigrations)
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply database migrations on start")
	return cmd
}

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one scheduled-retry and approval-expiry pass, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.close()

			now := time.Now().UTC()
			sweep, err := a.retries.ProcessScheduledRetries(cmd.Context(), now)
			if err != nil {
				return err
			}
			expired, err := a.gate.ExpireStale(cmd.Context(), now)
			if err != nil {
				return err
			}

			logger.Info("sweep completed",
				zap.Int("picked", sweep.Picked),
				zap.Int("retried", sweep.Retried),
				zap.Int("published", sweep.Published),
				zap.Int("skipped", sweep.Skipped),
				zap.Int("failed", sweep.Failed),
				zap.Int("recovered", sweep.Recovered),
				zap.Int("approvals_expired", expired),
			)
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := openDatabase(cfg)
			if err != nil {
				return fmt.Errorf("postgres initialization failed: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("postgres underlying db init failed: %w", err)
			}
			defer sqlDB.Close()

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			logger.Info("database migrations applied")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLoggerWithFile(cfg.LogLevel, observability.LogFile{
		Path:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger.With(zap.String("version", version)), nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	return postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.Pool{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
