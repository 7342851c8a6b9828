package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
	"github.com/eshaffer321/reconciler/internal/domain/matcher"
	"github.com/eshaffer321/reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/reconciler/internal/infrastructure/logging"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

// app is the wiring every command shares: config, logger, store and service.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *storage.Storage
	svc    *service.ReconcileService
}

// openApp loads config and opens the database. Logs go to stderr so command
// output on stdout stays clean.
func openApp(cmd *cobra.Command, flags *GlobalFlags, system string) (*app, error) {
	cfg, err := flags.loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.concurrency > 0 {
		cfg.Reconcile.UserConcurrency = flags.concurrency
	}
	logger := logging.NewLoggerWithSystemTo(cmd.ErrOrStderr(), flags.loggingConfig(cfg), system)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	orchestrator := reconcile.NewOrchestrator(store, logger,
		reconcile.WithMatcherConfig(matcherConfig(cfg.Reconcile)))

	svc, err := service.NewReconcileService(store, orchestrator, service.Config{
		UserConcurrency:    cfg.Reconcile.UserConcurrency,
		StatusCacheEntries: cfg.Cache.StatusMaxEntries,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, svc: svc}, nil
}

// Close releases the service cache and the database.
func (a *app) Close() {
	a.svc.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

// matcherConfig overlays the configured tolerances on the matcher defaults
func matcherConfig(cfg config.ReconcileConfig) matcher.Config {
	mc := matcher.DefaultConfig()
	mc.DateTolerance = cfg.DateToleranceDays
	mc.AmountTolerance = cfg.AmountTolerance
	return mc
}
