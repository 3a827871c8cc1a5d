package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sonrial/family-budget/internal/backend"
	"github.com/Sonrial/family-budget/internal/cli"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/services"
	"github.com/Sonrial/family-budget/internal/worker"
)

const cacheSweepInterval = time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg, logger := cli.LoadAndValidateConfig(logger, log.ComponentWorker)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("The worker does not share an in-memory store with the API; only its own state is reconciled")
	}

	factory := backend.NewFactory(logger)
	b, err := factory.CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer b.Close()

	exporter, err := factory.CreateExporter(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err.Error())
		os.Exit(1)
	}
	if exporter == nil {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	reconciler := services.NewReconciler(b.Store, cfg.OrphanGracePeriod, b.ServiceOptions()...)
	w := worker.NewLedgerWorker(b.Cache, exporter, reconciler, cfg.ReconcileInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.RunReconciler(gctx) })
	g.Go(func() error {
		b.Sweeper.Run(gctx, cacheSweepInterval)
		return nil
	})
	if b.Events != nil {
		g.Go(func() error {
			err := b.Events.ConsumeLedgerEvents(gctx, w.HandleLedgerEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping ledger event consumption - AMQP not available")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
