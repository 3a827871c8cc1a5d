package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/Sonrial/family-budget/internal/backend"
	"github.com/Sonrial/family-budget/internal/cli"
	apphttp "github.com/Sonrial/family-budget/internal/http"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/seed"
	"github.com/Sonrial/family-budget/internal/services"
)

const cacheSweepInterval = time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg, logger := cli.LoadAndValidateConfig(logger, log.ComponentApp)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	b, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	chart, err := seed.Load(cfg.SeedFile)
	if err != nil {
		logger.Error("Failed to load chart of accounts", log.FieldError, err.Error(), "path", cfg.SeedFile)
		_ = b.Close()
		os.Exit(1)
	}

	opts := b.ServiceOptions()
	srv := apphttp.NewServer(apphttp.Services{
		Engine:   services.NewEngine(b.Store, opts...),
		Registry: services.NewRegistry(b.Store, opts...),
		Bills:    services.NewBills(b.Store, opts...),
		Profiles: b.Store,
		Chart:    chart,
		Ready:    b.Ready,
	}, apphttp.Options{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		JWTSecret:          cfg.JWTSecret,
		JWTIssuer:          cfg.JWTIssuer,
		Logger:             logger,
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go b.Sweeper.Run(sweepCtx, cacheSweepInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		stopSweep()
		if err := b.Close(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting presupuesto server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"chart_accounts", len(chart))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
