package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tally/internal/backend"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	"tally/internal/ingest"
	"tally/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.NewFactory(logger).CreateBackend(initCtx, backendCfg)
	initCancel()
	if err != nil {
		logger.Error("Failed to initialize record store", log.FieldError, err.Error(), log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	pipeline := ingest.NewPipeline(
		ingest.NewDecoder(cfg.MaxRows, logger),
		ingest.NewSink(store.Backend, ingest.SinkConfig{
			Concurrency: cfg.PersistConcurrency,
			Timeout:     cfg.PersistTimeout,
		}, logger),
		ingest.NewStore(),
		logger,
		ingest.WithTransitionHook(func(t ingest.Transition) {
			logger.Debug("Run transition",
				log.FieldRunID, t.RunID,
				log.FieldGeneration, t.Generation,
				"from", t.From,
				"to", t.To,
				"published", t.Published)
		}),
	)

	// A failed preload only shows a banner; the server still starts.
	preloadCtx, preloadCancel := context.WithTimeout(context.Background(), 15*time.Second)
	_ = ingest.Preload(preloadCtx, store.Backend, pipeline.Store(), logger)
	preloadCancel()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Pipeline:       pipeline,
		Records:        store.Backend,
		Ping:           store,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}, logger)
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := store.Close(); err != nil {
			logger.Error("Record store close error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting tally server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
