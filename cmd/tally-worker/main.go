// Command tally-worker copies line items saved in SQLite to Google Sheets.
// It consumes sync messages published by the server and periodically drains
// anything still pending.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tally/internal/amqp"
	"tally/internal/cli"
	"tally/internal/log"
	"tally/internal/records/google"
	"tally/internal/services"
	"tally/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.SheetsEnabled() {
		logger.Error("Google Sheets is not configured; set GOOGLE_SPREADSHEET_ID and service account credentials")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, relying on periodic sync only")
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	sheets, err := google.New(initCtx, google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err == nil {
		err = sheets.EnsureHeader(initCtx)
	}
	initCancel()
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(repo, sheets, logger)
	processor := services.NewSyncProcessor(repo, syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	}, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor stop error", log.FieldError, err.Error())
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err.Error())
			}
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeLineItemSync(ctx, syncWorker.HandleSyncMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption stopped", log.FieldError, err.Error())
			}
		}()
	}

	if stats, err := repo.SyncStats(ctx); err == nil {
		logger.Info("Starting tally-worker", "pending", stats["pending"], "synced", stats["synced"], "error", stats["error"])
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
