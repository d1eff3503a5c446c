package main

import (
	"context"
	"errors"
	"os"
	"time"

	"milkman/internal/amqp"
	"milkman/internal/cli"
	"milkman/internal/config"
	"milkman/internal/log"
	gsheet "milkman/internal/sheets/google"
	"milkman/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	logger.Info("Starting milkman-worker",
		"backend", cfg.DataBackend,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"interval", cfg.ExportInterval)

	rt, err := cli.BuildLedger(context.Background(), cfg, logger, cli.LedgerOptions{SharedCacheOnly: true})
	if err != nil {
		logger.Error("Failed to initialize ledger", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer rt.Close()

	sheetsClient, err := gsheet.NewFromEnv(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		rt.Close()
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(rt.Ledger, sheetsClient)

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			rt.Close()
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP_URL not set, exporting on the periodic schedule only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup export...")
	if err := exporter.StartupExport(ctx); err != nil {
		// Keep running; the next change or tick retries.
		logger.Error("Startup export incomplete", log.FieldError, err)
	}

	if consumer != nil {
		go func() {
			err := consumer.ConsumeLedgerChanges(ctx, exporter.HandleLedgerChange)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	go exporter.Run(ctx, cfg.ExportInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
