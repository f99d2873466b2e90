package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/paddock-io/paddock/internal/config"
	"github.com/paddock-io/paddock/internal/ergast"
	"github.com/paddock-io/paddock/internal/extract"
	"github.com/paddock-io/paddock/internal/notify"
	"github.com/paddock-io/paddock/internal/pipeline"
	"github.com/paddock-io/paddock/internal/quality"
	"github.com/paddock-io/paddock/internal/storage"
)

// app owns the wired pipeline and the resources behind it.
type app struct {
	pipeline *pipeline.Pipeline
	conn     *storage.Connection
	notifier *notify.Notifier
	logger   *slog.Logger
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))
}

// newApp connects the database and wires every pipeline stage.
func newApp(cfg *pipeline.Config, logger *slog.Logger) (*app, error) {
	dbCfg := storage.LoadConfig()

	conn, err := storage.NewConnection(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	checkpoints, err := storage.NewPersistentCheckpointStore(conn)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("create checkpoint store: %w", err)
	}

	loadStore, err := storage.NewSQLLoadStore(conn)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("create load store: %w", err)
	}

	recorder, err := storage.NewPersistentRunRecorder(conn)
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("create run recorder: %w", err)
	}

	client := ergast.NewClient(ergast.ClientConfig{BaseURL: cfg.BaseURL}, logger)
	payloads := extract.NewPayloadStore(cfg.DataDir)
	checker := quality.NewChecker(conn, checkpoints, logger)
	notifier := notify.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)

	logger.Info("connected to database", slog.String("url", dbCfg.MaskDatabaseURL()))

	return &app{
		pipeline: pipeline.New(client, checkpoints, payloads, loadStore, recorder, checker, notifier, logger),
		conn:     conn,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Close releases the database connection and flushes the event writer.
func (a *app) Close() error {
	var errs []error

	if err := a.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notifier: %w", err))
	}

	if err := a.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	return errors.Join(errs...)
}
