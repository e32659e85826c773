// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nexus/dataimport/appcontext"
	"nexus/dataimport/config"
	"nexus/dataimport/importer"
	"nexus/dataimport/sample"
	"nexus/dataimport/storage"
)

const (
	commandImport         = "import"
	commandGenerateSample = "generate-sample"
)

var errUnknownCommand = errors.New("unknown command")

func main() {
	// Bootstrap logger for configuration loading; replaced once LOG_LEVEL is known.
	logger := newLogger(slog.LevelInfo)
	ctx := appcontext.WithLogger(context.Background(), logger)

	cfg := config.LoadConfig(ctx, logger)
	logger = newLogger(config.ParseLevel(cfg.LogLevel))

	command := commandImport
	args := os.Args[1:]
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	os.Exit(run(logger, cfg, command, args))
}

// newLogger writes diagnostics to stderr so stdout only carries the migration report.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func run(logger *slog.Logger, cfg *config.Config, command string, args []string) int {
	ctx, stop := signal.NotifyContext(
		appcontext.WithLogger(context.Background(), logger),
		os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	switch command {
	case commandImport:
		return runImport(ctx, logger, cfg, args)
	case commandGenerateSample:
		if err := sample.RunGenerateSample(ctx, logger, args, cfg); err != nil {
			logger.ErrorContext(ctx, "Application terminated with an error", "error", fmt.Sprintf("%+v", err))
			return importer.ExitFailure
		}
		return importer.ExitSuccess
	default:
		logger.ErrorContext(
			ctx,
			"Usage: dataimport [import|generate-sample] [options]",
			"error", fmt.Errorf("%w: %s", errUnknownCommand, command),
		)
		return importer.ExitFailure
	}
}

func runImport(ctx context.Context, logger *slog.Logger, cfg *config.Config, args []string) int {
	importFlagSet := flag.NewFlagSet(commandImport, flag.ContinueOnError)
	importFlagSet.StringVar(&cfg.CredentialsPath, "credentials", cfg.CredentialsPath, "Path to the store credentials file")
	importFlagSet.StringVar(&cfg.ExportPath, "file", cfg.ExportPath, "Path to the JSON export file")
	importFlagSet.StringVar(&cfg.Backend, "backend", cfg.Backend, "Store backend: firestore, mongo, sqlite or memory")
	importFlagSet.StringVar(&cfg.ProjectID, "project", cfg.ProjectID, "Firestore project id (detected from credentials when empty)")
	importFlagSet.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Writes per commit; 0 commits each collection at once")
	importFlagSet.StringVar(&cfg.IDField, "id-field", cfg.IDField, "Record field used as the document key")
	importFlagSet.BoolVar(&cfg.ConvertTimestamps, "convert-timestamps", cfg.ConvertTimestamps, "Store ISO-8601 UTC strings as timestamps")
	if err := importFlagSet.Parse(args); err != nil {
		logger.ErrorContext(ctx, "Failed to parse flags", "error", err)
		return importer.ExitFailure
	}

	logger.InfoContext(
		ctx,
		"Begin data migration",
		"backend", cfg.Backend,
		"file", cfg.ExportPath,
		"batchSize", cfg.BatchSize,
	)

	im := importer.New(importer.Dependencies{
		Config: cfg,
		Connect: storage.Connector(storage.Options{
			Backend:       cfg.Backend,
			ProjectID:     cfg.ProjectID,
			MongoURI:      cfg.MongoURI,
			MongoDatabase: cfg.MongoDatabase,
			SQLitePath:    cfg.SQLitePath,
		}),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})

	return im.Run(ctx, cfg.CredentialsPath, cfg.ExportPath)
}
