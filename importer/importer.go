// Package importer migrates an export file into a document store, one collection at a time.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"nexus/dataimport/appcontext"
	"nexus/dataimport/config"
	"nexus/dataimport/export"
	"nexus/dataimport/storage"
)

// Process exit codes returned by Run.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

const defaultIDField = "id"

var errNoConnector = errors.New("no store connector configured")

// Dependencies holds all the dependencies for the Importer.
type Dependencies struct {
	Config  *config.Config
	Connect storage.ConnectFunc
	Stdout  io.Writer
	Stderr  io.Writer
}

// Importer runs a single, sequential import. It is not safe for concurrent use.
type Importer struct {
	deps        Dependencies
	BatchSize   int
	IDField     string
	LoadOptions export.Options
	stats       *Stats
}

// New creates a new Importer. Nil writers default to the process's stdout and stderr.
func New(deps Dependencies) *Importer {
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	idField := deps.Config.IDField
	if idField == "" {
		idField = defaultIDField
	}

	return &Importer{
		deps:        deps,
		BatchSize:   deps.Config.BatchSize,
		IDField:     idField,
		LoadOptions: export.Options{ConvertTimestamps: deps.Config.ConvertTimestamps},
		stats:       NewStats(),
	}
}

// Stats returns the statistics of the most recent run.
func (im *Importer) Stats() *Stats {
	return im.stats
}

// Connect opens the document store. Every failure wraps storage.ErrAuth.
func (im *Importer) Connect(ctx context.Context, credentialsPath string) (storage.Store, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Connecting to document store", "backend", im.deps.Config.Backend)

	if im.deps.Connect == nil {
		return nil, storage.AuthError(im.deps.Config.Backend, errNoConnector)
	}
	store, err := im.deps.Connect(ctx, credentialsPath)
	if err != nil {
		if errors.Is(err, storage.ErrAuth) {
			return nil, err
		}
		return nil, storage.AuthError(im.deps.Config.Backend, err)
	}

	return store, nil
}

// LoadExport reads the whole export file into memory.
func (im *Importer) LoadExport(ctx context.Context, filePath string) (*export.Document, error) {
	doc, err := export.Load(ctx, filePath, im.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load export: %w", err)
	}

	return doc, nil
}

// ImportCollection writes records into the named collection, keyed by IDField where
// present, committing BatchSize records at a time (all at once when BatchSize is 0).
// It stops at the first failed commit and returns the count written so far with an
// error wrapping ErrWrite.
func (im *Importer) ImportCollection(
	ctx context.Context,
	store storage.Store,
	name string,
	records []export.Record,
) (int, error) {
	ctx = appcontext.WithCollection(ctx, name)
	logger := appcontext.LoggerFromContext(ctx)
	if len(records) == 0 {
		logger.DebugContext(ctx, "No records to write")
		return 0, nil
	}

	docs := make([]storage.Document, 0, len(records))
	generated := 0
	for _, record := range records {
		id, ok := record.Key(im.IDField)
		if !ok {
			generated++
		}
		docs = append(docs, storage.Document{ID: id, Data: record})
	}

	size := im.BatchSize
	if size <= 0 || size > len(docs) {
		size = len(docs)
	}

	written := 0
	batch := 0
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		batch++
		n, err := store.WriteBatch(ctx, name, docs[start:end])
		if err != nil {
			logger.ErrorContext(ctx, "Batch commit failed", "batch", batch, "error", err)
			return written, WriteError(name, err)
		}
		written += n
		im.stats.Batches++
		logger.DebugContext(
			ctx,
			"Committed batch",
			"batch", batch,
			"written", written,
			"total", len(docs),
		)
	}

	logger.InfoContext(ctx, "Imported collection", "written", written, "generatedKeys", generated)
	return written, nil
}

// Run connects, loads the export and imports every collection in file order, reporting
// progress on stdout. It stops at the first error and returns ExitFailure.
func (im *Importer) Run(ctx context.Context, credentialsPath, filePath string) int {
	logger := appcontext.LoggerFromContext(ctx)
	im.stats = NewStats()

	if err := im.run(ctx, credentialsPath, filePath); err != nil {
		logger.ErrorContext(ctx, "Data migration failed", "error", err)
		fmt.Fprintf(im.deps.Stderr, "Error during migration: %v\n", err)
		im.stats.Log(logger)
		return ExitFailure
	}

	fmt.Fprintln(im.deps.Stdout)
	fmt.Fprintln(im.deps.Stdout, "Data migration completed successfully!")
	im.stats.Log(logger)

	return ExitSuccess
}

func (im *Importer) run(ctx context.Context, credentialsPath, filePath string) error {
	logger := appcontext.LoggerFromContext(ctx)

	store, err := im.Connect(ctx, credentialsPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(ctx); closeErr != nil {
			logger.ErrorContext(ctx, "Error closing document store", "error", closeErr)
		}
	}()

	doc, err := im.LoadExport(ctx, filePath)
	if err != nil {
		return err
	}
	im.stats.TotalCollections = len(doc.Collections)
	im.stats.TotalRecords = doc.RecordCount()

	for _, collection := range doc.Collections {
		fmt.Fprintf(im.deps.Stdout, "Migrating collection: %s\n", collection.Name)

		written, err := im.ImportCollection(ctx, store, collection.Name, collection.Records)
		if err != nil {
			im.stats.SetFailure(collection.Name, err.Error())
			return err
		}
		im.stats.AddCollection(collection.Name, written)

		fmt.Fprintf(im.deps.Stdout, "Successfully migrated %d documents to %s collection.\n", written, collection.Name)
	}

	return nil
}
