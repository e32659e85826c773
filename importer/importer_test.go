package importer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nexus/dataimport/appcontext"
	"nexus/dataimport/config"
	"nexus/dataimport/export"
	"nexus/dataimport/importer"
	"nexus/dataimport/storage"
)

// --- Mocks for dependencies ---

type mockStore struct {
	writeBatchFunc func(ctx context.Context, collection string, docs []storage.Document) (int, error)
	batches        [][]storage.Document
	closed         bool
}

func (m *mockStore) WriteBatch(ctx context.Context, collection string, docs []storage.Document) (int, error) {
	m.batches = append(m.batches, docs)
	if m.writeBatchFunc != nil {
		return m.writeBatchFunc(ctx, collection, docs)
	}
	return len(docs), nil
}

func (m *mockStore) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return appcontext.WithLogger(context.Background(), logger)
}

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write export file: %v", err)
	}
	return path
}

type harness struct {
	importer *importer.Importer
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newHarness(cfg *config.Config, store storage.Store, connectErr error) *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.importer = importer.New(importer.Dependencies{
		Config: cfg,
		Connect: func(ctx context.Context, credentialsPath string) (storage.Store, error) {
			if connectErr != nil {
				return nil, connectErr
			}
			return store, nil
		},
		Stdout: h.stdout,
		Stderr: h.stderr,
	})
	return h
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

// --- Tests for Run ---

func TestRun_ExampleDocument(t *testing.T) {
	path := writeExport(t, `{"data":{"players":[{"id":"p1","name":"Ana"}]}}`)
	store := storage.NewMemoryStore()
	h := newHarness(&config.Config{BatchSize: 500}, store, nil)

	code := h.importer.Run(testContext(), "sa.json", path)
	if code != importer.ExitSuccess {
		t.Fatalf("Run returned %d, stderr: %s", code, h.stderr.String())
	}

	doc, ok := store.Get("players", "p1")
	if !ok {
		t.Fatal("expected document players/p1")
	}
	if doc["name"] != "Ana" {
		t.Errorf("name got %v, want Ana", doc["name"])
	}
	if store.Count("players") != 1 {
		t.Errorf("expected exactly 1 document, got %d", store.Count("players"))
	}

	want := []string{
		"Migrating collection: players",
		"Successfully migrated 1 documents to players collection.",
		"",
		"Data migration completed successfully!",
	}
	if got := lines(h.stdout); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stdout got %q, want %q", got, want)
	}
	if h.stderr.Len() != 0 {
		t.Errorf("unexpected stderr output: %s", h.stderr.String())
	}
}

func TestRun_ReportsCollectionsInFileOrder(t *testing.T) {
	path := writeExport(t, `{"data":{
		"users": [{"id": "u1"}, {"id": "u2"}],
		"auditLogs": [],
		"tenants": [{"id": "t1"}, {"name": "generated"}, {"name": "generated"}]
	}}`)
	store := storage.NewMemoryStore()
	h := newHarness(&config.Config{}, store, nil)

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitSuccess {
		t.Fatalf("Run returned %d, stderr: %s", code, h.stderr.String())
	}

	want := []string{
		"Migrating collection: users",
		"Successfully migrated 2 documents to users collection.",
		"Migrating collection: auditLogs",
		"Successfully migrated 0 documents to auditLogs collection.",
		"Migrating collection: tenants",
		"Successfully migrated 3 documents to tenants collection.",
		"",
		"Data migration completed successfully!",
	}
	if got := lines(h.stdout); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stdout got %q, want %q", got, want)
	}

	stats := h.importer.Stats()
	if stats.TotalCollections != 3 || stats.ImportedCollections != 3 {
		t.Errorf("unexpected collection stats: %+v", stats)
	}
	if stats.TotalRecords != 5 || stats.WrittenRecords != 5 {
		t.Errorf("unexpected record stats: %+v", stats)
	}
	if store.Count("tenants") != 3 {
		t.Errorf("tenants got %d documents, want 3", store.Count("tenants"))
	}
}

func TestRun_RerunIsIdempotentOnlyForKeyedRecords(t *testing.T) {
	path := writeExport(t, `{"data":{
		"players": [{"id": "p1", "name": "Ana"}],
		"auditLogs": [{"action": "login"}]
	}}`)
	store := storage.NewMemoryStore()

	for i := 0; i < 2; i++ {
		h := newHarness(&config.Config{}, store, nil)
		if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitSuccess {
			t.Fatalf("run %d returned %d, stderr: %s", i, code, h.stderr.String())
		}
	}

	if n := store.Count("players"); n != 1 {
		t.Errorf("keyed record should be upserted once, got %d documents", n)
	}
	if n := store.Count("auditLogs"); n != 2 {
		t.Errorf("unkeyed record should be duplicated on rerun, got %d documents", n)
	}
}

func TestRun_ScalarIDsAreUpsertedOnRerun(t *testing.T) {
	path := writeExport(t, `{"data":{
		"readings": [{"id": 1.5}, {"id": true}, {"id": 12345678901234567890}]
	}}`)
	store := storage.NewMemoryStore()

	for i := 0; i < 2; i++ {
		h := newHarness(&config.Config{}, store, nil)
		if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitSuccess {
			t.Fatalf("run %d returned %d, stderr: %s", i, code, h.stderr.String())
		}
	}

	if n := store.Count("readings"); n != 3 {
		t.Errorf("scalar ids should upsert, got %d documents", n)
	}
	for _, key := range []string{"1.5", "true", "12345678901234567890"} {
		if _, ok := store.Get("readings", key); !ok {
			t.Errorf("document %q not found", key)
		}
	}
}

func TestRun_DuplicateCollectionMigratedOnce(t *testing.T) {
	path := writeExport(t, `{"data":{
		"users": [{"id": "u1"}],
		"users": [{"id": "u2"}, {"id": "u3"}]
	}}`)
	store := storage.NewMemoryStore()
	h := newHarness(&config.Config{}, store, nil)

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitSuccess {
		t.Fatalf("Run returned %d, stderr: %s", code, h.stderr.String())
	}

	want := []string{
		"Migrating collection: users",
		"Successfully migrated 2 documents to users collection.",
		"",
		"Data migration completed successfully!",
	}
	if got := lines(h.stdout); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stdout got %q, want %q", got, want)
	}
	if _, ok := store.Get("users", "u1"); ok {
		t.Error("records of the earlier users array should not be written")
	}
}

func TestRun_MissingDataField(t *testing.T) {
	path := writeExport(t, `{"players": [{"id": "p1"}]}`)
	store := &mockStore{}
	h := newHarness(&config.Config{}, store, nil)

	code := h.importer.Run(testContext(), "sa.json", path)
	if code != importer.ExitFailure {
		t.Fatalf("Run returned %d, want %d", code, importer.ExitFailure)
	}
	if len(store.batches) != 0 {
		t.Errorf("expected zero writes, got %d batches", len(store.batches))
	}
	if h.stdout.Len() != 0 {
		t.Errorf("expected no progress output, got %q", h.stdout.String())
	}
	if !strings.HasPrefix(h.stderr.String(), "Error during migration: ") {
		t.Errorf("unexpected stderr: %q", h.stderr.String())
	}
	if !store.closed {
		t.Error("store should be closed after an aborted run")
	}
}

func TestRun_MalformedExport(t *testing.T) {
	path := writeExport(t, `{"data": {"players": [{"id": "p1"`)
	store := &mockStore{}
	h := newHarness(&config.Config{}, store, nil)

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitFailure {
		t.Fatalf("Run returned %d, want %d", code, importer.ExitFailure)
	}
	if len(store.batches) != 0 {
		t.Errorf("expected zero writes, got %d batches", len(store.batches))
	}
	if !strings.Contains(h.stderr.String(), export.ErrParse.Error()) {
		t.Errorf("stderr should report the parse failure, got %q", h.stderr.String())
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	path := writeExport(t, `{"data":{"players":[{"id":"p1"}]}}`)
	h := newHarness(&config.Config{Backend: "firestore"}, nil, errors.New("permission denied"))

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitFailure {
		t.Fatalf("Run returned %d, want %d", code, importer.ExitFailure)
	}
	if h.stdout.Len() != 0 {
		t.Errorf("expected no progress output, got %q", h.stdout.String())
	}
	if !strings.Contains(h.stderr.String(), "permission denied") {
		t.Errorf("stderr should carry the connect error, got %q", h.stderr.String())
	}
}

func TestRun_WriteFailureStopsAtFirstCollection(t *testing.T) {
	path := writeExport(t, `{"data":{
		"tenants": [{"id": "t1"}],
		"users": [{"id": "u1"}],
		"staff": [{"id": "s1"}]
	}}`)
	store := &mockStore{
		writeBatchFunc: func(ctx context.Context, collection string, docs []storage.Document) (int, error) {
			if collection == "users" {
				return 0, errors.New("quota exceeded")
			}
			return len(docs), nil
		},
	}
	h := newHarness(&config.Config{}, store, nil)

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitFailure {
		t.Fatalf("Run returned %d, want %d", code, importer.ExitFailure)
	}

	want := []string{
		"Migrating collection: tenants",
		"Successfully migrated 1 documents to tenants collection.",
		"Migrating collection: users",
	}
	if got := lines(h.stdout); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("stdout got %q, want %q", got, want)
	}
	if len(store.batches) != 2 {
		t.Errorf("expected 2 batch attempts, got %d", len(store.batches))
	}
	if !strings.Contains(h.stderr.String(), `"users"`) || !strings.Contains(h.stderr.String(), "quota exceeded") {
		t.Errorf("stderr should name the collection and cause, got %q", h.stderr.String())
	}
	if stats := h.importer.Stats(); stats.Failed != "users" || stats.ImportedCollections != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

// --- Tests for the individual operations ---

func TestConnect_WrapsErrAuth(t *testing.T) {
	h := newHarness(&config.Config{Backend: "mongo"}, nil, errors.New("server selection timeout"))

	_, err := h.importer.Connect(testContext(), "sa.json")
	if !errors.Is(err, storage.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}

	already := storage.AuthError("firestore", errors.New("bad key"))
	h = newHarness(&config.Config{}, nil, already)
	_, err = h.importer.Connect(testContext(), "sa.json")
	if err != already {
		t.Errorf("ErrAuth errors should be returned unchanged, got %v", err)
	}
}

func TestConnect_NoConnector(t *testing.T) {
	im := importer.New(importer.Dependencies{Stdout: io.Discard, Stderr: io.Discard})

	_, err := im.Connect(testContext(), "sa.json")
	if !errors.Is(err, storage.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestLoadExport_SchemaError(t *testing.T) {
	path := writeExport(t, `{"data": {"players": "nope"}}`)
	im := importer.New(importer.Dependencies{})

	_, err := im.LoadExport(testContext(), path)
	if !errors.Is(err, export.ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
}

func TestImportCollection_Batching(t *testing.T) {
	records := make([]export.Record, 0, 7)
	for i := 0; i < 7; i++ {
		record := export.Record{"n": int64(i)}
		if i%2 == 0 {
			record["id"] = fmt.Sprintf("r%d", i)
		}
		records = append(records, record)
	}

	tests := []struct {
		name      string
		batchSize int
		want      []int
	}{
		{"chunked", 3, []int{3, 3, 1}},
		{"exact", 7, []int{7}},
		{"larger than collection", 500, []int{7}},
		{"single batch", 0, []int{7}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := &mockStore{}
			im := importer.New(importer.Dependencies{Config: &config.Config{BatchSize: test.batchSize}})

			n, err := im.ImportCollection(testContext(), store, "matches", records)
			if err != nil {
				t.Fatalf("ImportCollection failed: %v", err)
			}
			if n != len(records) {
				t.Errorf("written got %d, want %d", n, len(records))
			}
			var sizes []int
			for _, batch := range store.batches {
				sizes = append(sizes, len(batch))
			}
			if fmt.Sprint(sizes) != fmt.Sprint(test.want) {
				t.Errorf("batch sizes got %v, want %v", sizes, test.want)
			}
			if im.Stats().Batches != len(test.want) {
				t.Errorf("Stats.Batches got %d, want %d", im.Stats().Batches, len(test.want))
			}

			first := store.batches[0]
			if first[0].ID != "r0" || first[1].ID != "" {
				t.Errorf("unexpected document keys %q, %q", first[0].ID, first[1].ID)
			}
			if first[0].Data["id"] != "r0" {
				t.Error("id field should be written with the document")
			}
		})
	}
}

func TestImportCollection_CustomIDField(t *testing.T) {
	store := &mockStore{}
	im := importer.New(importer.Dependencies{Config: &config.Config{IDField: "uid"}})
	records := []export.Record{{"uid": "u-1", "id": "ignored"}, {"id": "also-ignored"}}

	if _, err := im.ImportCollection(testContext(), store, "users", records); err != nil {
		t.Fatalf("ImportCollection failed: %v", err)
	}
	docs := store.batches[0]
	if docs[0].ID != "u-1" || docs[1].ID != "" {
		t.Errorf("keys got %q, %q; want u-1 and generated", docs[0].ID, docs[1].ID)
	}
}

func TestImportCollection_ScopesContextToCollection(t *testing.T) {
	var seen []string
	store := &mockStore{
		writeBatchFunc: func(ctx context.Context, collection string, docs []storage.Document) (int, error) {
			name, _ := appcontext.CollectionFromContext(ctx)
			seen = append(seen, name)
			return len(docs), nil
		},
	}
	im := importer.New(importer.Dependencies{Config: &config.Config{BatchSize: 1}})

	records := []export.Record{{"id": "a"}, {"id": "b"}}
	if _, err := im.ImportCollection(testContext(), store, "teams", records); err != nil {
		t.Fatalf("ImportCollection failed: %v", err)
	}
	if strings.Join(seen, ",") != "teams,teams" {
		t.Errorf("batch contexts got %v, want both scoped to teams", seen)
	}
}

func TestImportCollection_Empty(t *testing.T) {
	store := &mockStore{}
	im := importer.New(importer.Dependencies{})

	n, err := im.ImportCollection(testContext(), store, "invites", []export.Record{})
	if err != nil || n != 0 {
		t.Fatalf("ImportCollection got (%d, %v), want (0, nil)", n, err)
	}
	if len(store.batches) != 0 {
		t.Errorf("empty collection must not commit, got %d batches", len(store.batches))
	}
}

func TestImportCollection_WriteErrorAfterPartialCommit(t *testing.T) {
	calls := 0
	store := &mockStore{
		writeBatchFunc: func(ctx context.Context, collection string, docs []storage.Document) (int, error) {
			calls++
			if calls == 2 {
				return 0, context.DeadlineExceeded
			}
			return len(docs), nil
		},
	}
	im := importer.New(importer.Dependencies{Config: &config.Config{BatchSize: 2}})
	records := []export.Record{{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}, {"id": "e"}}

	n, err := im.ImportCollection(testContext(), store, "payroll", records)
	if !errors.Is(err, importer.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if !strings.Contains(err.Error(), "payroll") {
		t.Errorf("error should name the collection, got %v", err)
	}
	if n != 2 {
		t.Errorf("written got %d, want 2", n)
	}
	if calls != 2 {
		t.Errorf("expected the import to stop after the failed commit, got %d calls", calls)
	}
}

func TestRun_ConvertTimestamps(t *testing.T) {
	path := writeExport(t, `{"data":{"contracts":[{"id":"c1","signedAt":"2025-10-14T09:30:00Z"}]}}`)
	store := storage.NewMemoryStore()
	h := newHarness(&config.Config{ConvertTimestamps: true}, store, nil)

	if code := h.importer.Run(testContext(), "sa.json", path); code != importer.ExitSuccess {
		t.Fatalf("Run returned %d, stderr: %s", code, h.stderr.String())
	}
	doc, _ := store.Get("contracts", "c1")
	if _, ok := doc["signedAt"].(time.Time); !ok {
		t.Errorf("signedAt got %T, want time.Time", doc["signedAt"])
	}
}
