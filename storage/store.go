// Package storage defines the document store an export is written into and its backends.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Supported backends.
const (
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// ErrAuth is returned when a store connection cannot be established or authenticated.
var ErrAuth = errors.New("failed to authenticate with document store")

var errUnknownBackend = errors.New("unknown store backend")

// AuthError wraps a connection failure for the named backend.
func AuthError(backend string, err error) error {
	return fmt.Errorf("%w (%s): %w", ErrAuth, backend, err)
}

// Document is a single write addressed to a collection. An empty ID asks the store
// to generate a key.
type Document struct {
	ID   string
	Data map[string]any
}

// Store is a handle to a document database.
type Store interface {
	// WriteBatch commits docs into collection as one unit. Documents with an ID replace
	// any existing document under that key. It returns the number of documents written.
	WriteBatch(ctx context.Context, collection string, docs []Document) (int, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// ConnectFunc opens a Store using the credentials at credentialsPath.
type ConnectFunc func(ctx context.Context, credentialsPath string) (Store, error)

// Options selects and configures a backend.
type Options struct {
	Backend       string
	ProjectID     string
	MongoURI      string
	MongoDatabase string
	SQLitePath    string
}

// Connect creates a Store based on the backend name.
//
// Supported backends:
//
//	"firestore" - Cloud Firestore, authenticated with a service-account file (default)
//	"mongo"     - MongoDB; the credentials file may hold a connection URI
//	"sqlite"    - SQLite database at SQLitePath
//	"memory"    - In-memory (ephemeral, for testing and dry runs)
func Connect(ctx context.Context, credentialsPath string, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case BackendFirestore, "":
		store, err = asStore(ConnectToFirestore(ctx, credentialsPath, opts.ProjectID))
	case BackendMongo:
		uri, uriErr := mongoURIFromCredentials(credentialsPath, opts.MongoURI)
		if uriErr != nil {
			return nil, AuthError(BackendMongo, uriErr)
		}
		store, err = asStore(NewMongoStore(ctx, uri, opts.MongoDatabase))
	case BackendSQLite:
		store, err = asStore(NewSQLiteStore(opts.SQLitePath))
	case BackendMemory:
		store = NewMemoryStore()
	default:
		err = fmt.Errorf(
			"%w: %q (supported: firestore, mongo, sqlite, memory)",
			errUnknownBackend, opts.Backend,
		)
	}
	if err != nil {
		return nil, err
	}

	return store, nil
}

// asStore keeps a failed constructor's typed nil pointer out of the Store interface.
func asStore[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Connector binds opts into a ConnectFunc.
func Connector(opts Options) ConnectFunc {
	return func(ctx context.Context, credentialsPath string) (Store, error) {
		return Connect(ctx, credentialsPath, opts)
	}
}
