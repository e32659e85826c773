package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"nexus/dataimport/appcontext"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// MaxFirestoreBatch is the number of writes Firestore accepts in a single commit.
const MaxFirestoreBatch = 500

var errInvalidPath = errors.New("invalid document path")

// FirestoreStore writes documents with Firestore write batches.
type FirestoreStore struct {
	client *firestore.Client
}

// ConnectToFirestore creates a Firestore client from a service-account file and checks
// that the credentials are accepted. An empty projectID is read from the credentials.
func ConnectToFirestore(ctx context.Context, credentialsPath, projectID string) (*FirestoreStore, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Attempting to connect to Firestore", "credentials", credentialsPath, "project", projectID)

	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, AuthError(BackendFirestore, fmt.Errorf("credentials file: %w", err))
	}
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}

	client, err := firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, AuthError(BackendFirestore, err)
	}

	// Credentials are only exchanged on the first RPC, so list one root collection.
	if _, err := client.Collections(ctx).Next(); err != nil && !errors.Is(err, iterator.Done) {
		client.Close()
		return nil, AuthError(BackendFirestore, err)
	}

	logger.InfoContext(ctx, "Successfully established connection to Firestore")
	return &FirestoreStore{client: client}, nil
}

// WriteBatch sets every document in one Firestore write batch.
func (s *FirestoreStore) WriteBatch(ctx context.Context, collection string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if len(docs) > MaxFirestoreBatch {
		return 0, fmt.Errorf("batch of %d writes exceeds the Firestore limit of %d", len(docs), MaxFirestoreBatch)
	}

	coll := s.client.Collection(collection)
	if coll == nil {
		return 0, fmt.Errorf("%w: collection %q", errInvalidPath, collection)
	}

	batch := s.client.Batch() //nolint:staticcheck // BulkWriter does not commit atomically
	for _, doc := range docs {
		ref := coll.NewDoc()
		if doc.ID != "" {
			ref = coll.Doc(doc.ID)
		}
		if ref == nil {
			return 0, fmt.Errorf("%w: %s/%s", errInvalidPath, collection, doc.ID)
		}
		batch.Set(ref, doc.Data)
	}

	if _, err := batch.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit Firestore batch of %d writes: %w", len(docs), err)
	}

	return len(docs), nil
}

// Close closes the Firestore client.
func (s *FirestoreStore) Close(_ context.Context) error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close Firestore client: %w", err)
	}

	return nil
}
