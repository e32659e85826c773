package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"nexus/dataimport/appcontext"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoIDField = "_id"

// ---- Abstractions for Testability ----

// DataStore defines the interface for database operations.
type DataStore interface {
	BulkWrite(
		ctx context.Context,
		models []mongo.WriteModel,
		opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// CollectionProvider defines the interface for obtaining a collection.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// MongoCollection adapts *mongo.Collection to DataStore.
type MongoCollection struct {
	*mongo.Collection
}

// BulkWrite performs a bulk write operation.
func (c *MongoCollection) BulkWrite(
	ctx context.Context,
	models []mongo.WriteModel,
	opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	result, err := c.Collection.BulkWrite(ctx, models, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to perform BulkWrite: %w", err)
	}

	return result, nil
}

// MongoClient is the part of *mongo.Client the store needs.
type MongoClient interface {
	Disconnect(ctx context.Context) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
}

// MongoProvider adapts a MongoClient database to CollectionProvider.
type MongoProvider struct {
	client MongoClient
	dbName string
}

// NewMongoProvider creates a new MongoProvider.
func NewMongoProvider(client MongoClient, dbName string) *MongoProvider {
	return &MongoProvider{client: client, dbName: dbName}
}

// Collection returns a DataStore for the given collection name.
func (p *MongoProvider) Collection(name string) DataStore {
	return &MongoCollection{p.client.Database(p.dbName).Collection(name)}
}

// MongoStore writes documents with one ordered BulkWrite per batch.
type MongoStore struct {
	provider CollectionProvider
	client   MongoClient
}

// NewMongoStore connects to uri and returns a store writing into dbName.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := ConnectToMongoDB(ctx, uri)
	if err != nil {
		return nil, AuthError(BackendMongo, err)
	}

	return NewMongoStoreWithProvider(NewMongoProvider(client, dbName), client), nil
}

// NewMongoStoreWithProvider builds a MongoStore from its parts. client may be nil.
func NewMongoStoreWithProvider(provider CollectionProvider, client MongoClient) *MongoStore {
	return &MongoStore{provider: provider, client: client}
}

// WriteBatch replaces keyed documents by _id, inserting them when absent, and inserts
// the rest with a driver-generated ObjectID.
func (s *MongoStore) WriteBatch(ctx context.Context, collection string, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil // Nothing to write
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		body := bson.M{}
		for k, v := range doc.Data {
			body[k] = v
		}
		if doc.ID == "" {
			models = append(models, mongo.NewInsertOneModel().SetDocument(body))
			continue
		}
		body[mongoIDField] = doc.ID
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{mongoIDField: doc.ID}).
			SetReplacement(body).
			SetUpsert(true))
	}

	_, err := s.provider.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return 0, fmt.Errorf("failed to perform bulk write for collection %s: %w", collection, err)
	}

	return len(docs), nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	return nil
}

// ConnectToMongoDB establishes a connection to MongoDB.
func ConnectToMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Attempting to connect to MongoDB")

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.InfoContext(ctx, "Successfully established connection to MongoDB")
	return client, nil
}

// mongoURIFromCredentials returns the connection URI stored in credentialsPath when the
// file holds one, otherwise fallback.
func mongoURIFromCredentials(credentialsPath, fallback string) (string, error) {
	if credentialsPath == "" {
		return fallback, nil
	}
	raw, err := os.ReadFile(credentialsPath)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credentials file %s: %w", credentialsPath, err)
	}

	uri := strings.TrimSpace(string(raw))
	if strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://") {
		return uri, nil
	}

	return fallback, nil
}
