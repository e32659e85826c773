package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default values.
const (
	defaultCredentialsPath   = "./service-account.json"
	defaultExportPath        = "./database-export.json"
	defaultBackend           = "firestore"
	defaultMongoURI          = "mongodb://localhost:27017/migration"
	defaultMongoHost         = "localhost"
	defaultMongoPort         = "27017"
	defaultMongoDatabase     = "migration"
	defaultSQLitePath        = "./data/import.db"
	defaultBatchSize         = 500
	defaultIDField           = "id"
	defaultConvertTimestamps = false
	defaultLogLevel          = "info"
	defaultSampleRows        = 100
	defaultSamplePath        = "tmp/sample-export.json"
	defaultTimeoutSeconds    = 0
	envCredentials           = "GOOGLE_APPLICATION_CREDENTIALS"
	envExportFile            = "EXPORT_FILE"
	envBackend               = "STORE_BACKEND"
	envFirestoreProject      = "FIRESTORE_PROJECT_ID"
	envCloudProject          = "GOOGLE_CLOUD_PROJECT"
	envMongoURI              = "MONGO_URI"
	envMongoHost             = "MONGO_HOST"
	envMongoUser             = "MONGO_USER"
	envMongoPassword         = "MONGO_PASSWORD"
	envMongoDatabase         = "MONGO_DATABASE"
	envSQLitePath            = "SQLITE_PATH"
	envBatchSize             = "BATCH_SIZE"
	envIDField               = "ID_FIELD"
	envConvertTimestamps     = "CONVERT_TIMESTAMPS"
	envLogLevel              = "LOG_LEVEL"
	envTimeoutSeconds        = "TIMEOUT_SECONDS"
	dotEnvFile               = ".env"
)

// LoadConfig loads the application configuration from environment variables or uses default values.
// A .env file in the working directory is loaded first; variables already set in the
// environment take precedence over it.
func LoadConfig(ctx context.Context, logger *slog.Logger) *Config {
	loadDotEnv(ctx, logger)

	mongoDatabase := stringFromEnv(ctx, logger, envMongoDatabase, defaultMongoDatabase)
	mongoURI := formatMongoURI(ctx, os.Getenv(envMongoURI), mongoDatabase, logger)

	return &Config{
		CredentialsPath:   stringFromEnv(ctx, logger, envCredentials, defaultCredentialsPath),
		ExportPath:        stringFromEnv(ctx, logger, envExportFile, defaultExportPath),
		Backend:           strings.ToLower(stringFromEnv(ctx, logger, envBackend, defaultBackend)),
		ProjectID:         projectID(ctx, logger),
		MongoURI:          mongoURI,
		MongoDatabase:     mongoDatabase,
		SQLitePath:        stringFromEnv(ctx, logger, envSQLitePath, defaultSQLitePath),
		BatchSize:         intFromEnv(ctx, logger, envBatchSize, defaultBatchSize),
		IDField:           stringFromEnv(ctx, logger, envIDField, defaultIDField),
		ConvertTimestamps: boolFromEnv(ctx, logger, envConvertTimestamps, defaultConvertTimestamps),
		LogLevel:          stringFromEnv(ctx, logger, envLogLevel, defaultLogLevel),
		SampleRows:        defaultSampleRows,
		SamplePath:        defaultSamplePath,
		Timeout:           time.Duration(intFromEnv(ctx, logger, envTimeoutSeconds, defaultTimeoutSeconds)) * time.Second,
	}
}

// ParseLevel maps a LOG_LEVEL value onto a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return l
}

func loadDotEnv(ctx context.Context, logger *slog.Logger) {
	err := godotenv.Load(dotEnvFile)
	switch {
	case err == nil:
		logger.DebugContext(ctx, "Loaded environment file", "file", dotEnvFile)
	case errors.Is(err, fs.ErrNotExist):
		logger.DebugContext(ctx, "No environment file found, using process environment", "file", dotEnvFile)
	default:
		logger.WarnContext(ctx, "Failed to load environment file", "file", dotEnvFile, "error", err)
	}
}

func stringFromEnv(ctx context.Context, logger *slog.Logger, key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", fallback)
		return fallback
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", value)

	return value
}

func intFromEnv(ctx context.Context, logger *slog.Logger, key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", fallback)
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		logger.WarnContext(
			ctx,
			"Invalid value for "+key+", using default",
			"value", raw,
			"default", fallback,
			"error", err,
		)
		return fallback
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)

	return parsed
}

func boolFromEnv(ctx context.Context, logger *slog.Logger, key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		logger.DebugContext(ctx, "Using default value", "key", key, "value", fallback)
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		logger.WarnContext(
			ctx,
			"Invalid value for "+key+", using default",
			"value", raw,
			"default", fallback,
			"error", err,
		)
		return fallback
	}
	logger.DebugContext(ctx, "Using value from environment variable", "key", key, "value", parsed)

	return parsed
}

// projectID prefers FIRESTORE_PROJECT_ID over GOOGLE_CLOUD_PROJECT. An empty result means
// the project is detected from the credentials file.
func projectID(ctx context.Context, logger *slog.Logger) string {
	for _, key := range []string{envFirestoreProject, envCloudProject} {
		if value := os.Getenv(key); value != "" {
			logger.DebugContext(ctx, "Using project id from environment variable", "key", key, "project", value)
			return value
		}
	}
	logger.DebugContext(ctx, "No project id configured, detecting from credentials")

	return ""
}

// formatMongoURI formats mongo settings to a url and return the result.
func formatMongoURI(
	ctx context.Context,
	mongoURI string,
	database string,
	logger *slog.Logger,
) string {
	if mongoURI != "" {
		logger.DebugContext(ctx, "Using MongoDB URI from environment variable")
		return mongoURI
	}

	mongoHost := os.Getenv(envMongoHost)
	if mongoHost == "" {
		mongoHost = defaultMongoHost
		logger.DebugContext(ctx, "Using default MongoDB host", "host", mongoHost)
	} else {
		logger.DebugContext(ctx, "Using MongoDB host from environment variable", "host", mongoHost)
	}

	mongoUser := os.Getenv(envMongoUser)
	mongoPassword := os.Getenv(envMongoPassword)

	if mongoUser != "" && mongoPassword != "" {
		hostPort := net.JoinHostPort(mongoHost, defaultMongoPort)
		mongoURI = fmt.Sprintf(
			"mongodb://%s:%s@%s/%s?authSource=admin",
			mongoUser,
			mongoPassword,
			hostPort,
			database,
		)
		logger.DebugContext(ctx, "Created MongoDB URI from user, password, and host", "host", hostPort)
	} else {
		mongoURI = defaultMongoURI
		logger.DebugContext(ctx, "Using default MongoDB URI", "uri", mongoURI)
	}
	return mongoURI
}
