package config

import (
	"time"
)

// Config holds the application configuration.
type Config struct {
	CredentialsPath   string
	ExportPath        string
	Backend           string
	ProjectID         string
	MongoURI          string
	MongoDatabase     string
	SQLitePath        string
	BatchSize         int
	IDField           string
	ConvertTimestamps bool
	LogLevel          string
	SampleRows        int
	SamplePath        string
	Timeout           time.Duration
}
