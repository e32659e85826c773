package importer

import (
	"fmt"
	"log/slog"
)

// Stats holds statistics about an import run.
type Stats struct {
	TotalCollections    int
	ImportedCollections int
	TotalRecords        int
	WrittenRecords      int
	Batches             int
	Written             map[string]int
	Failed              string
	FailureReason       string
}

// NewStats creates and initializes a new Stats object.
func NewStats() *Stats {
	return &Stats{
		Written: make(map[string]int),
	}
}

// AddCollection records a successfully imported collection.
func (s *Stats) AddCollection(name string, written int) {
	s.ImportedCollections++
	s.WrittenRecords += written
	s.Written[name] = written
}

// SetFailure records the collection, if any, that aborted the run.
func (s *Stats) SetFailure(collection, reason string) {
	s.Failed = collection
	s.FailureReason = reason
}

// Log prints the final statistics to the provided logger.
func (s *Stats) Log(logger *slog.Logger) {
	logger.Info("--- Import Stats ---")
	logger.Info(fmt.Sprintf("Collections found: %d", s.TotalCollections))
	logger.Info(fmt.Sprintf("Collections imported: %d", s.ImportedCollections))
	logger.Info(fmt.Sprintf("Records found: %d", s.TotalRecords))
	logger.Info(fmt.Sprintf("Records written: %d", s.WrittenRecords))
	logger.Info(fmt.Sprintf("Batches committed: %d", s.Batches))
	if s.FailureReason != "" {
		logger.Info(fmt.Sprintf("Aborted at %q: %s", s.Failed, s.FailureReason))
	}
	logger.Info("--------------------")
}
