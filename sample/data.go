package sample

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// isoMillis is the layout JavaScript's Date.toISOString produces.
const isoMillis = "2006-01-02T15:04:05.000Z"

var errNoCollections = errors.New("at least one collection name is required")

// Record is a single synthetic row.
type Record struct {
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"createdAt"`
}

// GenerateExport writes an export file at path with rows records in each collection.
// Records at odd positions have no id so the store assigns one.
func GenerateExport(path string, collections []string, rows int) error {
	if len(collections) == 0 {
		return errNoCollections
	}
	if rows < 0 {
		return fmt.Errorf("rows must not be negative, got %d", rows)
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory '%s': %w", dir, err)
		}
	}

	// Built by hand so the collections keep the order they were given in.
	var buf bytes.Buffer
	buf.WriteString(`{"data":{`)
	for i, name := range collections {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return fmt.Errorf("failed to encode collection name %q: %w", name, err)
		}
		records, err := json.Marshal(generateRecords(name, rows))
		if err != nil {
			return fmt.Errorf("failed to encode records for %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(records)
	}
	buf.WriteString("}}\n")

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to create file '%s': %w", path, err)
	}

	return nil
}

func generateRecords(collection string, rows int) []Record {
	records := make([]Record, 0, rows)
	now := time.Now().UTC()
	for i := 0; i < rows; i++ {
		record := Record{
			Name:      fmt.Sprintf("Synthetic %s %d", collection, i),
			Amount:    float64(rand.Intn(100000)) / 100,
			Active:    rand.Intn(2) == 0,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour).Format(isoMillis),
		}
		if i%2 == 0 {
			record.ID = fmt.Sprintf("%s-%04d", collection, i)
		}
		records = append(records, record)
	}

	return records
}
