// Package export reads database export files shaped as
// {"data": {"<collection>": [{...}, ...], ...}} into memory.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nexus/dataimport/appcontext"
)

const dataField = "data"

// isoTimestamp matches the UTC timestamps written by JavaScript's Date.toISOString.
var isoTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{3})?Z$`)

// Record is a single JSON object from the export. Its fields are written verbatim.
type Record map[string]any

// Collection is one entry of the export's data object.
type Collection struct {
	Name    string
	Records []Record
}

// Document is a fully loaded export file. Collections keep the order of the source file.
type Document struct {
	Collections []Collection
}

// Options controls how records are decoded.
type Options struct {
	// ConvertTimestamps replaces ISO-8601 UTC strings with time.Time values.
	ConvertTimestamps bool
}

// RecordCount returns the total number of records across all collections.
func (d *Document) RecordCount() int {
	total := 0
	for _, c := range d.Collections {
		total += len(c.Records)
	}

	return total
}

// Key returns the storage key held in idField. Strings are used as is, numbers keep
// their shortest decimal form and booleans become "true" or "false". A missing, null
// or empty value, or a nested object or array, yields ok == false.
func (r Record) Key(idField string) (string, bool) {
	switch v := r[idField].(type) {
	case string:
		return v, v != ""
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case json.Number:
		return v.String(), v != ""
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	}

	return "", false
}

// Load reads the file at path and decodes it into a Document.
func Load(ctx context.Context, path string, opts Options) (*Document, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Loading export file", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ParseError(path, err)
	}

	doc, err := Decode(raw, opts)
	if err != nil {
		if errors.Is(err, ErrSchema) {
			return nil, err
		}
		return nil, ParseError(path, err)
	}

	logger.InfoContext(
		ctx,
		"Loaded export file",
		"path", path,
		"collections", len(doc.Collections),
		"records", doc.RecordCount(),
	)

	return doc, nil
}

// Decode parses an in-memory export document.
func Decode(raw []byte, opts Options) (*Document, error) {
	var whole json.RawMessage
	if err := json.Unmarshal(raw, &whole); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, SchemaError("top-level value is not an object")
	}

	// Duplicate keys resolve to the last occurrence, as JSON.parse does.
	var data json.RawMessage
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		if key != dataField {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}
		data = nil
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", dataField, err)
		}
	}

	if data == nil {
		return nil, SchemaError(fmt.Sprintf("missing %q field", dataField))
	}

	dataDec := json.NewDecoder(bytes.NewReader(data))
	dataDec.UseNumber()

	return decodeData(dataDec, opts)
}

func decodeData(dec *json.Decoder, opts Options) (*Document, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, SchemaError(fmt.Sprintf("%q is not an object", dataField))
	}

	doc := &Document{}
	// A repeated collection name keeps its first position and its last records.
	positions := make(map[string]int)
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		records, err := decodeRecords(dec, name, opts)
		if err != nil {
			return nil, err
		}
		if i, seen := positions[name]; seen {
			doc.Collections[i].Records = records
			continue
		}
		positions[name] = len(doc.Collections)
		doc.Collections = append(doc.Collections, Collection{Name: name, Records: records})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read end of %q: %w", dataField, err)
	}

	return doc, nil
}

func decodeRecords(dec *json.Decoder, collection string, opts Options) ([]Record, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, SchemaError(fmt.Sprintf("collection %q is not an array", collection))
	}

	records := []Record{}
	for dec.More() {
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to decode record %d of %q: %w", len(records), collection, err)
		}
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, SchemaError(fmt.Sprintf("record %d of collection %q is not an object", len(records), collection))
		}
		records = append(records, Record(normalize(obj, opts).(map[string]any)))
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read end of collection %q: %w", collection, err)
	}

	return records, nil
}

// normalize converts json.Number values to int64 or float64 and, when requested,
// timestamp strings to time.Time. Integer literals outside the int64 range keep their
// exact digits as a string, since float64 would round them.
func normalize(value any, opts Options) any {
	switch v := value.(type) {
	case map[string]any:
		for key, field := range v {
			v[key] = normalize(field, opts)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalize(item, opts)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if isIntegerLiteral(v.String()) {
			return v.String()
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case string:
		if opts.ConvertTimestamps && isoTimestamp.MatchString(v) {
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return ts.UTC()
			}
		}
		return v
	default:
		return v
	}
}

func isIntegerLiteral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}

	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("failed to read object key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}

	return key, nil
}

func skipValue(dec *json.Decoder) error {
	var discard json.RawMessage
	if err := dec.Decode(&discard); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to skip value: %w", err)
	}

	return nil
}
