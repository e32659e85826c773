package export

import (
	"errors"
	"fmt"
)

// ErrParse is returned when the export file is missing, unreadable, or not valid JSON.
var ErrParse = errors.New("failed to parse export file")

// ErrSchema is returned when the export document does not have the expected shape.
var ErrSchema = errors.New("export document has an invalid shape")

// ParseError wraps a read or decode failure for the file at path.
func ParseError(path string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrParse, path, err)
}

// SchemaError reports why the document was rejected.
func SchemaError(reason string) error {
	return fmt.Errorf("%w: %s", ErrSchema, reason)
}
