package importer

import (
	"errors"
	"fmt"
)

// ErrWrite is returned when a batch commit for a collection fails.
var ErrWrite = errors.New("failed to write collection")

// WriteError wraps a commit failure for the named collection.
func WriteError(collection string, err error) error {
	return fmt.Errorf("%w %q: %w", ErrWrite, collection, err)
}
