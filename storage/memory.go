package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in memory. Data is lost on exit.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	commits     int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
	}
}

// WriteBatch applies all docs under one lock.
func (m *MemoryStore) WriteBatch(ctx context.Context, collection string, docs []Document) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		m.collections[collection] = coll
	}
	for _, doc := range docs {
		key := doc.ID
		if key == "" {
			key = uuid.NewString()
		}
		coll[key] = copyValue(doc.Data).(map[string]any)
	}
	m.commits++

	return len(docs), nil
}

// Get returns a copy of a single document.
func (m *MemoryStore) Get(collection, key string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, false
	}

	return copyValue(doc).(map[string]any), true
}

// Keys returns the sorted document keys of a collection.
func (m *MemoryStore) Keys(collection string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.collections[collection]))
	for k := range m.collections[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.collections[collection])
}

// Collections returns the names of all collections that contain data.
func (m *MemoryStore) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Commits returns the number of non-empty batches written.
func (m *MemoryStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.commits
}

// Close is a no-op.
func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}

// copyValue deep-copies decoded JSON values. Scalars, including time.Time, are shared.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, field := range val {
			out[k] = copyValue(field)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
