package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// LongTermMemory is a write-through cache in front of a Storage backend.
// The cache is an identity index (id → record) only; searches always go to
// the backend. The cache is owned by this instance, never shared globally.
type LongTermMemory struct {
	storage Storage
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]Record
}

// NewLongTermMemory wraps a storage backend with an in-memory cache.
func NewLongTermMemory(storage Storage, logger *slog.Logger) *LongTermMemory {
	if logger == nil {
		logger = slog.Default()
	}
	return &LongTermMemory{
		storage: storage,
		logger:  logger.With("component", "longterm"),
		cache:   make(map[string]Record),
	}
}

// Add writes to the backend first, then inserts into the cache. When the
// backend write fails, the error propagates and the cache stays untouched;
// there is no partial success.
func (l *LongTermMemory) Add(ctx context.Context, record Record) error {
	if err := l.storage.Save(ctx, record); err != nil {
		return fmt.Errorf("saving record %s: %w", record.ID, err)
	}

	l.mu.Lock()
	l.cache[record.ID] = record
	l.mu.Unlock()
	return nil
}

// Get returns a record by ID, serving cache hits without touching the
// backend. A backend miss returns ErrNotFound and caches nothing.
func (l *LongTermMemory) Get(ctx context.Context, id string) (Record, error) {
	l.mu.RLock()
	cached, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	record, err := l.storage.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("loading record %s: %w", id, err)
	}

	l.mu.Lock()
	l.cache[id] = record
	l.mu.Unlock()
	return record, nil
}

// Search delegates entirely to the backend. The cache is not a query index.
func (l *LongTermMemory) Search(ctx context.Context, query SearchQuery) ([]Record, error) {
	return l.storage.Search(ctx, query)
}

// Delete removes a record from the backend and drops it from the cache.
func (l *LongTermMemory) Delete(ctx context.Context, id string) error {
	if err := l.storage.Delete(ctx, id); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.cache, id)
	l.mu.Unlock()
	return nil
}

// ClearCache empties the identity index only. Backend data is untouched;
// this is a cheap, reversible operation distinct from data deletion.
func (l *LongTermMemory) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]Record)
	l.mu.Unlock()
	l.logger.Debug("long-term cache cleared")
}

// CacheSize returns the number of cached records.
func (l *LongTermMemory) CacheSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// HealthCheck probes the backend.
func (l *LongTermMemory) HealthCheck(ctx context.Context) error {
	return l.storage.HealthCheck(ctx)
}
