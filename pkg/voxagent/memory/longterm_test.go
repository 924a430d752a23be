package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeStorage is an in-memory Storage for tests. It can be told to fail
// writes and counts backend hits so cache behavior is observable.
type fakeStorage struct {
	mu       sync.Mutex
	records  map[string]Record
	saveErr  error
	getCalls int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: make(map[string]Record)}
}

func (f *fakeStorage) Save(_ context.Context, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[record.ID] = record
	return nil
}

func (f *fakeStorage) SaveBatch(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := f.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStorage) Get(_ context.Context, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	r, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStorage) Search(_ context.Context, query SearchQuery) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	typeSet := make(map[RecordType]bool)
	for _, t := range query.Types {
		typeSet[t] = true
	}

	var out []Record
	for _, r := range f.records {
		if query.ConversationID != "" && r.Session.ConversationID != query.ConversationID {
			continue
		}
		if query.Channel != "" && r.Channel != query.Channel {
			continue
		}
		if len(typeSet) > 0 && !typeSet[r.Type] {
			continue
		}
		if query.MinImportance > 0 && r.Importance < query.MinImportance {
			continue
		}
		if len(query.Keywords) > 0 {
			matched := false
			for _, kw := range query.Keywords {
				if kw != "" && strings.Contains(strings.ToLower(r.Content), strings.ToLower(kw)) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if query.OrderBy == OrderByImportance {
			if query.Ascending {
				return out[i].Importance < out[j].Importance
			}
			return out[i].Importance > out[j].Importance
		}
		if query.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[j].Timestamp.Before(out[i].Timestamp)
	})

	if query.Offset > 0 && query.Offset < len(out) {
		out = out[query.Offset:]
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (f *fakeStorage) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeStorage) HealthCheck(context.Context) error { return nil }

func TestLongTermMemory_AddWriteThrough(t *testing.T) {
	t.Parallel()

	backend := newFakeStorage()
	lt := NewLongTermMemory(backend, nil)

	r := NewRecord(TypeDecision, "chose plan B")
	if err := lt.Add(context.Background(), r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Cache hit: backend should not be queried.
	got, err := lt.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "chose plan B" {
		t.Errorf("Content = %q", got.Content)
	}
	if backend.getCalls != 0 {
		t.Errorf("backend Get calls = %d, want 0 (cache hit)", backend.getCalls)
	}
}

func TestLongTermMemory_AddBackendFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeStorage()
	backend.saveErr = errors.New("disk full")
	lt := NewLongTermMemory(backend, nil)

	r := NewRecord(TypeDecision, "should not cache")
	if err := lt.Add(context.Background(), r); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if lt.CacheSize() != 0 {
		t.Errorf("CacheSize = %d, want 0 after failed write", lt.CacheSize())
	}
}

func TestLongTermMemory_GetMissPopulatesCache(t *testing.T) {
	t.Parallel()

	backend := newFakeStorage()
	r := NewRecord(TypeDecision, "stored out of band")
	backend.records[r.ID] = r

	lt := NewLongTermMemory(backend, nil)

	if _, err := lt.Get(context.Background(), r.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if backend.getCalls != 1 {
		t.Fatalf("backend Get calls = %d, want 1", backend.getCalls)
	}

	// Second read served from cache.
	if _, err := lt.Get(context.Background(), r.ID); err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if backend.getCalls != 1 {
		t.Errorf("backend Get calls = %d, want 1 (second read cached)", backend.getCalls)
	}
}

func TestLongTermMemory_GetNotFound(t *testing.T) {
	t.Parallel()

	lt := NewLongTermMemory(newFakeStorage(), nil)
	_, err := lt.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if lt.CacheSize() != 0 {
		t.Errorf("backend miss must not populate cache")
	}
}

func TestLongTermMemory_ClearCacheKeepsBackend(t *testing.T) {
	t.Parallel()

	backend := newFakeStorage()
	lt := NewLongTermMemory(backend, nil)

	r := NewRecord(TypeDecision, "persisted")
	if err := lt.Add(context.Background(), r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	lt.ClearCache()
	if lt.CacheSize() != 0 {
		t.Errorf("CacheSize = %d, want 0", lt.CacheSize())
	}

	// Record still retrievable from the backend.
	got, err := lt.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get after ClearCache: %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
}
