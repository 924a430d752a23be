package memory

import "sync"

// DefaultShortTermCapacity is the default size of the recency buffer.
const DefaultShortTermCapacity = 20

// ShortTermMemory is a bounded FIFO buffer holding the most recent
// conversation records for one process's working set. Overflow evicts the
// oldest records silently; eviction is expected behavior, not an error.
// The buffer has no I/O and cannot fail.
type ShortTermMemory struct {
	mu       sync.RWMutex
	records  []Record
	capacity int
}

// NewShortTermMemory creates a buffer with the given capacity.
// Non-positive capacities fall back to the default.
func NewShortTermMemory(capacity int) *ShortTermMemory {
	if capacity <= 0 {
		capacity = DefaultShortTermCapacity
	}
	return &ShortTermMemory{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a record, evicting from the front until the size invariant
// (len <= capacity) holds again.
func (s *ShortTermMemory) Add(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	for len(s.records) > s.capacity {
		s.records = s.records[1:]
	}
}

// GetAll returns a snapshot copy of the buffer, oldest first.
func (s *ShortTermMemory) GetAll() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// IsFull reports whether the buffer is at capacity. The manager uses this
// for eligibility decisions; Add never blocks.
func (s *ShortTermMemory) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records) >= s.capacity
}

// Len returns the current number of buffered records.
func (s *ShortTermMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Capacity returns the configured capacity.
func (s *ShortTermMemory) Capacity() int {
	return s.capacity
}

// Clear empties the buffer. Persistent storage is untouched.
func (s *ShortTermMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}
