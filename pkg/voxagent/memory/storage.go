package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Storage.Get when no record matches the ID.
var ErrNotFound = errors.New("memory: record not found")

// OrderBy selects the sort key for search results.
type OrderBy string

const (
	OrderByTimestamp  OrderBy = "timestamp"
	OrderByImportance OrderBy = "importance"
)

// SearchQuery filters and paginates a storage search. Zero values mean
// "no constraint". Keywords are OR-matched as content substrings.
type SearchQuery struct {
	ConversationID string
	Channel        Channel
	Types          []RecordType
	Role           Role
	Since          time.Time
	Until          time.Time
	MinImportance  int
	Keywords       []string

	Limit  int
	Offset int

	OrderBy   OrderBy
	Ascending bool
}

// Storage is the pluggable long-term backend. Implementations must persist
// the full Record shape field-for-field so backends stay interchangeable.
// Concurrent writes are the backend's responsibility.
type Storage interface {
	Save(ctx context.Context, record Record) error
	SaveBatch(ctx context.Context, records []Record) error
	Get(ctx context.Context, id string) (Record, error)
	Search(ctx context.Context, query SearchQuery) ([]Record, error)
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
}
