package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// correlationScanLimit bounds the SID/identifier correlation scans. This is
// a heuristic over the most recent records, not a guaranteed lookup: on
// high-volume channels a legitimate match older than this window is missed.
const correlationScanLimit = 10

// PersistenceRules configures the auto-persist policy. When unset, the
// default rule applies: importance > 7, a type in {decision, error,
// tool_execution, system}, or a goal-achieved flag.
type PersistenceRules struct {
	// MinImportance persists any record at or above this importance.
	// Zero disables the importance rule.
	MinImportance int `yaml:"min_importance"`

	// Types persists any record whose type is listed.
	Types []RecordType `yaml:"types"`
}

// configured reports whether any custom rule is set.
func (p PersistenceRules) configured() bool {
	return p.MinImportance > 0 || len(p.Types) > 0
}

// matches applies the configured rules to a record.
func (p PersistenceRules) matches(record Record) bool {
	if p.MinImportance > 0 && record.Importance >= p.MinImportance {
		return true
	}
	for _, t := range p.Types {
		if record.Type == t {
			return true
		}
	}
	return false
}

// defaultPersistTypes are the record types persisted by the default policy.
var defaultPersistTypes = map[RecordType]bool{
	TypeDecision:      true,
	TypeError:         true,
	TypeToolExecution: true,
	TypeSystem:        true,
}

// Manager is the single entry point for all memory reads and writes. It
// composes the short-term buffer and the optional long-term store, enforces
// the persistence policy, and exposes conversation-centric queries.
//
// Storage errors are never swallowed here: they propagate to the caller,
// which is expected to log and continue with degraded context.
type Manager struct {
	shortTerm *ShortTermMemory
	longTerm  *LongTermMemory
	rules     PersistenceRules
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLongTerm attaches a long-term store. Without it, the manager runs in
// degraded mode: history and search fall back to the short-term buffer.
func WithLongTerm(lt *LongTermMemory) ManagerOption {
	return func(m *Manager) { m.longTerm = lt }
}

// WithPersistenceRules overrides the default auto-persist policy.
func WithPersistenceRules(rules PersistenceRules) ManagerOption {
	return func(m *Manager) { m.rules = rules }
}

// WithShortTermCapacity sizes the recency buffer.
func WithShortTermCapacity(capacity int) ManagerOption {
	return func(m *Manager) { m.shortTerm = NewShortTermMemory(capacity) }
}

// NewManager creates a memory manager.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		shortTerm: NewShortTermMemory(DefaultShortTermCapacity),
		logger:    logger.With("component", "memory"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store routes a record through two independent decisions: short-term
// eligibility and long-term persistence. A record can land in both tiers,
// one, or neither. A low-importance conversational turn arriving once the
// buffer is full, and matching no persistence rule, is dropped; the
// capacity guard makes that accepted behavior.
//
// Short-term is reserved as a guaranteed-recent window: once full, new
// conversation turns rely on long-term retrieval instead of silently
// pushing older turns out. The exclusion is decided at write time and is
// not retried after later evictions free space.
func (m *Manager) Store(ctx context.Context, record Record) error {
	if record.IsChatMessage() && !m.shortTerm.IsFull() {
		m.shortTerm.Add(record)
	}

	if m.shouldPersist(record) && m.longTerm != nil {
		if err := m.longTerm.Add(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// shouldPersist applies configured rules when present, the default rule
// otherwise.
func (m *Manager) shouldPersist(record Record) bool {
	if m.rules.configured() {
		return m.rules.matches(record)
	}
	return record.Importance > 7 ||
		defaultPersistTypes[record.Type] ||
		record.GoalAchieved
}

// ConversationHistory returns every stored record for a conversation in
// timestamp order. With long-term storage the query has no limit;
// short-term is never the source of truth here. Without long-term storage
// the short-term buffer is filtered instead (dev-mode behavior).
func (m *Manager) ConversationHistory(ctx context.Context, conversationID string) ([]Record, error) {
	if m.longTerm != nil {
		return m.longTerm.Search(ctx, SearchQuery{
			ConversationID: conversationID,
			OrderBy:        OrderByTimestamp,
			Ascending:      true,
		})
	}

	var out []Record
	for _, r := range m.shortTerm.GetAll() {
		if r.Session.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Search queries long-term storage when available, otherwise filters the
// short-term buffer by channel, type, and limit.
func (m *Manager) Search(ctx context.Context, query SearchQuery) ([]Record, error) {
	if m.longTerm != nil {
		return m.longTerm.Search(ctx, query)
	}

	typeSet := make(map[RecordType]bool, len(query.Types))
	for _, t := range query.Types {
		typeSet[t] = true
	}

	var out []Record
	for _, r := range m.shortTerm.GetAll() {
		if query.ConversationID != "" && r.Session.ConversationID != query.ConversationID {
			continue
		}
		if query.Channel != "" && r.Channel != query.Channel {
			continue
		}
		if len(typeSet) > 0 && !typeSet[r.Type] {
			continue
		}
		if !matchKeywords(r.Content, query.Keywords) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if query.Ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[j].Timestamp.Before(out[i].Timestamp)
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// matchKeywords OR-matches keywords as case-insensitive substrings.
// An empty keyword list matches everything.
func matchKeywords(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Get retrieves a single record by ID from long-term storage.
func (m *Manager) Get(ctx context.Context, id string) (Record, error) {
	if m.longTerm == nil {
		return Record{}, ErrNotFound
	}
	return m.longTerm.Get(ctx, id)
}

// ConversationByIdentifier scans the most recent records on a channel for a
// session whose from/to matches the identifier. First match by recency
// wins. This is a best-effort correlation over the last few records, not a
// unique-key lookup.
func (m *Manager) ConversationByIdentifier(ctx context.Context, channel Channel, identifier string) (string, error) {
	return m.correlate(ctx, SearchQuery{Channel: channel}, func(r Record) bool {
		return r.Session.From == identifier || r.Session.To == identifier
	})
}

// ConversationByCallID resolves a conversation from a call SID using the
// same recency-limited scan as ConversationByIdentifier.
func (m *Manager) ConversationByCallID(ctx context.Context, callSID string) (string, error) {
	return m.correlate(ctx, SearchQuery{}, func(r Record) bool {
		return r.Session.CallSID == callSID
	})
}

// ConversationByMessageID resolves a conversation from a message SID.
func (m *Manager) ConversationByMessageID(ctx context.Context, messageSID string) (string, error) {
	return m.correlate(ctx, SearchQuery{}, func(r Record) bool {
		return r.Session.MessageSID == messageSID
	})
}

// correlate runs the shared scan-and-match pattern behind the conversation
// resolution helpers.
func (m *Manager) correlate(ctx context.Context, base SearchQuery, match func(Record) bool) (string, error) {
	base.Limit = correlationScanLimit
	base.OrderBy = OrderByTimestamp
	base.Ascending = false

	records, err := m.Search(ctx, base)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if match(r) && r.Session.ConversationID != "" {
			return r.Session.ConversationID, nil
		}
	}
	return "", ErrNotFound
}

// StartSession stores a system record marking a session boundary. Session
// boundaries are just specially tagged records, not a separate state
// machine.
func (m *Manager) StartSession(ctx context.Context, conversationID string, channel Channel) error {
	record := NewRecord(TypeSystem, fmt.Sprintf("session started on %s", channel))
	record.Channel = channel
	record.Session.ConversationID = conversationID
	record.Session.Status = "session_start"

	m.logger.Info("session started", "conversation_id", conversationID, "channel", channel)
	return m.Store(ctx, record)
}

// EndSession stores the closing boundary record. The duration since the
// session-start record, when one is findable, is stamped into the content.
func (m *Manager) EndSession(ctx context.Context, conversationID string) error {
	content := "session ended"
	if start, err := m.sessionStart(ctx, conversationID); err == nil {
		content = fmt.Sprintf("session ended after %s", time.Since(start).Round(time.Second))
	}

	record := NewRecord(TypeSystem, content)
	record.Session.ConversationID = conversationID
	record.Session.Status = "session_end"

	m.logger.Info("session ended", "conversation_id", conversationID)
	return m.Store(ctx, record)
}

// sessionStart finds the timestamp of the session-start record.
func (m *Manager) sessionStart(ctx context.Context, conversationID string) (time.Time, error) {
	records, err := m.Search(ctx, SearchQuery{
		ConversationID: conversationID,
		Types:          []RecordType{TypeSystem},
		OrderBy:        OrderByTimestamp,
		Ascending:      true,
	})
	if err != nil {
		return time.Time{}, err
	}
	for _, r := range records {
		if r.Session.Status == "session_start" {
			return r.Timestamp, nil
		}
	}
	return time.Time{}, ErrNotFound
}

// ShortTerm exposes the buffer for inspection and disposal.
func (m *Manager) ShortTerm() *ShortTermMemory {
	return m.shortTerm
}

// LongTerm returns the long-term store, or nil in degraded mode.
func (m *Manager) LongTerm() *LongTermMemory {
	return m.longTerm
}
