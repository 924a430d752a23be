package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestManager(t *testing.T, capacity int) (*Manager, *fakeStorage) {
	t.Helper()
	backend := newFakeStorage()
	m := NewManager(nil,
		WithShortTermCapacity(capacity),
		WithLongTerm(NewLongTermMemory(backend, nil)),
	)
	return m, backend
}

func conversationRecord(conversationID, content string, role Role) Record {
	r := NewRecord(TypeConversation, content)
	r.Role = role
	r.Session.ConversationID = conversationID
	return r
}

func TestManager_StoreShortTermEligibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		record     func() Record
		inShort    bool
	}{
		{
			name: "conversation with role",
			record: func() Record {
				return conversationRecord("c1", "hi", RoleUser)
			},
			inShort: true,
		},
		{
			name: "conversation without role",
			record: func() Record {
				r := NewRecord(TypeConversation, "no role")
				r.Session.ConversationID = "c1"
				return r
			},
			inShort: false,
		},
		{
			name: "decision record",
			record: func() Record {
				return NewRecord(TypeDecision, "picked option A")
			},
			inShort: false,
		},
		{
			name: "system record",
			record: func() Record {
				return NewRecord(TypeSystem, "boot")
			},
			inShort: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newTestManager(t, 5)
			if err := m.Store(context.Background(), tt.record()); err != nil {
				t.Fatalf("Store: %v", err)
			}
			got := m.ShortTerm().Len() == 1
			if got != tt.inShort {
				t.Errorf("in short-term = %v, want %v", got, tt.inShort)
			}
		})
	}
}

func TestManager_StoreFullBufferExcludesPermanently(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.Store(ctx, conversationRecord("c1", fmt.Sprintf("m%d", i), RoleUser)); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	if !m.ShortTerm().IsFull() {
		t.Fatal("buffer should be full")
	}

	// Arrives while full: bypasses short-term entirely.
	late := conversationRecord("c1", "late turn", RoleUser)
	if err := m.Store(ctx, late); err != nil {
		t.Fatalf("Store: %v", err)
	}

	for _, r := range m.ShortTerm().GetAll() {
		if r.ID == late.ID {
			t.Error("record stored while buffer full must not enter short-term")
		}
	}
	if m.ShortTerm().Len() != 2 {
		t.Errorf("Len = %d, want 2 (no eviction for ineligible write)", m.ShortTerm().Len())
	}
}

func TestManager_PersistencePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		record    func() Record
		persisted bool
	}{
		{"high importance", func() Record {
			r := conversationRecord("c1", "crucial", RoleUser)
			r.Importance = 8
			return r
		}, true},
		{"importance exactly 7", func() Record {
			r := conversationRecord("c1", "notable", RoleUser)
			r.Importance = 7
			return r
		}, false},
		{"decision type", func() Record {
			return NewRecord(TypeDecision, "decided")
		}, true},
		{"error type", func() Record {
			return NewRecord(TypeError, "boom")
		}, true},
		{"tool execution", func() Record {
			return NewRecord(TypeToolExecution, "ran tool")
		}, true},
		{"system type", func() Record {
			return NewRecord(TypeSystem, "boundary")
		}, true},
		{"goal achieved", func() Record {
			r := conversationRecord("c1", "done!", RoleAssistant)
			r.GoalAchieved = true
			return r
		}, true},
		{"plain conversation", func() Record {
			return conversationRecord("c1", "chit chat", RoleUser)
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, backend := newTestManager(t, 5)
			record := tt.record()
			if err := m.Store(context.Background(), record); err != nil {
				t.Fatalf("Store: %v", err)
			}
			_, ok := backend.records[record.ID]
			if ok != tt.persisted {
				t.Errorf("persisted = %v, want %v", ok, tt.persisted)
			}
		})
	}
}

func TestManager_PersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t, 5)
	ctx := context.Background()

	r := NewRecord(TypeDecision, "escalate to human")
	if err := m.Store(ctx, r); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := m.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "escalate to human" {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestManager_CustomPersistenceRules(t *testing.T) {
	t.Parallel()

	backend := newFakeStorage()
	m := NewManager(nil,
		WithLongTerm(NewLongTermMemory(backend, nil)),
		WithPersistenceRules(PersistenceRules{MinImportance: 5}),
	)
	ctx := context.Background()

	// Configured rules replace the defaults: a decision record with no
	// importance no longer auto-persists.
	decision := NewRecord(TypeDecision, "not persisted under custom rules")
	if err := m.Store(ctx, decision); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := backend.records[decision.ID]; ok {
		t.Error("custom rules should override default type persistence")
	}

	mid := conversationRecord("c1", "importance five", RoleUser)
	mid.Importance = 5
	if err := m.Store(ctx, mid); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := backend.records[mid.ID]; !ok {
		t.Error("record meeting MinImportance should persist")
	}
}

func TestManager_ConversationHistoryOrdered(t *testing.T) {
	t.Parallel()

	m, backend := newTestManager(t, 5)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	// Insert out of order, all persisted via importance.
	for _, offset := range []int{30, 10, 20} {
		r := conversationRecord("conv-42", fmt.Sprintf("turn at +%dm", offset), RoleUser)
		r.Importance = 9
		r.Timestamp = base.Add(time.Duration(offset) * time.Minute)
		backend.records[r.ID] = r
	}

	history, err := m.ConversationHistory(ctx, "conv-42")
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len = %d, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Errorf("history not in non-decreasing timestamp order at %d", i)
		}
	}
}

func TestManager_ConversationHistoryFallback(t *testing.T) {
	t.Parallel()

	// No long-term storage: history comes from the short-term buffer.
	m := NewManager(nil, WithShortTermCapacity(10))
	ctx := context.Background()

	if err := m.Store(ctx, conversationRecord("c1", "mine", RoleUser)); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := m.Store(ctx, conversationRecord("c2", "other", RoleUser)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	history, err := m.ConversationHistory(ctx, "c1")
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 1 || history[0].Content != "mine" {
		t.Errorf("history = %+v, want single c1 record", history)
	}
}

func TestManager_SearchFallbackFilters(t *testing.T) {
	t.Parallel()

	m := NewManager(nil, WithShortTermCapacity(10))
	ctx := context.Background()

	sms := conversationRecord("c1", "sms turn", RoleUser)
	sms.Channel = ChannelSMS
	call := conversationRecord("c1", "call turn", RoleUser)
	call.Channel = ChannelCall

	for _, r := range []Record{sms, call} {
		if err := m.Store(ctx, r); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	got, err := m.Search(ctx, SearchQuery{Channel: ChannelSMS})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Channel != ChannelSMS {
		t.Errorf("Search by channel = %+v", got)
	}

	got, err = m.Search(ctx, SearchQuery{Types: []RecordType{TypeConversation}, Limit: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limit not applied: len = %d", len(got))
	}
}

func TestManager_ConversationByIdentifier(t *testing.T) {
	t.Parallel()

	m, backend := newTestManager(t, 5)
	ctx := context.Background()

	r := conversationRecord("conv-sms-1", "inbound text", RoleUser)
	r.Channel = ChannelSMS
	r.Session.From = "+15551234567"
	backend.records[r.ID] = r

	id, err := m.ConversationByIdentifier(ctx, ChannelSMS, "+15551234567")
	if err != nil {
		t.Fatalf("ConversationByIdentifier: %v", err)
	}
	if id != "conv-sms-1" {
		t.Errorf("conversation = %q, want conv-sms-1", id)
	}

	if _, err := m.ConversationByIdentifier(ctx, ChannelSMS, "+10000000000"); err == nil {
		t.Error("expected no match for unknown identifier")
	}
}

func TestManager_ConversationBySIDs(t *testing.T) {
	t.Parallel()

	m, backend := newTestManager(t, 5)
	ctx := context.Background()

	r := conversationRecord("conv-call-9", "voice turn", RoleUser)
	r.Channel = ChannelCall
	r.Session.CallSID = "CA123"
	r.Session.MessageSID = "SM456"
	backend.records[r.ID] = r

	if id, err := m.ConversationByCallID(ctx, "CA123"); err != nil || id != "conv-call-9" {
		t.Errorf("ConversationByCallID = %q, %v", id, err)
	}
	if id, err := m.ConversationByMessageID(ctx, "SM456"); err != nil || id != "conv-call-9" {
		t.Errorf("ConversationByMessageID = %q, %v", id, err)
	}
}

func TestManager_SessionLifecycle(t *testing.T) {
	t.Parallel()

	m, backend := newTestManager(t, 5)
	ctx := context.Background()

	if err := m.StartSession(ctx, "conv-7", ChannelCall); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.EndSession(ctx, "conv-7"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	var statuses []string
	for _, r := range backend.records {
		if r.Type != TypeSystem {
			t.Errorf("session boundary record has type %q", r.Type)
		}
		statuses = append(statuses, r.Session.Status)
	}
	if len(statuses) != 2 {
		t.Fatalf("stored %d system records, want 2", len(statuses))
	}
	found := map[string]bool{}
	for _, s := range statuses {
		found[s] = true
	}
	if !found["session_start"] || !found["session_end"] {
		t.Errorf("statuses = %v, want session_start and session_end", statuses)
	}
}
