// Package memory implements VoxAgent's tiered conversation memory:
// a bounded in-process short-term buffer plus a cached long-term store
// backed by pluggable storage. The Manager composes both tiers and owns
// the persistence policy and conversation lookup helpers.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// RecordType classifies a memory record and drives the persistence policy.
type RecordType string

const (
	TypeConversation  RecordType = "conversation"
	TypeDecision      RecordType = "decision"
	TypeError         RecordType = "error"
	TypeToolExecution RecordType = "tool_execution"
	TypeSystem        RecordType = "system"
)

// Channel identifies the communication surface a record originated from.
type Channel string

const (
	ChannelCall  Channel = "call"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelText  Channel = "text"
)

// Role is the chat role a record would replay as. Records without a role
// are never replayed as chat messages.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// SessionMetadata holds the correlation fields for a record. ConversationID
// is the only join key across subsystems; there is no foreign-key
// enforcement, so lookups by SID or participant are best-effort field
// matches, not indexed joins.
type SessionMetadata struct {
	ConversationID string `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	CallSID        string `json:"call_sid,omitempty" yaml:"call_sid,omitempty"`
	MessageSID     string `json:"message_sid,omitempty" yaml:"message_sid,omitempty"`
	From           string `json:"from,omitempty" yaml:"from,omitempty"`
	To             string `json:"to,omitempty" yaml:"to,omitempty"`
	ThreadID       string `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	InReplyTo      string `json:"in_reply_to,omitempty" yaml:"in_reply_to,omitempty"`
	Direction      string `json:"direction,omitempty" yaml:"direction,omitempty"`
	Status         string `json:"status,omitempty" yaml:"status,omitempty"`
}

// ToolInvocation captures a tool call requested by the model.
type ToolInvocation struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolOutcome captures the result of executing a tool call.
type ToolOutcome struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Response string `json:"response,omitempty"`
}

// Record is the atomic unit of conversational state. Records are immutable
// once stored: updates are expressed as new records.
type Record struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Type      RecordType `json:"type"`

	// Importance ranges 1-10; 0 means unset. Values above 7 trigger
	// long-term persistence under the default policy.
	Importance int `json:"importance,omitempty"`

	Channel Channel `json:"channel,omitempty"`
	Role    Role    `json:"role,omitempty"`

	Session SessionMetadata `json:"session,omitempty"`

	ToolCall   *ToolInvocation `json:"tool_call,omitempty"`
	ToolResult *ToolOutcome    `json:"tool_result,omitempty"`

	GoalAchieved bool `json:"goal_achieved,omitempty"`
}

// NewRecord creates a record with a generated ID and the current timestamp.
func NewRecord(recordType RecordType, content string) Record {
	return Record{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UTC(),
		Type:      recordType,
	}
}

// IsChatMessage reports whether the record can be replayed as a chat
// message: conversation type with a role set.
func (r Record) IsChatMessage() bool {
	return r.Type == TypeConversation && r.Role != ""
}
