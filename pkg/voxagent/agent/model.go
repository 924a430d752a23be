// Package agent orchestrates a single conversational turn: security gate,
// memory retrieval, prompt assembly, the model call with its tool loop,
// and memory write-back. Model access and tool execution are injected
// interfaces so the orchestration is testable without a live endpoint.
package agent

import (
	"context"
	"encoding/json"

	"github.com/voxagent/voxagent/pkg/voxagent/prompt"
)

// ToolDefinition describes a callable function exposed to the model, in
// the OpenAI function-calling shape.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is the schema half of a tool definition.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and serialized arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is one model invocation.
type ChatRequest struct {
	SystemPrompt string
	History      []prompt.Message
	UserMessage  string

	// ToolExchanges replays every completed tool round of this turn, in
	// order, after the user message. Each round grows the list; earlier
	// rounds are never dropped.
	ToolExchanges []ToolExchange

	Tools []ToolDefinition
}

// ToolExchange is one completed tool round: the assistant message that
// requested tools and the results fed back.
type ToolExchange struct {
	AssistantContent string
	ToolCalls        []ToolCall
	Results          []ToolResultMessage
}

// ToolResultMessage feeds one executed tool call back to the model.
type ToolResultMessage struct {
	CallID  string
	Name    string
	Content string
}

// ChatResponse is the parsed model output for one invocation.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Usage holds token accounting from the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelClient is the AI chat interface consumed by the Agent. The
// OpenAI-compatible implementation lives in this package; tests use fakes.
type ModelClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
