package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// Response, when set, is a ready-made user-facing phrase the model
	// may use instead of describing Data itself.
	Response string `json:"response,omitempty"`
}

// ToolHandler executes one tool call with parsed parameters.
type ToolHandler func(ctx context.Context, params map[string]any) (ToolResult, error)

// Tool pairs a model-facing definition with its handler.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object. Empty means no parameters.
	Parameters json.RawMessage
	Handler    ToolHandler
}

// ToolRegistry holds the tools exposed to the model for a given agent.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Definitions returns the OpenAI-shaped definitions for every registered
// tool, sorted by name for deterministic request bodies.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs the named tool with JSON-encoded arguments. Unknown tools
// and argument parse failures return a failed result, not an error: the
// model sees the failure and can recover in-conversation.
func (r *ToolRegistry) Execute(ctx context.Context, name, arguments string) (ToolResult, *memory.ToolInvocation) {
	params := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			return ToolResult{
				Success: false,
				Error:   fmt.Sprintf("invalid arguments: %v", err),
			}, &memory.ToolInvocation{Name: name}
		}
	}
	invocation := &memory.ToolInvocation{Name: name, Parameters: params}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", name),
		}, invocation
	}

	result, err := t.Handler(ctx, params)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}, invocation
	}
	return result, invocation
}

// Outcome converts a result to its memory representation.
func (t ToolResult) Outcome() *memory.ToolOutcome {
	return &memory.ToolOutcome{
		Success:  t.Success,
		Data:     t.Data,
		Error:    t.Error,
		Response: t.Response,
	}
}

// ModelContent renders the result as the tool-role message content fed
// back to the model.
func (t ToolResult) ModelContent() string {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"encoding result: %v"}`, err)
	}
	return string(b)
}
