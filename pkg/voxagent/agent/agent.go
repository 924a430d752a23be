package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
	"github.com/voxagent/voxagent/pkg/voxagent/prompt"
	"github.com/voxagent/voxagent/pkg/voxagent/security"
)

// maxToolIterations bounds the tool loop for one turn. The model gets
// this many rounds of tool results before being forced to answer.
const maxToolIterations = 5

// defaultHistoryTokens is the compression target for replayed history.
const defaultHistoryTokens = 4000

// Request is one inbound user message.
type Request struct {
	ConversationID string
	Channel        memory.Channel
	Message        string

	// Correlation metadata recorded with the turn.
	From       string
	To         string
	CallSID    string
	MessageSID string
}

// Response is the agent's reply for one turn.
type Response struct {
	Content string

	// Blocked is true when the security gate refused the input without
	// a model call.
	Blocked bool

	RiskLevel     security.RiskLevel
	ToolCallCount int
}

// Agent orchestrates a single turn end to end. One Agent instance serves
// one configured persona; it owns its memory manager and prompt cache.
type Agent struct {
	logger    *slog.Logger
	validator *security.Validator
	mem       *memory.Manager
	builder   *prompt.Builder
	optimizer *prompt.Optimizer
	model     ModelClient
	tools     *ToolRegistry

	historyTokens int

	// promptCache holds the optimized system prompt per channel. Facets
	// are fixed for the agent's lifetime, so entries never invalidate.
	cacheMu     sync.Mutex
	promptCache map[memory.Channel]string
}

// Option configures an Agent.
type Option func(*Agent)

// WithTools sets the tool registry.
func WithTools(r *ToolRegistry) Option {
	return func(a *Agent) {
		if r != nil {
			a.tools = r
		}
	}
}

// WithHistoryTokens overrides the history compression target.
func WithHistoryTokens(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyTokens = n
		}
	}
}

// New creates an agent over its collaborators.
func New(logger *slog.Logger, mem *memory.Manager, builder *prompt.Builder, optimizer *prompt.Optimizer, model ModelClient, opts ...Option) *Agent {
	a := &Agent{
		logger:        logger.With("component", "agent"),
		validator:     security.NewValidator(),
		mem:           mem,
		builder:       builder,
		optimizer:     optimizer,
		model:         model,
		tools:         NewToolRegistry(),
		historyTokens: defaultHistoryTokens,
		promptCache:   make(map[memory.Channel]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tools returns the agent's tool registry, for registration at setup.
func (a *Agent) Tools() *ToolRegistry {
	return a.tools
}

// Process handles one inbound message: security gate, memory retrieval,
// prompt assembly, model call with tool loop, memory write-back. Storage
// failures degrade the turn (empty history, unsaved records) but never
// abort it; only a prompt over its token budget is a hard error.
func (a *Agent) Process(ctx context.Context, req Request) (*Response, error) {
	log := a.logger.With("conversation_id", req.ConversationID, "channel", req.Channel)

	check := a.validator.Validate(req.Message)
	if check.RiskLevel == security.RiskHigh {
		log.Warn("input blocked", "patterns", check.DetectedPatterns)
		resp := &Response{
			Content:   channelResponse(refusalResponses, req.Channel),
			Blocked:   true,
			RiskLevel: check.RiskLevel,
		}
		a.recordBlocked(ctx, req, check, log)
		return resp, nil
	}
	if check.RiskLevel == security.RiskMedium {
		log.Warn("suspicious input, proceeding sanitized", "patterns", check.DetectedPatterns)
	}
	message := check.SanitizedContent

	systemPrompt, err := a.systemPrompt(req.Channel)
	if err != nil {
		return nil, err
	}

	history := a.loadHistory(ctx, req.ConversationID, log)
	if compressed, cerr := a.optimizer.CompressChatHistory(ctx, history, a.historyTokens); cerr != nil {
		log.Warn("history compression failed, replaying full history", "error", cerr)
	} else {
		history = compressed
	}

	content, toolCalls, err := a.converse(ctx, systemPrompt, history, message, req, log)
	if err != nil {
		log.Error("model conversation failed", "error", err)
		content = a.recover(ctx, systemPrompt, req.Channel, log)
	}

	a.recordTurn(ctx, req, message, content, log)

	return &Response{
		Content:       content,
		RiskLevel:     check.RiskLevel,
		ToolCallCount: toolCalls,
	}, nil
}

// systemPrompt returns the cached optimized prompt for a channel,
// building it on first use. A prompt over budget fails every turn on
// that channel until the configuration shrinks.
func (a *Agent) systemPrompt(channel memory.Channel) (string, error) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	if cached, ok := a.promptCache[channel]; ok {
		return cached, nil
	}
	optimized, err := a.optimizer.Optimize(a.builder.Build(channel))
	if err != nil {
		return "", fmt.Errorf("building system prompt: %w", err)
	}
	a.promptCache[channel] = optimized
	return optimized, nil
}

// loadHistory fetches the conversation's chat messages. On storage
// failure the turn continues with no history.
func (a *Agent) loadHistory(ctx context.Context, conversationID string, log *slog.Logger) []prompt.Message {
	records, err := a.mem.ConversationHistory(ctx, conversationID)
	if err != nil {
		log.Warn("history retrieval failed, continuing without context", "error", err)
		return nil
	}

	msgs := make([]prompt.Message, 0, len(records))
	for _, r := range records {
		if !r.IsChatMessage() {
			continue
		}
		msgs = append(msgs, prompt.Message{Role: r.Role, Content: r.Content})
	}
	return msgs
}

// converse runs the model call and its tool loop, returning the final
// text and how many tool calls executed.
func (a *Agent) converse(ctx context.Context, systemPrompt string, history []prompt.Message, message string, req Request, log *slog.Logger) (string, int, error) {
	modelReq := ChatRequest{
		SystemPrompt: systemPrompt,
		History:      history,
		UserMessage:  message,
		Tools:        a.tools.Definitions(),
	}

	executed := 0
	for iteration := 0; ; iteration++ {
		resp, err := a.model.Chat(ctx, modelReq)
		if err != nil {
			return "", executed, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, executed, nil
		}
		if iteration >= maxToolIterations {
			log.Warn("tool iteration limit reached", "iterations", iteration)
			if resp.Content != "" {
				return resp.Content, executed, nil
			}
			return "", executed, fmt.Errorf("model kept requesting tools after %d rounds", iteration)
		}

		results := make([]ToolResultMessage, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result, invocation := a.tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
			executed++
			log.Info("tool executed",
				"tool", call.Function.Name,
				"success", result.Success,
			)
			a.recordToolExecution(ctx, req, invocation, result, log)
			results = append(results, ToolResultMessage{
				CallID:  call.ID,
				Name:    call.Function.Name,
				Content: result.ModelContent(),
			})
		}

		// The finished round joins the running exchange list; the next
		// request replays every round so far.
		modelReq.ToolExchanges = append(modelReq.ToolExchanges, ToolExchange{
			AssistantContent: resp.Content,
			ToolCalls:        resp.ToolCalls,
			Results:          results,
		})
	}
}

// recordBlocked persists a blocked input as a roleless error record. The
// verbatim attack text is never stored as a chat message, so it cannot be
// replayed to the model on later turns.
func (a *Agent) recordBlocked(ctx context.Context, req Request, check security.ValidationResult, log *slog.Logger) {
	categories := make([]string, 0, len(check.DetectedPatterns))
	for _, c := range check.DetectedPatterns {
		categories = append(categories, string(c))
	}

	rec := memory.NewRecord(memory.TypeError,
		fmt.Sprintf("input blocked by security gate: %s", strings.Join(categories, ", ")))
	rec.Channel = req.Channel
	rec.Session = memory.SessionMetadata{
		ConversationID: req.ConversationID,
		CallSID:        req.CallSID,
		MessageSID:     req.MessageSID,
		From:           req.From,
		To:             req.To,
		Direction:      "inbound",
		Status:         "blocked",
	}
	if err := a.mem.Store(ctx, rec); err != nil {
		log.Warn("failed to persist blocked input record", "error", err)
	}
}

// recover attempts a secondary model call with an error-recovery prompt;
// if that also fails it falls back to the channel's static message.
func (a *Agent) recover(ctx context.Context, systemPrompt string, channel memory.Channel, log *slog.Logger) string {
	resp, err := a.model.Chat(ctx, ChatRequest{
		SystemPrompt: systemPrompt,
		UserMessage: "The previous attempt to answer failed due to a technical problem. " +
			"Apologize briefly, in character, and invite the user to try again. " +
			"Do not mention internal errors or systems.",
	})
	if err == nil && resp.Content != "" {
		return resp.Content
	}
	log.Error("recovery call failed, using static fallback", "error", err)
	return channelResponse(fallbackResponses, channel)
}

// channelResponse picks the canned message for a channel, using the text
// variant for unknown or unset channels so SDK callers never get an
// empty reply.
func channelResponse(responses map[memory.Channel]string, channel memory.Channel) string {
	if msg, ok := responses[channel]; ok {
		return msg
	}
	return responses[memory.ChannelText]
}

// recordTurn persists the user and assistant messages for this turn.
// Storage failures are logged and swallowed.
func (a *Agent) recordTurn(ctx context.Context, req Request, userMessage, assistantMessage string, log *slog.Logger) {
	session := memory.SessionMetadata{
		ConversationID: req.ConversationID,
		CallSID:        req.CallSID,
		MessageSID:     req.MessageSID,
		From:           req.From,
		To:             req.To,
		Direction:      "inbound",
	}

	user := memory.NewRecord(memory.TypeConversation, userMessage)
	user.Role = memory.RoleUser
	user.Channel = req.Channel
	user.Session = session
	if err := a.mem.Store(ctx, user); err != nil {
		log.Warn("failed to persist user turn", "error", err)
	}

	assistant := memory.NewRecord(memory.TypeConversation, assistantMessage)
	assistant.Role = memory.RoleAssistant
	assistant.Channel = req.Channel
	assistant.Session = session
	assistant.Session.Direction = "outbound"
	if err := a.mem.Store(ctx, assistant); err != nil {
		log.Warn("failed to persist assistant turn", "error", err)
	}
}

// recordToolExecution persists one tool call and its outcome.
func (a *Agent) recordToolExecution(ctx context.Context, req Request, invocation *memory.ToolInvocation, result ToolResult, log *slog.Logger) {
	rec := memory.NewRecord(memory.TypeToolExecution, fmt.Sprintf("tool %s executed", invocation.Name))
	rec.Channel = req.Channel
	rec.Session = memory.SessionMetadata{ConversationID: req.ConversationID}
	rec.ToolCall = invocation
	rec.ToolResult = result.Outcome()
	if err := a.mem.Store(ctx, rec); err != nil {
		log.Warn("failed to persist tool execution", "error", err)
	}
}

// refusalResponses are the canned replies for blocked input, phrased per
// channel formality.
var refusalResponses = map[memory.Channel]string{
	memory.ChannelCall:  "I'm sorry, I can't help with that request. Is there something else I can do for you?",
	memory.ChannelSMS:   "Sorry, I can't help with that. Anything else?",
	memory.ChannelEmail: "Thank you for your message. I'm unable to assist with that request, but I'm happy to help with anything else.",
	memory.ChannelText:  "Sorry, I can't help with that request. Is there something else I can do for you?",
}

// fallbackResponses are the static error replies used when both the
// primary and recovery model calls fail.
var fallbackResponses = map[memory.Channel]string{
	memory.ChannelCall:  "I'm sorry, I'm having trouble right now. Could you try again in a moment?",
	memory.ChannelSMS:   "Sorry, something went wrong. Please try again shortly.",
	memory.ChannelEmail: "Apologies, we were unable to process your message due to a temporary issue. Please try again shortly.",
	memory.ChannelText:  "Sorry, something went wrong on my end. Please try again in a moment.",
}
