package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

// DefaultMaxTokens is the system prompt budget when none is configured.
const DefaultMaxTokens = 8000

// compressKeepRecent is how many trailing messages survive compression
// verbatim.
const compressKeepRecent = 5

// Message is a single chat turn as replayed to the model.
type Message struct {
	Role    memory.Role `json:"role"`
	Content string      `json:"content"`
}

// SectionTokens is one entry of the per-section breakdown carried by
// PromptTooLargeError.
type SectionTokens struct {
	Name   string
	Tokens int
}

// PromptTooLargeError reports a system prompt over its token budget. The
// optimizer refuses to shrink system instructions on its own; the caller
// decides what to cut, guided by the breakdown.
type PromptTooLargeError struct {
	Tokens   int
	Limit    int
	Sections []SectionTokens
}

func (e *PromptTooLargeError) Error() string {
	return fmt.Sprintf("system prompt is %d tokens, limit %d", e.Tokens, e.Limit)
}

// Summarizer produces a lossy summary of old chat history. Implemented by
// the model client; history compression is the only place a model is
// allowed to rewrite prompt material.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Optimizer validates system prompt size and compresses chat history.
// The two responsibilities are deliberately separate: validation is
// deterministic and hard-fails, compression is lossy and best-effort.
type Optimizer struct {
	maxTokens  int
	tokenizer  Tokenizer
	summarizer Summarizer
}

// OptimizerOption configures an Optimizer.
type OptimizerOption func(*Optimizer)

// WithMaxTokens overrides the system prompt budget.
func WithMaxTokens(n int) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTokenizer injects a counting strategy.
func WithTokenizer(t Tokenizer) OptimizerOption {
	return func(o *Optimizer) {
		if t != nil {
			o.tokenizer = t
		}
	}
}

// WithSummarizer enables AI-assisted history compression.
func WithSummarizer(s Summarizer) OptimizerOption {
	return func(o *Optimizer) { o.summarizer = s }
}

// NewOptimizer creates an optimizer with the default estimator and budget.
func NewOptimizer(opts ...OptimizerOption) *Optimizer {
	o := &Optimizer{
		maxTokens: DefaultMaxTokens,
		tokenizer: Estimator{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxTokens returns the configured budget.
func (o *Optimizer) MaxTokens() int {
	return o.maxTokens
}

// Optimize applies deterministic cleanup to a system prompt and validates
// it against the token budget. Over budget it returns a
// PromptTooLargeError with the per-section breakdown; it never trims
// system instructions itself.
func (o *Optimizer) Optimize(systemPrompt string) (string, error) {
	cleaned := Cleanup(systemPrompt)

	tokens := o.tokenizer.Count(cleaned)
	if tokens <= o.maxTokens {
		return cleaned, nil
	}

	return "", &PromptTooLargeError{
		Tokens:   tokens,
		Limit:    o.maxTokens,
		Sections: o.sectionBreakdown(cleaned),
	}
}

// SuggestOptimizations returns human-readable trimming advice without
// triggering the hard failure path.
func (o *Optimizer) SuggestOptimizations(systemPrompt string) []string {
	cleaned := Cleanup(systemPrompt)
	tokens := o.tokenizer.Count(cleaned)

	var suggestions []string
	if tokens <= o.maxTokens {
		suggestions = append(suggestions,
			fmt.Sprintf("prompt fits the budget (%d of %d tokens)", tokens, o.maxTokens))
	} else {
		suggestions = append(suggestions,
			fmt.Sprintf("prompt is %d tokens over the %d budget", tokens-o.maxTokens, o.maxTokens))
	}

	breakdown := o.sectionBreakdown(cleaned)
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Tokens > breakdown[j].Tokens
	})
	for i, s := range breakdown {
		if i >= 3 {
			break
		}
		suggestions = append(suggestions,
			fmt.Sprintf("largest section %q uses ~%d tokens", s.Name, s.Tokens))
	}

	suggestions = append(suggestions,
		"move rarely needed facts out of Knowledge into tool lookups",
		"shorten few-shot examples or drop all but the most representative one",
	)
	return suggestions
}

// sectionBreakdown splits a prompt on top-level "## " headings and counts
// tokens per section. Text before the first heading is reported as
// "(preamble)".
func (o *Optimizer) sectionBreakdown(text string) []SectionTokens {
	var out []SectionTokens
	name := "(preamble)"
	var current []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(current, "\n"))
		if content != "" {
			out = append(out, SectionTokens{Name: name, Tokens: o.tokenizer.Count(content)})
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			name = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		current = append(current, line)
	}
	flush()
	return out
}

// CompressChatHistory reduces a conversation to roughly targetTokens. Only
// user/assistant turns belong here, never system instructions.
//
// Without a summarizer, or when the history already fits, the result is
// the unchanged history or a chronological tail truncation. With a
// summarizer, the most recent messages are kept verbatim and everything
// older is replaced by a single synthetic system message carrying the
// summary.
func (o *Optimizer) CompressChatHistory(ctx context.Context, history []Message, targetTokens int) ([]Message, error) {
	if targetTokens <= 0 || o.historyTokens(history) <= targetTokens {
		return history, nil
	}

	if o.summarizer == nil {
		return o.truncateTail(history, targetTokens), nil
	}

	if len(history) <= compressKeepRecent {
		return history, nil
	}

	old := history[:len(history)-compressKeepRecent]
	recent := history[len(history)-compressKeepRecent:]

	// Too few old messages to be worth a summarization call.
	if len(old) < compressKeepRecent {
		out := make([]Message, len(recent))
		copy(out, recent)
		return out, nil
	}

	var b strings.Builder
	for _, m := range old {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	summary, err := o.summarizer.Summarize(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("summarizing history: %w", err)
	}

	out := make([]Message, 0, len(recent)+1)
	out = append(out, Message{
		Role:    memory.RoleSystem,
		Content: "Summary of the earlier conversation: " + summary,
	})
	out = append(out, recent...)
	return out, nil
}

// truncateTail keeps the most recent messages that fit the target,
// dropping oldest first and preserving chronological order.
func (o *Optimizer) truncateTail(history []Message, targetTokens int) []Message {
	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := o.tokenizer.Count(history[i].Content)
		if total+tokens > targetTokens && cut < len(history) {
			break
		}
		if total+tokens > targetTokens {
			// Even the newest message alone exceeds the target; keep it
			// anyway so the model sees the latest turn.
			cut = i
			break
		}
		total += tokens
		cut = i
	}
	out := make([]Message, len(history)-cut)
	copy(out, history[cut:])
	return out
}

// historyTokens sums per-message counts.
func (o *Optimizer) historyTokens(history []Message) int {
	total := 0
	for _, m := range history {
		total += o.tokenizer.Count(m.Content)
	}
	return total
}

var (
	spaceRuns = regexp.MustCompile(` {2,}`)
)

// Cleanup normalizes a prompt deterministically: tabs become two spaces,
// space runs collapse, consecutive duplicate lines collapse, and blank
// runs are capped at one empty line (two consecutive newlines).
func Cleanup(text string) string {
	lines := strings.Split(text, "\n")

	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "  ")
		line = spaceRuns.ReplaceAllString(line, " ")
		normalized = append(normalized, strings.TrimRight(line, " "))
	}

	out := make([]string, 0, len(normalized))
	blanks := 0
	for _, line := range normalized {
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
			out = append(out, line)
			continue
		}
		blanks = 0
		if len(out) > 0 && out[len(out)-1] == line {
			continue // duplicate consecutive line
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
