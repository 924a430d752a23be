// Package prompt implements deterministic system prompt assembly from
// behavioral facets, plus budget validation and lossy chat-history
// compression. Prompt text is only ever produced by code, never rewritten
// by a model: the sanctioned place for AI-assisted lossy work is chat
// history, not system instructions.
package prompt

import (
	"fmt"
	"strings"

	"github.com/voxagent/voxagent/pkg/voxagent/memory"
)

// Identity describes who the agent is.
type Identity struct {
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	Company   string `yaml:"company"`
	Backstory string `yaml:"backstory"`
}

// Describe renders the identity section content. Empty when nothing is set.
func (i Identity) Describe() string {
	var b strings.Builder
	if i.Name != "" {
		fmt.Fprintf(&b, "You are %s", i.Name)
		if i.Role != "" {
			fmt.Fprintf(&b, ", %s", i.Role)
		}
		if i.Company != "" {
			fmt.Fprintf(&b, " at %s", i.Company)
		}
		b.WriteString(".\n")
	} else if i.Role != "" {
		fmt.Fprintf(&b, "You are %s.\n", i.Role)
	}
	if i.Backstory != "" {
		b.WriteString(i.Backstory)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Personality describes how the agent communicates.
type Personality struct {
	Traits    []string `yaml:"traits"`
	Tone      string   `yaml:"tone"`
	Formality string   `yaml:"formality"`
	Quirks    []string `yaml:"quirks"`
}

// Describe renders the personality section content.
func (p Personality) Describe() string {
	var lines []string
	if len(p.Traits) > 0 {
		lines = append(lines, "Personality traits: "+strings.Join(p.Traits, ", ")+".")
	}
	if p.Tone != "" {
		lines = append(lines, "Tone: "+p.Tone+".")
	}
	if p.Formality != "" {
		lines = append(lines, "Formality: "+p.Formality+".")
	}
	for _, q := range p.Quirks {
		lines = append(lines, "- "+q)
	}
	return strings.Join(lines, "\n")
}

// Knowledge describes what the agent knows and where its limits are.
type Knowledge struct {
	Domains     []string `yaml:"domains"`
	Facts       []string `yaml:"facts"`
	Limitations []string `yaml:"limitations"`
}

// Describe renders the knowledge section content.
func (k Knowledge) Describe() string {
	var b strings.Builder
	if len(k.Domains) > 0 {
		b.WriteString("Areas of expertise: " + strings.Join(k.Domains, ", ") + ".\n")
	}
	if len(k.Facts) > 0 {
		b.WriteString("Known facts:\n")
		for _, f := range k.Facts {
			b.WriteString("- " + f + "\n")
		}
	}
	if len(k.Limitations) > 0 {
		b.WriteString("Limitations (state them honestly when relevant):\n")
		for _, l := range k.Limitations {
			b.WriteString("- " + l + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// Goal is a single objective the agent pursues during conversations.
type Goal struct {
	Description     string `yaml:"description"`
	SuccessCriteria string `yaml:"success_criteria"`
}

// Goals is the ordered list of objectives, most important first.
type Goals []Goal

// Describe renders the goals section content.
func (g Goals) Describe() string {
	if len(g) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Your goals, in priority order:\n")
	for i, goal := range g {
		fmt.Fprintf(&b, "%d. %s", i+1, goal.Description)
		if goal.SuccessCriteria != "" {
			fmt.Fprintf(&b, " (success: %s)", goal.SuccessCriteria)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Example is an optional few-shot exchange appended to the prompt.
type Example struct {
	User      string `yaml:"user"`
	Assistant string `yaml:"assistant"`
}

// defaultChannelRules are the built-in communication rules per channel,
// used when no override is configured.
var defaultChannelRules = map[memory.Channel]string{
	memory.ChannelCall: "You are on a voice call. Keep responses short and natural for speech: " +
		"no markdown, no lists, no URLs read out character by character. " +
		"One or two sentences per turn; pause for the caller to respond.",
	memory.ChannelSMS: "You are texting over SMS. Keep messages under 160 characters when " +
		"possible and never send more than three segments. Plain text only.",
	memory.ChannelEmail: "You are writing an email. Use a greeting and a sign-off, full " +
		"sentences, and proper paragraphs. Match the formality of the sender.",
	memory.ChannelText: "You are in a text chat. Be concise and conversational. " +
		"Light markdown is acceptable.",
}

// ChannelRules returns the communication rules for a channel, preferring
// the configured override.
func ChannelRules(overrides map[memory.Channel]string, channel memory.Channel) string {
	if rules, ok := overrides[channel]; ok {
		return rules
	}
	return defaultChannelRules[channel]
}
