// Package security implements the pre-model input gate: pattern-based
// detection of prompt-injection attempts plus delimiter sanitization.
// Detection is pure string matching; nothing here calls a model.
package security

import (
	"regexp"
	"strings"
)

// Category names a class of injection attempt.
type Category string

const (
	CategoryRoleOverride       Category = "role_override"
	CategoryPromptExtraction   Category = "prompt_extraction"
	CategoryRoleplay           Category = "roleplay"
	CategoryDelimiterConfusion Category = "delimiter_confusion"
	CategoryDANJailbreak       Category = "dan_jailbreak"
	CategorySpecialTokens      Category = "special_tokens"
)

// RiskLevel classifies an input for the caller's short-circuit policy.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// highRiskCategories force RiskHigh when any of them match. The remaining
// categories alone yield RiskMedium.
var highRiskCategories = map[Category]bool{
	CategoryRoleOverride:       true,
	CategoryPromptExtraction:   true,
	CategoryDelimiterConfusion: true,
}

// Rule pairs a detection pattern with its category.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// ValidationResult is the outcome of one validate pass.
type ValidationResult struct {
	// IsSecure is false when any pattern matched.
	IsSecure bool

	// SanitizedContent always carries the sanitized input, even for
	// clean text, so callers can use it unconditionally.
	SanitizedContent string

	RiskLevel        RiskLevel
	DetectedPatterns []Category
}

// Validator is a stateless pattern matcher run once per inbound user
// message before any model call.
type Validator struct {
	rules []Rule
}

// NewValidator creates a validator with the built-in ruleset.
func NewValidator() *Validator {
	return &Validator{rules: defaultRules()}
}

// Validate runs every pattern against the input, derives the risk level
// from the matched categories, and returns the sanitized content.
// Sanitization is applied regardless of risk so the result is safe to
// forward as-is.
func (v *Validator) Validate(input string) ValidationResult {
	seen := make(map[Category]bool)
	var detected []Category
	for _, rule := range v.rules {
		if seen[rule.Category] {
			continue
		}
		if rule.Pattern.MatchString(input) {
			seen[rule.Category] = true
			detected = append(detected, rule.Category)
		}
	}

	risk := RiskLow
	if len(detected) > 0 {
		risk = RiskMedium
		for _, c := range detected {
			if highRiskCategories[c] {
				risk = RiskHigh
				break
			}
		}
	}

	return ValidationResult{
		IsSecure:         len(detected) == 0,
		SanitizedContent: Sanitize(input),
		RiskLevel:        risk,
		DetectedPatterns: detected,
	}
}

// specialTokenStrings are known model control sequences stripped from
// every input. Plain substrings, not regexes, so removal is cheap to
// repeat to a fixpoint.
var specialTokenStrings = []string{
	"<|im_start|>",
	"<|im_end|>",
	"<|endoftext|>",
	"<|system|>",
	"<|user|>",
	"<|assistant|>",
	"[INST]",
	"[/INST]",
	"<<SYS>>",
	"<</SYS>>",
}

// Sanitize strips known special-token and delimiter sequences. Removal
// repeats until the text stops changing, so sanitizing already-sanitized
// text is a no-op and split tokens cannot reassemble.
func Sanitize(input string) string {
	out := input
	for {
		next := out
		for _, tok := range specialTokenStrings {
			next = strings.ReplaceAll(next, tok, "")
		}
		if next == out {
			return out
		}
		out = next
	}
}

// defaultRules returns the built-in detection ruleset, grouped by
// category. Patterns are case-insensitive and intentionally loose; false
// positives cost a refusal, false negatives cost a compromised prompt.
func defaultRules() []Rule {
	return []Rule{
		// -- Role override: instructions to discard or replace the
		// system prompt.
		{
			Category: CategoryRoleOverride,
			Pattern:  regexp.MustCompile(`(?i)\bignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|directions?)`),
		},
		{
			Category: CategoryRoleOverride,
			Pattern:  regexp.MustCompile(`(?i)\b(disregard|forget|override)\s+(your|all|the|previous|prior)\s+(instructions?|rules?|training|prompts?)`),
		},
		{
			Category: CategoryRoleOverride,
			Pattern:  regexp.MustCompile(`(?i)\byou\s+are\s+no\s+longer\b`),
		},
		{
			Category: CategoryRoleOverride,
			Pattern:  regexp.MustCompile(`(?i)\bnew\s+(system\s+)?instructions?\s*:`),
		},

		// -- Prompt extraction: attempts to read the system prompt back.
		{
			Category: CategoryPromptExtraction,
			Pattern:  regexp.MustCompile(`(?i)\b(show|reveal|print|repeat|display|output|tell)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?|rules?)`),
		},
		{
			Category: CategoryPromptExtraction,
			Pattern:  regexp.MustCompile(`(?i)\bwhat\s+(is|are|were)\s+your\s+(initial\s+|original\s+|system\s+)?(instructions?|prompts?|rules?)`),
		},
		{
			Category: CategoryPromptExtraction,
			Pattern:  regexp.MustCompile(`(?i)\brepeat\s+(everything|the\s+text)\s+(above|before)`),
		},

		// -- Roleplay coercion: pretend to be an unrestricted persona.
		{
			Category: CategoryRoleplay,
			Pattern:  regexp.MustCompile(`(?i)\b(pretend|act\s+as\s+if|imagine)\s+(you\s+(are|were|have)|to\s+be)\b.{0,40}\b(no\s+(rules?|restrictions?|limits?|guidelines?)|unrestricted|uncensored)`),
		},
		{
			Category: CategoryRoleplay,
			Pattern:  regexp.MustCompile(`(?i)\b(act|you\s+will\s+act)\s+as\s+a\s+different\s+(ai|assistant|model|persona)`),
		},

		// -- Delimiter confusion: fake structural markers inside content.
		{
			Category: CategoryDelimiterConfusion,
			Pattern:  regexp.MustCompile(`(?i)(^|\n)\s*#{1,3}\s*(system|instructions?)\s*(:|\n)`),
		},
		{
			Category: CategoryDelimiterConfusion,
			Pattern:  regexp.MustCompile("(?i)```\\s*(system|instructions?)\\b"),
		},
		{
			Category: CategoryDelimiterConfusion,
			Pattern:  regexp.MustCompile(`(?i)\[\s*(system|assistant)\s+(message|prompt|override)\s*\]`),
		},

		// -- DAN-style jailbreaks.
		{
			Category: CategoryDANJailbreak,
			Pattern:  regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
		},
		{
			Category: CategoryDANJailbreak,
			Pattern:  regexp.MustCompile(`(?i)\b(dan|jailbreak|jailbroken|developer)\s+mode\b`),
		},

		// -- Raw model control tokens.
		{
			Category: CategorySpecialTokens,
			Pattern:  regexp.MustCompile(`<\|[a-z_]+\|>`),
		},
		{
			Category: CategorySpecialTokens,
			Pattern:  regexp.MustCompile(`(?i)(\[/?INST\]|<</?SYS>>)`),
		},
	}
}
