package prompt

import "strings"

// Tokenizer counts tokens for budget decisions. Counts are approximate by
// contract: callers must not treat them as exact model tokenization.
type Tokenizer interface {
	Count(text string) int
}

// Estimator is the default Tokenizer. It averages two heuristics: a
// character-count/4 estimate and a word-count*1.3 estimate. Good enough
// for budgets; never a guarantee.
type Estimator struct{}

// Count returns the estimated token count.
func (Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	byChars := float64(len(text)) / 4.0
	byWords := float64(len(strings.Fields(text))) * 1.3
	return int((byChars+byWords)/2.0 + 0.5)
}
