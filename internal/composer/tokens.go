package composer

import (
	"regexp"
	"unicode/utf8"
)

// tokenSplit matches runs of whitespace or punctuation — the
// regex-based split spec.md §4.7 mandates for the token accountant,
// calibrated against a common BPE tokenizer within ±5% on
// representative prose.
var tokenSplit = regexp.MustCompile(`[\s[:punct:]]+`)

// TokenCounter estimates a text's token count, generalized from the
// teacher's internal/context/tokens.go TokenCounter (which counted
// Mangle facts via a chars-per-token calibration) to counting Block
// content via the whitespace/punctuation split spec.md requires.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter builds a counter with the teacher's ~4-chars/token
// calibration idea, used only as a fallback for text with no
// recognizable word boundaries (e.g. a single very long token).
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{charsPerToken: 4.0}
}

// Count estimates s's token count: split on whitespace/punctuation
// runs, treating each surviving piece as roughly one token, with a
// length-based fallback for any piece long enough that a real BPE
// tokenizer would have split it further.
func (tc *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	pieces := tokenSplit.Split(s, -1)
	total := 0
	for _, p := range pieces {
		if p == "" {
			continue
		}
		runes := utf8.RuneCountInString(p)
		if float64(runes) <= tc.charsPerToken {
			total++
			continue
		}
		total += int(float64(runes)/tc.charsPerToken + 0.5)
	}
	return total
}
