// Package textnorm normalizes free text for matching and cache keys.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Normalize case folds s, strips punctuation and symbols, collapses whitespace runs to a single space and trims.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	// Casers keep state and must not be shared between goroutines.
	folded := cases.Fold().String(s)
	stripped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			return -1
		case unicode.IsSpace(r):
			return ' '
		default:
			return r
		}
	}, folded)
	return strings.Join(strings.Fields(stripped), " ")
}

// ContainsPhrase reports whether the normalized phrase occurs in the normalized text on word boundaries.
// Both arguments are normalized first.
func ContainsPhrase(text, phrase string) bool {
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+Normalize(text)+" ", " "+p+" ")
}

// Identifier turns an identifier such as "torn_page" into matchable words ("torn page").
func Identifier(id string) string {
	return Normalize(strings.NewReplacer("_", " ", "-", " ").Replace(id))
}
