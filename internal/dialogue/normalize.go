package dialogue

import "github.com/myrjola/compassmystery/internal/textnorm"

// greeting stands in for an empty question so that "talk to draco" has a stable cache key.
const greeting = "hello"

// Normalize case folds the question, strips punctuation and collapses whitespace. It is idempotent.
func Normalize(question string) string {
	return textnorm.Normalize(question)
}

// cacheQuestion is the normalized question used in cache keys.
func cacheQuestion(question string) string {
	if q := Normalize(question); q != "" {
		return q
	}
	return greeting
}
