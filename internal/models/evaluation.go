package models

import "time"

type EvaluationCategory string

const (
	CategoryConsistency EvaluationCategory = "consistency"
	CategoryQuality     EvaluationCategory = "quality"
	CategoryProgression EvaluationCategory = "progression"
)

// EvaluationRecord is one entry of the append-only evaluation log.
type EvaluationRecord struct {
	Category EvaluationCategory `json:"category"`
	TestName string             `json:"test_name"`
	Passed   bool               `json:"passed"`
	// Coherence and Relevance are 1-5 ratings, zero when not applicable.
	Coherence int       `json:"coherence,omitempty"`
	Relevance int       `json:"relevance,omitempty"`
	At        time.Time `json:"at"`
}
