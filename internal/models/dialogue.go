package models

import (
	"slices"
	"strings"
)

// Tier is an NPC's disposition derived from the evidence count relative to its confession threshold.
type Tier string

const (
	TierDefensive Tier = "defensive"
	TierPressured Tier = "pressured"
	TierConfess   Tier = "confess"
)

// Violation is an advisory flag raised when generated dialogue breaks the story.
type Violation string

const (
	ViolationKnowledge            Violation = "knowledge_violation"
	ViolationPrematureRevelation  Violation = "premature_revelation"
	ViolationHallucinatedLocation Violation = "hallucinated_location"
	ViolationHallucinatedNPC      Violation = "hallucinated_npc"
)

// Violations is a sorted set of flags.
type Violations []Violation

// NewViolations sorts and de-duplicates flags.
func NewViolations(flags ...Violation) Violations {
	v := slices.Clone(flags)
	slices.Sort(v)
	return slices.Compact(v)
}

func (v Violations) Has(flag Violation) bool {
	_, found := slices.BinarySearch(v, flag)
	return found
}

func (v Violations) String() string {
	s := make([]string, len(v))
	for i, flag := range v {
		s[i] = string(flag)
	}
	return strings.Join(s, ",")
}

// DialogueResult is what an NPC said in response to a question.
type DialogueResult struct {
	NPCID   string
	NPCName string
	Tier    Tier
	// Question is the normalized question used for caching.
	Question      string
	Response      string
	Tone          string
	EvidenceCount int
	Violations    Violations
	// Cached is true when the response was served from the response cache.
	Cached bool
	// Fallback is true when the response is the NPC's canned line because generation failed.
	Fallback bool
}
