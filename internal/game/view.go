package game

import (
	"time"

	"github.com/myrjola/compassmystery/internal/evaluation"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
)

type LocationView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type EvidenceView struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Reveals     string   `json:"reveals"`
	PointsTo    []string `json:"points_to"`
	SolvesCase  bool     `json:"solves_case"`
}

type NPCView struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Tier models.Tier `json:"tier"`
}

type TurnView struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// StateView is the player visible state of a session.
type StateView struct {
	SessionID     string         `json:"session_id"`
	Location      LocationView   `json:"location"`
	Evidence      []EvidenceView `json:"evidence"`
	CluesFound    int            `json:"clues_found"`
	EvidenceCount int            `json:"evidence_count"`
	Solved        bool           `json:"solved"`
	NPCs          []NPCView      `json:"npcs"`
	History       []TurnView     `json:"history"`
	CreatedAt     time.Time      `json:"created_at"`
}

type DialogueView struct {
	NPCID    string      `json:"npc_id"`
	NPCName  string      `json:"npc_name"`
	Text     string      `json:"text"`
	Tone     string      `json:"tone"`
	Tier     models.Tier `json:"tier"`
	Cached   bool        `json:"cached"`
	Fallback bool        `json:"fallback"`
}

// ActionResult is the outcome of one player action.
type ActionResult struct {
	Kind               string        `json:"kind"`
	Narration          string        `json:"narration"`
	Dialogue           *DialogueView `json:"dialogue,omitempty"`
	Violations         []string      `json:"violations,omitempty"`
	EvidenceDiscovered *EvidenceView `json:"evidence_discovered,omitempty"`
	// TierChanges lists the NPCs whose tier went up because of the discovered evidence.
	TierChanges        []NPCView     `json:"tier_changes,omitempty"`
	State              StateView     `json:"state"`
}

// Report is the evaluation report together with response cache statistics.
type Report struct {
	evaluation.Report
	Cache responsecache.Stats `json:"cache"`
}
