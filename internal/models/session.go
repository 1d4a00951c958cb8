package models

import (
	"slices"
	"strings"
	"time"
)

// Speaker identifies who said a Turn in the conversation history.
type Speaker string

const (
	SpeakerNarrator Speaker = "narrator"
	SpeakerPlayer   Speaker = "player"
)

const npcSpeakerPrefix = "npc:"

// NPCSpeaker returns the speaker tag for an NPC reply.
func NPCSpeaker(npcID string) Speaker {
	return Speaker(npcSpeakerPrefix + npcID)
}

// NPCID returns the NPC id of an NPC speaker.
func (s Speaker) NPCID() (string, bool) {
	return strings.CutPrefix(string(s), npcSpeakerPrefix)
}

// Turn is one entry in the conversation history.
type Turn struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// Session holds the state of one player's game.
//
// Evidence is the ordered discovery log. Items are unique and the log only ever grows. History is never truncated
// while the session is alive.
type Session struct {
	ID         string
	LocationID string
	Evidence   []string
	History    []Turn
	CreatedAt  time.Time
	// UpdatedAt is the time of the last change. Sessions expire a TTL after it.
	UpdatedAt time.Time
}

// HasEvidence reports whether the evidence item has been discovered.
func (s Session) HasEvidence(evidenceID string) bool {
	return slices.Contains(s.Evidence, evidenceID)
}

// Clone returns a deep copy so that callers can't mutate shared state.
func (s Session) Clone() Session {
	s.Evidence = slices.Clone(s.Evidence)
	s.History = slices.Clone(s.History)
	return s
}
