package dialogue

import (
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
)

// ClassifyTier derives an NPC's disposition from the evidence count:
//
//	defensive  count <  threshold-1
//	pressured  count == threshold-1
//	confess    count >= threshold
func ClassifyTier(evidenceCount, threshold int) models.Tier {
	switch {
	case evidenceCount >= threshold:
		return models.TierConfess
	case evidenceCount == threshold-1:
		return models.TierPressured
	default:
		return models.TierDefensive
	}
}

// Machine tracks the tier of one NPC. Transitions are driven by the evidence count alone and never move backwards
// because the evidence log only grows.
type Machine struct {
	npc  story.NPC
	tier models.Tier
}

func NewMachine(npc story.NPC) *Machine {
	return &Machine{npc: npc, tier: ClassifyTier(0, npc.ConfessThreshold)}
}

// Tier returns the tier for evidenceCount without changing the machine.
func (m *Machine) Tier(evidenceCount int) models.Tier {
	return ClassifyTier(evidenceCount, m.npc.ConfessThreshold)
}

// Current is the tier reached by the last Advance.
func (m *Machine) Current() models.Tier {
	return m.tier
}

// Advance moves to the tier for evidenceCount and reports whether the tier changed.
func (m *Machine) Advance(evidenceCount int) (models.Tier, bool) {
	next := m.Tier(evidenceCount)
	if rank(next) <= rank(m.tier) {
		return m.tier, false
	}
	m.tier = next
	return next, true
}

// Behaviour returns the instruction for tier.
func (m *Machine) Behaviour(tier models.Tier) string {
	switch tier {
	case models.TierConfess:
		return m.npc.Behaviour.Confess
	case models.TierPressured:
		return m.npc.Behaviour.Pressured
	case models.TierDefensive:
		return m.npc.Behaviour.Defensive
	default:
		return m.npc.Behaviour.Defensive
	}
}

// MayConfess reports whether the NPC may reveal its secrets at tier.
func MayConfess(tier models.Tier) bool {
	return tier == models.TierConfess
}

func rank(t models.Tier) int {
	switch t {
	case models.TierConfess:
		return 2 //nolint:mnd // highest
	case models.TierPressured:
		return 1
	case models.TierDefensive:
		return 0
	default:
		return 0
	}
}
