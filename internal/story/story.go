// Package story holds the canonical, immutable definition of the mystery: the crime, the locations, the evidence
// that can be found there and what each character knows.
//
// A Truth is built once at startup by Load and never mutated afterwards. Accessors return copies so that callers
// can't alter the canonical story.
package story

import (
	"slices"
	"strings"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/textnorm"
)

var ErrNotFound = errors.NewSentinel("not found")

// Crime describes what actually happened.
type Crime struct {
	What  string `json:"what"`
	When  string `json:"when"`
	Where string `json:"where"`
	Who   string `json:"who"`
	How   string `json:"how"`
	Why   string `json:"why"`
}

type Location struct {
	ID          string
	Name        string
	Description string
	Aliases     []string
	EvidenceIDs []string
}

type EvidenceItem struct {
	ID          string
	LocationID  string
	Description string
	// Reveals is the narrative meaning of the evidence.
	Reveals string
	// PointsTo lists the NPC ids the evidence implicates.
	PointsTo   []string
	SolvesCase bool
	Aliases    []string
}

// Implicates reports whether the evidence points to anyone. Only such evidence builds confession pressure.
func (e EvidenceItem) Implicates() bool {
	return len(e.PointsTo) > 0
}

// Behaviour is the instruction given to the language model for each tier.
type Behaviour struct {
	Defensive string
	Pressured string
	Confess   string
}

type NPC struct {
	ID      string
	Name    string
	Persona string
	Aliases []string
	// Knows lists the facts the NPC may reference at any time.
	Knows []string
	// Forbidden lists phrases the NPC must never say because they lie outside its knowledge.
	Forbidden []string
	// Secrets are facts the NPC may only reveal at the confess tier.
	Secrets []string
	// ConfessionMarkers detect confession content in generated text. A marker matches when all its phrases occur.
	ConfessionMarkers [][]string
	// ConfessThreshold is the minimum evidence count before confession content may appear.
	ConfessThreshold int
	Behaviour        Behaviour
	// Fallback is the canned in-character reply used when the generation backend is unavailable.
	Fallback string
}

// HasConfessionContent reports whether the NPC has anything to hold back until it confesses.
func (n NPC) HasConfessionContent() bool {
	return len(n.ConfessionMarkers) > 0
}

type Truth struct {
	title                string
	intro                string
	startLocation        string
	crime                Crime
	locations            map[string]Location
	locationOrder        []string
	evidence             map[string]EvidenceItem
	npcs                 map[string]NPC
	npcOrder             []string
	backgroundCharacters []string
	locationKeywords     []string
}

func (t *Truth) Title() string { return t.title }

// Intro is the narrator's opening line of a new session.
func (t *Truth) Intro() string { return t.intro }

func (t *Truth) StartLocation() Location {
	return t.locations[t.startLocation].clone()
}

func (t *Truth) Crime() Crime { return t.crime }

// BackgroundCharacters are characters that may be mentioned without being interrogable NPCs.
func (t *Truth) BackgroundCharacters() []string { return slices.Clone(t.backgroundCharacters) }

// LocationKeywords are words suggesting a place, used to detect invented locations.
func (t *Truth) LocationKeywords() []string { return slices.Clone(t.locationKeywords) }

func (t *Truth) Location(id string) (Location, error) {
	loc, ok := t.locations[id]
	if !ok {
		return Location{}, errors.Wrap(ErrNotFound, "location "+id)
	}
	return loc.clone(), nil
}

// Locations returns all locations in definition order.
func (t *Truth) Locations() []Location {
	locs := make([]Location, 0, len(t.locationOrder))
	for _, id := range t.locationOrder {
		locs = append(locs, t.locations[id].clone())
	}
	return locs
}

// Evidence returns the evidence item only if it can be found at the location.
func (t *Truth) Evidence(locationID, evidenceID string) (EvidenceItem, error) {
	item, ok := t.evidence[evidenceID]
	if !ok || item.LocationID != locationID {
		return EvidenceItem{}, errors.Wrap(ErrNotFound, "evidence "+evidenceID+" at "+locationID)
	}
	return item.clone(), nil
}

func (t *Truth) EvidenceByID(evidenceID string) (EvidenceItem, error) {
	item, ok := t.evidence[evidenceID]
	if !ok {
		return EvidenceItem{}, errors.Wrap(ErrNotFound, "evidence "+evidenceID)
	}
	return item.clone(), nil
}

func (t *Truth) NPC(id string) (NPC, error) {
	npc, ok := t.npcs[id]
	if !ok {
		return NPC{}, errors.Wrap(ErrNotFound, "npc "+id)
	}
	return npc.clone(), nil
}

// NPCs returns all NPCs in definition order.
func (t *Truth) NPCs() []NPC {
	npcs := make([]NPC, 0, len(t.npcOrder))
	for _, id := range t.npcOrder {
		npcs = append(npcs, t.npcs[id].clone())
	}
	return npcs
}

// NPCByAlias finds the NPC whose id, name or alias occurs in text, ignoring case and punctuation.
//
// When several match, the longest match wins so that "professor dumbledore" beats "professor". Ties go to the NPC
// defined first.
func (t *Truth) NPCByAlias(text string) (NPC, error) {
	id, ok := bestMatch(text, t.npcOrder, func(id string) []string {
		npc := t.npcs[id]
		return append([]string{npc.ID, npc.Name}, npc.Aliases...)
	})
	if !ok {
		return NPC{}, errors.Wrap(ErrNotFound, "npc matching "+text)
	}
	return t.npcs[id].clone(), nil
}

// FindLocation finds the location whose id, name or alias occurs in text.
func (t *Truth) FindLocation(text string) (Location, error) {
	id, ok := bestMatch(text, t.locationOrder, func(id string) []string {
		loc := t.locations[id]
		return append([]string{loc.ID, loc.Name}, loc.Aliases...)
	})
	if !ok {
		return Location{}, errors.Wrap(ErrNotFound, "location matching "+text)
	}
	return t.locations[id].clone(), nil
}

// FindEvidence finds the evidence at the location whose id or alias occurs in text.
func (t *Truth) FindEvidence(locationID, text string) (EvidenceItem, error) {
	loc, ok := t.locations[locationID]
	if !ok {
		return EvidenceItem{}, errors.Wrap(ErrNotFound, "location "+locationID)
	}
	id, ok := bestMatch(text, loc.EvidenceIDs, func(id string) []string {
		return append([]string{id}, t.evidence[id].Aliases...)
	})
	if !ok {
		return EvidenceItem{}, errors.Wrap(ErrNotFound, "evidence matching "+text+" at "+locationID)
	}
	return t.evidence[id].clone(), nil
}

// bestMatch returns the candidate with the longest name contained in text.
func bestMatch(text string, ids []string, names func(id string) []string) (string, bool) {
	haystack := " " + textnorm.Normalize(text) + " "
	var (
		best    string
		bestLen int
	)
	for _, id := range ids {
		for _, name := range names(id) {
			needle := textnorm.Identifier(name)
			if needle == "" || len(needle) <= bestLen {
				continue
			}
			if strings.Contains(haystack, " "+needle+" ") {
				best, bestLen = id, len(needle)
			}
		}
	}
	return best, bestLen > 0
}

func (l Location) clone() Location {
	l.Aliases = slices.Clone(l.Aliases)
	l.EvidenceIDs = slices.Clone(l.EvidenceIDs)
	return l
}

func (e EvidenceItem) clone() EvidenceItem {
	e.PointsTo = slices.Clone(e.PointsTo)
	e.Aliases = slices.Clone(e.Aliases)
	return e
}

func (n NPC) clone() NPC {
	n.Aliases = slices.Clone(n.Aliases)
	n.Knows = slices.Clone(n.Knows)
	n.Forbidden = slices.Clone(n.Forbidden)
	n.Secrets = slices.Clone(n.Secrets)
	markers := make([][]string, len(n.ConfessionMarkers))
	for i, m := range n.ConfessionMarkers {
		markers[i] = slices.Clone(m)
	}
	n.ConfessionMarkers = markers
	return n
}
