// Package validation inspects generated NPC dialogue for breaches of the story.
//
// Flags are advisory. They are recorded and reported but never stop a reply from reaching the player.
package validation

import (
	"regexp"
	"slices"

	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/textnorm"
)

// honorificName matches a title followed by a capitalised name, e.g. "Professor Snape".
var honorificName = regexp.MustCompile(`\b(Professor|Madam|Mrs?\.?|Headmaster)\s+([A-Z][a-z]+)`)

// Validate runs every check against text, a reply of npc given the session's evidence count.
func Validate(truth *story.Truth, npc story.NPC, text string, evidenceCount int) models.Violations {
	var flags []models.Violation
	if KnowledgeViolation(npc, text) {
		flags = append(flags, models.ViolationKnowledge)
	}
	if PrematureRevelation(npc, text, evidenceCount) {
		flags = append(flags, models.ViolationPrematureRevelation)
	}
	if HallucinatedLocation(truth, text) {
		flags = append(flags, models.ViolationHallucinatedLocation)
	}
	if HallucinatedNPC(truth, text) {
		flags = append(flags, models.ViolationHallucinatedNPC)
	}
	return models.NewViolations(flags...)
}

// KnowledgeViolation reports whether text contains one of the NPC's forbidden phrases.
func KnowledgeViolation(npc story.NPC, text string) bool {
	return slices.ContainsFunc(npc.Forbidden, func(phrase string) bool {
		return textnorm.ContainsPhrase(text, phrase)
	})
}

// ConfessionContent reports whether text matches any of the NPC's confession markers. A marker matches when all of
// its phrases occur.
func ConfessionContent(npc story.NPC, text string) bool {
	return slices.ContainsFunc(npc.ConfessionMarkers, func(marker []string) bool {
		for _, phrase := range marker {
			if !textnorm.ContainsPhrase(text, phrase) {
				return false
			}
		}
		return len(marker) > 0
	})
}

// PrematureRevelation reports confession content before the NPC's confession threshold is reached.
func PrematureRevelation(npc story.NPC, text string, evidenceCount int) bool {
	return evidenceCount < npc.ConfessThreshold && ConfessionContent(npc, text)
}

// HallucinatedLocation reports a place mentioned in text that isn't one of the story's locations. A mention is
// detected by location keywords such as "tower" and forgiven when a known location is named.
func HallucinatedLocation(truth *story.Truth, text string) bool {
	mentionsPlace := slices.ContainsFunc(truth.LocationKeywords(), func(keyword string) bool {
		return containsKeyword(text, keyword)
	})
	if !mentionsPlace {
		return false
	}
	_, err := truth.FindLocation(text)
	return err != nil
}

// HallucinatedNPC reports a titled character such as "Professor Snape" that is neither an NPC nor a background
// character of the story.
func HallucinatedNPC(truth *story.Truth, text string) bool {
	known := truth.BackgroundCharacters()
	for _, match := range honorificName.FindAllStringSubmatch(text, -1) {
		name := match[2]
		if _, err := truth.NPCByAlias(name); err == nil {
			continue
		}
		if slices.ContainsFunc(known, func(character string) bool {
			return textnorm.ContainsPhrase(character, name)
		}) {
			continue
		}
		return true
	}
	return false
}

// containsKeyword matches keyword as whole words, also in its plural form, so that "towers" counts as "tower" but
// "roommate" doesn't count as "room".
func containsKeyword(text, keyword string) bool {
	k := textnorm.Normalize(keyword)
	if k == "" {
		return false
	}
	return textnorm.ContainsPhrase(text, k) || textnorm.ContainsPhrase(text, k+"s")
}
