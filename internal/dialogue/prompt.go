package dialogue

import (
	"fmt"
	"strings"

	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
)

// PromptInput is everything a prompt depends on.
type PromptInput struct {
	NPC      story.NPC
	Tier     models.Tier
	Question string
	// Evidence holds the descriptions of the discovered evidence in discovery order.
	Evidence  []string
	Crime     story.Crime
	Locations []string
	// Characters are the names that may be mentioned.
	Characters []string
}

// BuildPrompt renders the knowledge constrained prompt for an NPC reply. It has no side effects and the same input
// always renders the same prompt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	m := NewMachine(in.NPC)

	fmt.Fprintf(&b, "You are %s, a character in a mystery game. %s\n", in.NPC.Name, in.NPC.Persona)

	b.WriteString("\nTHE CASE:\n")
	fmt.Fprintf(&b, "- %s.\n", in.Crime.What)
	if in.Crime.When != "" {
		fmt.Fprintf(&b, "- It happened %s.\n", lowerFirst(in.Crime.When))
	}

	b.WriteString("\nFACTS YOU KNOW AND MAY SHARE:\n")
	writeList(&b, in.NPC.Knows, "Nothing beyond common castle gossip.")

	b.WriteString("\nYOU MUST NEVER SAY OR IMPLY:\n")
	never := in.NPC.Forbidden
	if !MayConfess(in.Tier) {
		never = append(never[:len(never):len(never)], in.NPC.Secrets...)
	}
	writeList(&b, never, "Nothing is off limits, but do not invent facts.")

	if MayConfess(in.Tier) && len(in.NPC.Secrets) > 0 {
		b.WriteString("\nSECRETS YOU NOW REVEAL:\n")
		writeList(&b, in.NPC.Secrets, "")
	}

	fmt.Fprintf(&b, "\nYOUR CURRENT STATE: %s\n", strings.ToUpper(string(in.Tier)))
	fmt.Fprintf(&b, "%s\n", m.Behaviour(in.Tier))

	b.WriteString("\nEVIDENCE THE INVESTIGATOR HAS FOUND:\n")
	writeList(&b, in.Evidence, "None yet.")

	b.WriteString("\nRULES:\n")
	fmt.Fprintf(&b, "- Only mention these places: %s.\n", strings.Join(in.Locations, ", "))
	fmt.Fprintf(&b, "- Only mention these people: %s.\n", strings.Join(in.Characters, ", "))
	b.WriteString("- Never invent rooms, passages or characters.\n")
	b.WriteString("- Reply in at most three sentences and stay in character.\n")
	b.WriteString(`- Answer with JSON only: {"npc_reply": "<what you say>", "tone": "<one word>"}` + "\n")

	question := strings.TrimSpace(in.Question)
	if question == "" {
		question = "Hello."
	}
	fmt.Fprintf(&b, "\nTHE INVESTIGATOR SAYS:\n%q\n", question)
	return b.String()
}

func writeList(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		if empty != "" {
			fmt.Fprintf(b, "- %s\n", empty)
		}
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
