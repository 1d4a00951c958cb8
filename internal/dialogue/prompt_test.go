package dialogue_test

import (
	"testing"

	"github.com/myrjola/compassmystery/internal/dialogue"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/stretchr/testify/require"
)

func promptInput(t *testing.T, tier models.Tier) dialogue.PromptInput {
	t.Helper()
	truth, err := story.Default()
	require.NoError(t, err)
	draco, err := truth.NPC("draco")
	require.NoError(t, err)
	return dialogue.PromptInput{
		NPC:        draco,
		Tier:       tier,
		Question:   "Where is the compass?",
		Evidence:   []string{"Page torn from a book about the Celestial Compass"},
		Crime:      truth.Crime(),
		Locations:  []string{"The Great Hall", "The Library", "The Courtyard", "Dumbledore's Office"},
		Characters: []string{"Professor Dumbledore", "Draco Malfoy", "Evelyn", "Madam Pince", "Fawkes"},
	}
}

func TestBuildPrompt(t *testing.T) {
	in := promptInput(t, models.TierDefensive)
	prompt := dialogue.BuildPrompt(in)

	require.Equal(t, prompt, dialogue.BuildPrompt(in), "prompt is deterministic")
	require.Contains(t, prompt, "You are Draco Malfoy")
	require.Contains(t, prompt, "YOUR CURRENT STATE: DEFENSIVE")
	require.Contains(t, prompt, in.NPC.Behaviour.Defensive)
	require.Contains(t, prompt, "- He was in the library last night")
	require.Contains(t, prompt, "- Page torn from a book about the Celestial Compass")
	require.Contains(t, prompt, `"Where is the compass?"`)
	require.Contains(t, prompt, "The Courtyard")
	require.NotContains(t, prompt, "SECRETS YOU NOW REVEAL")
	require.NotContains(t, prompt, in.Crime.How, "how the crime was done is not part of the case summary")
}

func TestBuildPrompt_secretsGatedByTier(t *testing.T) {
	secret := "The compass is hidden behind the fountain stones in the Courtyard"

	defensive := dialogue.BuildPrompt(promptInput(t, models.TierDefensive))
	pressured := dialogue.BuildPrompt(promptInput(t, models.TierPressured))
	confess := dialogue.BuildPrompt(promptInput(t, models.TierConfess))

	for _, prompt := range []string{defensive, pressured} {
		require.Contains(t, prompt, "YOU MUST NEVER SAY OR IMPLY:\n")
		require.NotContains(t, prompt, "SECRETS YOU NOW REVEAL")
		require.Contains(t, prompt, "- "+secret)
	}
	require.Contains(t, pressured, "YOUR CURRENT STATE: PRESSURED")
	require.Contains(t, confess, "SECRETS YOU NOW REVEAL:\n")
	require.Contains(t, confess, "YOUR CURRENT STATE: CONFESS")
}

func TestBuildPrompt_doesNotMutateInput(t *testing.T) {
	in := promptInput(t, models.TierDefensive)
	in.NPC.Forbidden = make([]string, 1, 10)
	in.NPC.Forbidden[0] = "draco stole"
	_ = dialogue.BuildPrompt(in)
	require.Equal(t, []string{"draco stole"}, in.NPC.Forbidden)
	require.Len(t, in.NPC.Forbidden[:cap(in.NPC.Forbidden)][1], 0)
}
