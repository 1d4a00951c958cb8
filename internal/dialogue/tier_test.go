package dialogue_test

import (
	"testing"

	"github.com/myrjola/compassmystery/internal/dialogue"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/stretchr/testify/require"
)

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		count     int
		threshold int
		want      models.Tier
	}{
		{count: 0, threshold: 3, want: models.TierDefensive},
		{count: 1, threshold: 3, want: models.TierDefensive},
		{count: 2, threshold: 3, want: models.TierPressured},
		{count: 3, threshold: 3, want: models.TierConfess},
		{count: 5, threshold: 3, want: models.TierConfess},
		{count: 0, threshold: 1, want: models.TierPressured},
		{count: 1, threshold: 1, want: models.TierConfess},
		{count: 0, threshold: 2, want: models.TierDefensive},
		{count: 1, threshold: 2, want: models.TierPressured},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, dialogue.ClassifyTier(tt.count, tt.threshold), "count %d threshold %d",
			tt.count, tt.threshold)
	}
}

func TestMachine(t *testing.T) {
	truth, err := story.Default()
	require.NoError(t, err)
	draco, err := truth.NPC("draco")
	require.NoError(t, err)

	m := dialogue.NewMachine(draco)
	require.Equal(t, models.TierDefensive, m.Current())
	require.Equal(t, models.TierPressured, m.Tier(2))
	require.Equal(t, models.TierConfess, m.Tier(3))

	tier, changed := m.Advance(1)
	require.False(t, changed)
	require.Equal(t, models.TierDefensive, tier)

	tier, changed = m.Advance(2)
	require.True(t, changed)
	require.Equal(t, models.TierPressured, tier)

	tier, changed = m.Advance(3)
	require.True(t, changed)
	require.Equal(t, models.TierConfess, tier)

	// Tiers never move backwards.
	tier, changed = m.Advance(0)
	require.False(t, changed)
	require.Equal(t, models.TierConfess, tier)

	require.Equal(t, draco.Behaviour.Confess, m.Behaviour(models.TierConfess))
	require.Equal(t, draco.Behaviour.Defensive, m.Behaviour(models.TierDefensive))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, dialogue.Normalize("ask draco where were you"), dialogue.Normalize("Ask Draco?  Where were you!!"))

	for _, s := range []string{"Ask Draco?  Where were you!!", "  WHERE   is the Compass?? ", "Ünïcödé, ÖK!", ""} {
		once := dialogue.Normalize(s)
		require.Equal(t, once, dialogue.Normalize(once), "normalize is idempotent for %q", s)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		want       dialogue.Reply
	}{
		{
			name:       "json",
			completion: `{"npc_reply": "I was in my dormitory.", "tone": "defensive"}`,
			want:       dialogue.Reply{Text: "I was in my dormitory.", Tone: "defensive"},
		},
		{
			name:       "fenced json without tone",
			completion: "```json\n{\"npc_reply\": \"Hmph.\"}\n```",
			want:       dialogue.Reply{Text: "Hmph.", Tone: "neutral"},
		},
		{
			name:       "plain text",
			completion: "  I have nothing to say to you.  ",
			want:       dialogue.Reply{Text: "I have nothing to say to you.", Tone: "neutral"},
		},
		{
			name:       "json without reply",
			completion: `{"tone": "angry"}`,
			want:       dialogue.Reply{Text: `{"tone": "angry"}`, Tone: "neutral"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, dialogue.ParseReply(tt.completion))
		})
	}
}
