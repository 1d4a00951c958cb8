package game_test

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// scriptedBackend answers in character based on the tier stated in the prompt.
func scriptedBackend(calls *atomic.Int32) ai.Backend {
	return ai.BackendFunc(func(_ context.Context, prompt string) (string, error) {
		calls.Add(1)
		switch {
		case strings.Contains(prompt, "YOUR CURRENT STATE: CONFESS"):
			return `{"npc_reply": "Alright! I took it. It's hidden behind the fountain in the Courtyard.", "tone": "panicked"}`, nil
		case strings.Contains(prompt, "YOUR CURRENT STATE: PRESSURED"):
			return `{"npc_reply": "I was in the library, so what?", "tone": "nervous"}`, nil
		default:
			return `{"npc_reply": "I have nothing to say to you.", "tone": "arrogant"}`, nil
		}
	})
}

func newEngine(t *testing.T) (*game.Engine, *atomic.Int32) {
	t.Helper()
	truth, err := story.Default()
	require.NoError(t, err)
	calls := &atomic.Int32{}
	return game.NewEngine(truth, scriptedBackend(calls), testhelpers.NewLogger(io.Discard)), calls
}

func act(t *testing.T, e *game.Engine, sessionID string, text string) game.ActionResult {
	t.Helper()
	res, err := e.ApplyAction(context.Background(), sessionID, text)
	require.NoError(t, err, text)
	return res
}

func TestEngine_StartSession(t *testing.T) {
	e, _ := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, state.SessionID)
	require.Equal(t, "great_hall", state.Location.ID)
	require.Empty(t, state.Evidence)
	require.Len(t, state.History, 1)
	require.Equal(t, "Narrator", state.History[0].Speaker)
	require.Contains(t, state.History[0].Text, "Welcome, young wizard")
	require.Len(t, state.NPCs, 3)
}

func TestEngine_inspectNeutralEvidence(t *testing.T) {
	e, _ := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)

	res := act(t, e, state.SessionID, "inspect shimmer")
	require.NotNil(t, res.EvidenceDiscovered)
	require.Equal(t, "shimmer", res.EvidenceDiscovered.ID)
	require.Contains(t, res.Narration, "New evidence")
	require.Equal(t, 1, res.State.CluesFound)
	require.Equal(t, 0, res.State.EvidenceCount, "the shimmer implicates nobody")
	require.Empty(t, res.TierChanges)

	res = act(t, e, state.SessionID, "examine shimmer")
	require.Nil(t, res.EvidenceDiscovered)
	require.Equal(t, "You've already examined this thoroughly.", res.Narration)
	require.Equal(t, 1, res.State.CluesFound)
	require.Equal(t, 0, res.State.EvidenceCount)
}

func TestEngine_inspectAdvancesTiers(t *testing.T) {
	e, _ := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)

	act(t, e, state.SessionID, "go to the library")
	res := act(t, e, state.SessionID, "inspect the torn page")
	require.Equal(t, []game.NPCView{
		{ID: "dumbledore", Name: "Professor Dumbledore", Tier: models.TierConfess},
		{ID: "evelyn", Name: "Evelyn", Tier: models.TierPressured},
	}, res.TierChanges)

	res = act(t, e, state.SessionID, "inspect the torn page")
	require.Empty(t, res.TierChanges, "re-inspecting changes nothing")

	res = act(t, e, state.SessionID, "inspect the master key")
	require.Equal(t, []game.NPCView{
		{ID: "draco", Name: "Draco Malfoy", Tier: models.TierPressured},
		{ID: "evelyn", Name: "Evelyn", Tier: models.TierConfess},
	}, res.TierChanges)
}

func TestEngine_walkthrough(t *testing.T) {
	e, _ := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)
	id := state.SessionID

	res := act(t, e, id, "talk to draco: where were you last night?")
	require.Equal(t, models.TierDefensive, res.Dialogue.Tier)
	require.Empty(t, res.Violations)

	res = act(t, e, id, "go to the library")
	require.Equal(t, "library", res.State.Location.ID)
	require.Contains(t, res.Narration, "You travel to The Library.")

	res = act(t, e, id, "go to library")
	require.Equal(t, "You are already in The Library.", res.Narration)

	act(t, e, id, "inspect torn page")
	res = act(t, e, id, "inspect the master key")
	require.Equal(t, 2, res.State.EvidenceCount)

	res = act(t, e, id, "ask draco where were you last night?")
	require.Equal(t, models.TierPressured, res.Dialogue.Tier)
	require.Equal(t, "I was in the library, so what?", res.Dialogue.Text)

	act(t, e, id, "go to courtyard")
	res = act(t, e, id, "inspect footprints")
	require.Equal(t, 3, res.State.EvidenceCount)

	res = act(t, e, id, "talk to Draco Malfoy: where is the compass?")
	require.Equal(t, models.TierConfess, res.Dialogue.Tier)
	require.NotContains(t, res.Violations, string(models.ViolationPrematureRevelation))

	res = act(t, e, id, "search the fountain")
	require.True(t, res.State.Solved)
	require.Contains(t, res.Narration, "CASE SOLVED!")

	for _, npc := range res.State.NPCs {
		if npc.ID == "draco" {
			require.Equal(t, models.TierConfess, npc.Tier)
		}
	}
}

func TestEngine_sharedCacheAcrossSessions(t *testing.T) {
	e, calls := newEngine(t)
	ctx := context.Background()
	first, err := e.StartSession(ctx)
	require.NoError(t, err)
	second, err := e.StartSession(ctx)
	require.NoError(t, err)

	a := act(t, e, first.SessionID, "talk to evelyn: Did you see anything?")
	hits := e.CacheStats().Hits
	b := act(t, e, second.SessionID, "ask Evelyn did you see anything")

	require.Equal(t, a.Dialogue.Text, b.Dialogue.Text)
	require.False(t, a.Dialogue.Cached)
	require.True(t, b.Dialogue.Cached)
	require.Equal(t, hits+1, e.CacheStats().Hits)
	require.Equal(t, int32(1), calls.Load())
}

func TestEngine_questionKeysTheCache(t *testing.T) {
	e, calls := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)

	a := act(t, e, state.SessionID, "ask the headmaster what was stolen")
	b := act(t, e, state.SessionID, "ask the headmaster who did it")
	require.Equal(t, "dumbledore", a.Dialogue.NPCID)
	require.False(t, b.Dialogue.Cached, "different questions must not share a cache entry")
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, 2, e.CacheStats().Entries)

	res := act(t, e, state.SessionID, "ask draco where were you at 10:30")
	require.Equal(t, "draco", res.Dialogue.NPCID)
	history := res.State.History
	require.Equal(t, "where were you at 10:30", history[len(history)-2].Text)
}

func TestEngine_rejectedActions(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	state, err := e.StartSession(ctx)
	require.NoError(t, err)

	tests := []struct {
		text       string
		wantErr    error
		wantReason string
	}{
		{text: "go to the astronomy tower", wantErr: game.ErrUnknownLocation, wantReason: "Can't find"},
		{text: "inspect torn page", wantErr: game.ErrUnknownEvidence, wantReason: "find nothing unusual"},
		{text: "talk to hagrid: hello", wantErr: game.ErrUnknownNPC, wantReason: "I don't see that person here"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := e.ApplyAction(ctx, state.SessionID, tt.text)
			require.ErrorIs(t, err, tt.wantErr)
			var rejection *game.RejectionError
			require.True(t, errors.As(err, &rejection))
			require.Contains(t, rejection.Reason, tt.wantReason)
		})
	}

	after, err := e.State(ctx, state.SessionID)
	require.NoError(t, err)
	require.Equal(t, state.Location, after.Location)
	require.Len(t, after.History, 1, "rejected actions leave the session unchanged")

	_, err = e.ApplyAction(ctx, "missing", "go to library")
	require.ErrorIs(t, err, game.ErrUnknownSession)
	_, err = e.State(ctx, "missing")
	require.ErrorIs(t, err, game.ErrUnknownSession)
}

func TestEngine_unknownCommand(t *testing.T) {
	e, _ := newEngine(t)
	state, err := e.StartSession(context.Background())
	require.NoError(t, err)

	res := act(t, e, state.SessionID, "dance a jig")
	require.Equal(t, "unknown", res.Kind)
	require.Contains(t, res.Narration, "I don't understand that command")
	require.Len(t, res.State.History, 3)
}

func TestEngine_evaluation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	replay := func() game.Report {
		state, err := e.StartSession(ctx)
		require.NoError(t, err)
		act(t, e, state.SessionID, "talk to draco: where were you?")
		act(t, e, state.SessionID, "talk to dumbledore: what happened?")
		act(t, e, state.SessionID, "go to library")
		act(t, e, state.SessionID, "talk to evelyn: did you lose your key?")
		return e.EvaluationReport()
	}

	first := replay()
	require.Equal(t, 3, first.Counters.TotalInteractions)

	require.NoError(t, e.EvaluationReset(ctx))
	require.Equal(t, 0, e.EvaluationReport().Counters.TotalInteractions)
	require.Positive(t, e.CacheStats().Entries, "evaluation reset keeps the cache")

	second := replay()
	require.Equal(t, first.Report, second.Report)

	require.NoError(t, e.ResetCache(ctx))
	require.Equal(t, 0, e.CacheStats().Entries)
}
