package dialogue_test

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/dialogue"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/evaluation"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
	"github.com/myrjola/compassmystery/internal/session"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	truth        *story.Truth
	sessions     *session.Manager
	cache        *responsecache.Cache
	aggregator   *evaluation.Aggregator
	orchestrator *dialogue.Orchestrator
	calls        *atomic.Int32
}

func newFixture(t *testing.T, complete func(ctx context.Context, call int32, prompt string) (string, error)) fixture {
	t.Helper()
	logger := testhelpers.NewLogger(io.Discard)
	truth, err := story.Default()
	require.NoError(t, err)

	f := fixture{
		truth:      truth,
		sessions:   session.NewManager(truth, time.Hour, logger),
		cache:      responsecache.New(logger),
		aggregator: evaluation.NewAggregator(logger),
		calls:      &atomic.Int32{},
	}
	backend := ai.BackendFunc(func(ctx context.Context, prompt string) (string, error) {
		return complete(ctx, f.calls.Add(1), prompt)
	})
	f.orchestrator = dialogue.NewOrchestrator(truth, f.sessions, f.cache, backend, f.aggregator, logger)
	return f
}

// newSession starts a session and discovers the evidence items in order.
func (f fixture) newSession(t *testing.T, evidenceIDs ...string) models.Session {
	t.Helper()
	ctx := context.Background()
	s, err := f.sessions.Create(ctx)
	require.NoError(t, err)
	for _, id := range evidenceIDs {
		item, err := f.truth.EvidenceByID(id)
		require.NoError(t, err)
		_, err = f.sessions.Move(ctx, s.ID, item.LocationID)
		require.NoError(t, err)
		_, err = f.sessions.Inspect(ctx, s.ID, id)
		require.NoError(t, err)
	}
	s, err = f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	return s
}

func jsonReply(text string) string {
	return `{"npc_reply": "` + text + `", "tone": "calm"}`
}

func TestRespond_cachedRepliesAreIdentical(t *testing.T) {
	f := newFixture(t, func(_ context.Context, call int32, _ string) (string, error) {
		if call == 1 {
			return jsonReply("I was studying."), nil
		}
		return jsonReply("Something different."), nil
	})
	ctx := context.Background()
	s := f.newSession(t)

	first, err := f.orchestrator.Respond(ctx, s, "evelyn", "Where were you last night?")
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, "I was studying.", first.Response)
	require.Equal(t, "calm", first.Tone)

	for _, q := range []string{"where were you last night", "WHERE were you, last night?!"} {
		again, err := f.orchestrator.Respond(ctx, s, "Evelyn", q)
		require.NoError(t, err)
		require.True(t, again.Cached)
		require.Equal(t, first.Response, again.Response)
	}
	require.Equal(t, int32(1), f.calls.Load())

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	// Intro plus three question and answer pairs.
	require.Len(t, got.History, 7)
	require.Equal(t, models.NPCSpeaker("evelyn"), got.History[2].Speaker)
	require.Equal(t, "I was studying.", got.History[2].Text)
}

func TestRespond_cacheIsSharedAcrossSessions(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ int32, _ string) (string, error) {
		return jsonReply("My key went missing yesterday."), nil
	})
	ctx := context.Background()
	alice := f.newSession(t)
	bob := f.newSession(t)

	first, err := f.orchestrator.Respond(ctx, alice, "evelyn", "Did you lose something?")
	require.NoError(t, err)
	hitsBefore := f.cache.Stats().Hits

	second, err := f.orchestrator.Respond(ctx, bob, "evelyn", "did you lose something")
	require.NoError(t, err)

	require.Equal(t, first.Response, second.Response)
	require.Equal(t, first.Tier, second.Tier)
	require.Equal(t, hitsBefore+1, f.cache.Stats().Hits)
	require.True(t, second.Cached)
	require.Equal(t, int32(1), f.calls.Load())
}

func TestRespond_tierFollowsEvidence(t *testing.T) {
	confession := "Fine! I took it. The compass is hidden behind the fountain in the Courtyard."
	f := newFixture(t, func(_ context.Context, _ int32, _ string) (string, error) {
		return jsonReply(confession), nil
	})
	ctx := context.Background()

	// The shimmer implicates nobody and doesn't count.
	pressured := f.newSession(t, "shimmer", "torn_page", "dropped_key")
	res, err := f.orchestrator.Respond(ctx, pressured, "draco", "Where is the compass?")
	require.NoError(t, err)
	require.Equal(t, 2, res.EvidenceCount)
	require.Equal(t, models.TierPressured, res.Tier)
	require.True(t, res.Violations.Has(models.ViolationPrematureRevelation))

	confess := f.newSession(t, "torn_page", "dropped_key", "wet_footprints")
	res, err = f.orchestrator.Respond(ctx, confess, "draco", "Where is the compass?")
	require.NoError(t, err)
	require.Equal(t, 3, res.EvidenceCount)
	require.Equal(t, models.TierConfess, res.Tier)
	require.False(t, res.Violations.Has(models.ViolationPrematureRevelation))
	require.False(t, res.Cached, "a different tier is a different cache key")

	report := f.aggregator.Report()
	require.Equal(t, 2, report.Counters.TotalInteractions)
	require.Equal(t, 1, report.Counters.PrematureRevelations)
	require.Equal(t, 2, report.Counters.ConfessionEligible)
}

func TestRespond_promptCarriesTierAndEvidence(t *testing.T) {
	var prompt atomic.Value
	f := newFixture(t, func(_ context.Context, _ int32, p string) (string, error) {
		prompt.Store(p)
		return jsonReply("Hmph."), nil
	})
	s := f.newSession(t, "torn_page")

	_, err := f.orchestrator.Respond(context.Background(), s, "malfoy", "What were you reading?")
	require.NoError(t, err)
	p, ok := prompt.Load().(string)
	require.True(t, ok)
	require.Contains(t, p, "YOUR CURRENT STATE: DEFENSIVE")
	require.Contains(t, p, "Page torn from a book about the Celestial Compass")
	require.Contains(t, p, `"What were you reading?"`)
}

func TestRespond_unknownNPC(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ int32, _ string) (string, error) {
		return jsonReply("Hello."), nil
	})
	ctx := context.Background()
	s := f.newSession(t)

	_, err := f.orchestrator.Respond(ctx, s, "hagrid", "Hello")
	require.ErrorIs(t, err, dialogue.ErrUnknownNPC)
	require.Equal(t, int32(0), f.calls.Load())

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	require.Equal(t, 0, f.aggregator.Report().Counters.TotalInteractions)
}

func TestRespond_fallbackIsCached(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ int32, _ string) (string, error) {
		return "", errors.Wrap(ai.ErrRateLimited, "complete with retries")
	})
	ctx := context.Background()
	s := f.newSession(t)
	draco, err := f.truth.NPC("draco")
	require.NoError(t, err)

	res, err := f.orchestrator.Respond(ctx, s, "draco", "Where were you?")
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.Equal(t, draco.Fallback, res.Response)

	res, err = f.orchestrator.Respond(ctx, s, "draco", "Where were you?")
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.True(t, res.Fallback)
	require.Equal(t, int32(1), f.calls.Load(), "the fallback is cached so the backend isn't hit again")
}

func TestRespond_cancellationLeavesStateUntouched(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, _ int32, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	s := f.newSession(t)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()
	_, err := f.orchestrator.Respond(ctx, s, "draco", "Where were you?")
	require.ErrorIs(t, err, context.Canceled)

	got, err := f.sessions.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	require.Equal(t, 0, f.aggregator.Report().Counters.TotalInteractions)
	require.Eventually(t, func() bool {
		_, ok := f.cache.Peek(responsecache.Key{NPCID: "draco", Question: "where were you", Tier: models.TierDefensive})
		return !ok
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, f.cache.Stats().Entries)
}

func TestRespond_concurrentMissesShareOneGeneration(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(_ context.Context, _ int32, _ string) (string, error) {
		<-release
		return jsonReply("I saw nothing."), nil
	})
	ctx := context.Background()

	const players = 10
	sessions := make([]models.Session, players)
	for i := range sessions {
		sessions[i] = f.newSession(t)
	}

	var wg sync.WaitGroup
	responses := make([]string, players)
	for i := range players {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orchestrator.Respond(ctx, sessions[i], "evelyn", "What did you see?")
			assert.NoError(t, err)
			responses[i] = res.Response
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), f.calls.Load())
	for _, r := range responses {
		require.Equal(t, "I saw nothing.", r)
	}
	require.Equal(t, players, f.aggregator.Report().Counters.TotalInteractions)
}

func TestRespond_followerSurvivesCanceledLeader(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, call int32, _ string) (string, error) {
		if call == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return jsonReply("The portraits see everything."), nil
	})
	leader := f.newSession(t)
	follower := f.newSession(t)
	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := f.orchestrator.Respond(leaderCtx, leader, "dumbledore", "Who was here?")
		leaderErr <- err
	}()
	<-started

	followerDone := make(chan models.DialogueResult, 1)
	go func() {
		res, err := f.orchestrator.Respond(context.Background(), follower, "dumbledore", "Who was here?")
		assert.NoError(t, err)
		followerDone <- res
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-leaderErr, context.Canceled)
	res := <-followerDone
	require.Equal(t, "The portraits see everything.", res.Response)
	require.Equal(t, int32(2), f.calls.Load())
}
