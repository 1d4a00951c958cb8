// Package dialogue produces NPC replies that stay within what each character knows and only reveal secrets once
// the player has found enough evidence.
package dialogue

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/evaluation"
	"github.com/myrjola/compassmystery/internal/logging"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/myrjola/compassmystery/internal/validation"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownNPC = errors.NewSentinel("unknown npc")

const (
	fallbackTone = "confused"
	// maxFollows bounds how often a waiting request retries after the request generating its reply was canceled.
	maxFollows = 3
)

// Sessions is the part of the session manager the orchestrator needs.
type Sessions interface {
	EvidenceCount(s models.Session) int
	RecordTurn(ctx context.Context, id string, turns ...models.Turn) error
}

type Orchestrator struct {
	truth      *story.Truth
	sessions   Sessions
	cache      *responsecache.Cache
	backend    ai.Backend
	aggregator *evaluation.Aggregator
	rater      evaluation.Rater
	metrics    *metrics.Metrics
	logger     *slog.Logger
	group      singleflight.Group
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithRater(r evaluation.Rater) Option {
	return func(o *Orchestrator) {
		o.rater = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(
	truth *story.Truth,
	sessions Sessions,
	cache *responsecache.Cache,
	backend ai.Backend,
	aggregator *evaluation.Aggregator,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{ //nolint:exhaustruct // zero singleflight group
		truth:      truth,
		sessions:   sessions,
		cache:      cache,
		backend:    backend,
		aggregator: aggregator,
		rater:      evaluation.HeuristicRater{},
		logger:     logger.With("source", "DialogueOrchestrator"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Respond answers question as the NPC referred to by npcRef, an id, name or alias.
//
// Replies are cached per NPC, normalized question and tier. On a miss the backend is called once per key even when
// several sessions ask at the same time. When the backend keeps failing the NPC's fallback line is served and
// cached instead. The exchange is appended to the session history only after the reply is settled, and a canceled
// ctx leaves the session untouched.
func (o *Orchestrator) Respond(
	ctx context.Context,
	sess models.Session,
	npcRef string,
	question string,
) (models.DialogueResult, error) {
	npc, err := o.truth.NPCByAlias(npcRef)
	if err != nil {
		return models.DialogueResult{}, errors.Wrap(
			errors.Join(ErrUnknownNPC, err), "resolve npc", slog.String("npc", npcRef))
	}
	ctx = logging.WithAttrs(ctx, slog.String("npc_id", npc.ID))

	count := o.sessions.EvidenceCount(sess)
	tier := NewMachine(npc).Tier(count)
	key := responsecache.Key{NPCID: npc.ID, Question: cacheQuestion(question), Tier: tier}
	o.metrics.RecordDialogue(npc.ID, string(tier))

	entry, hit := o.cache.Get(ctx, key)
	if !hit {
		prompt := BuildPrompt(o.promptInput(sess, npc, tier, question))
		if entry, err = o.generate(ctx, key, prompt, npc); err != nil {
			return models.DialogueResult{}, err
		}
	}
	if err = ctx.Err(); err != nil {
		return models.DialogueResult{}, errors.Wrap(err, "respond")
	}

	violations := validation.Validate(o.truth, npc, entry.Response, count)
	for _, v := range violations {
		o.metrics.RecordViolation(string(v))
	}
	if len(violations) > 0 {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "reply flagged",
			slog.String("violations", violations.String()),
			slog.String("tier", string(tier)),
			slog.Int("evidence_count", count))
	}
	coherence, relevance := o.rater.Rate(question, entry.Response, violations)

	// The reply is settled. Finish the bookkeeping even if the player goes away now.
	ctx = context.WithoutCancel(ctx)
	o.aggregator.Record(ctx, evaluation.Interaction{
		NPCID:              npc.ID,
		Violations:         violations,
		Coherence:          coherence,
		Relevance:          relevance,
		ConfessionEligible: npc.HasConfessionContent(),
	})
	now := o.now()
	asked := strings.TrimSpace(question)
	if asked == "" {
		asked = "Hello."
	}
	if err = o.sessions.RecordTurn(ctx, sess.ID,
		models.Turn{Speaker: models.SpeakerPlayer, Text: asked, At: now},
		models.Turn{Speaker: models.NPCSpeaker(npc.ID), Text: entry.Response, At: now},
	); err != nil {
		return models.DialogueResult{}, errors.Wrap(err, "record dialogue turn")
	}

	return models.DialogueResult{
		NPCID:         npc.ID,
		NPCName:       npc.Name,
		Tier:          tier,
		Question:      key.Question,
		Response:      entry.Response,
		Tone:          entry.Tone,
		EvidenceCount: count,
		Violations:    violations,
		Cached:        hit,
		Fallback:      entry.Fallback,
	}, nil
}

// generate produces and caches the reply for key. Concurrent callers for the same key share one backend call.
func (o *Orchestrator) generate(
	ctx context.Context,
	key responsecache.Key,
	prompt string,
	npc story.NPC,
) (responsecache.Entry, error) {
	for follows := 0; ; follows++ {
		ch := o.group.DoChan(key.String(), func() (any, error) {
			// Another flight may have filled the cache between our lookup and now.
			if e, ok := o.cache.Peek(key); ok {
				return e, nil
			}
			return o.complete(ctx, key, prompt, npc)
		})
		select {
		case <-ctx.Done():
			return responsecache.Entry{}, errors.Wrap(ctx.Err(), "wait for generation")
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(responsecache.Entry), nil //nolint:forcetypeassert // complete returns an Entry
			}
			// The request that ran the flight was canceled but this one wasn't. Try again with our own context.
			if isContextErr(res.Err) && ctx.Err() == nil && follows < maxFollows {
				o.logger.LogAttrs(ctx, slog.LevelDebug, "shared generation canceled, retrying")
				continue
			}
			return responsecache.Entry{}, res.Err
		}
	}
}

// complete calls the backend and caches the outcome. It fails only when ctx ends first.
func (o *Orchestrator) complete(
	ctx context.Context,
	key responsecache.Key,
	prompt string,
	npc story.NPC,
) (responsecache.Entry, error) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, "generating reply", slog.String("tier", string(key.Tier)))
	completion, err := o.backend.Complete(ctx, prompt)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return responsecache.Entry{}, errors.Wrap(ctxErr, "generate reply")
	}

	var entry responsecache.Entry
	if err != nil {
		o.metrics.RecordFallback(npc.ID)
		o.logger.LogAttrs(ctx, slog.LevelWarn, "generation failed, using fallback reply",
			slog.String("kind", ai.ErrorKind(err)), errors.SlogError(err))
		entry = responsecache.Entry{Key: key, Response: npc.Fallback, Tone: fallbackTone, Fallback: true}
	} else {
		reply := ParseReply(completion)
		entry = responsecache.Entry{Key: key, Response: reply.Text, Tone: reply.Tone}
	}
	entry.CreatedAt = o.now()
	stored, _ := o.cache.Add(context.WithoutCancel(ctx), entry)
	return stored, nil
}

func (o *Orchestrator) promptInput(sess models.Session, npc story.NPC, tier models.Tier, question string) PromptInput {
	evidence := make([]string, 0, len(sess.Evidence))
	for _, id := range sess.Evidence {
		if item, err := o.truth.EvidenceByID(id); err == nil {
			evidence = append(evidence, item.Description)
		}
	}
	var locations []string
	for _, loc := range o.truth.Locations() {
		locations = append(locations, loc.Name)
	}
	var characters []string
	for _, n := range o.truth.NPCs() {
		characters = append(characters, n.Name)
	}
	characters = append(characters, o.truth.BackgroundCharacters()...)
	return PromptInput{
		NPC:        npc,
		Tier:       tier,
		Question:   question,
		Evidence:   evidence,
		Crime:      o.truth.Crime(),
		Locations:  locations,
		Characters: characters,
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
