// Package game is the boundary between a host, such as the web server or the CLI, and the mystery engine.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/compassmystery/internal/ai"
	"github.com/myrjola/compassmystery/internal/dialogue"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/evaluation"
	"github.com/myrjola/compassmystery/internal/interpreter"
	"github.com/myrjola/compassmystery/internal/logging"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
	"github.com/myrjola/compassmystery/internal/session"
	"github.com/myrjola/compassmystery/internal/story"
)

// Caller errors. Actions failing with these leave the session unchanged.
var (
	ErrUnknownSession  = session.ErrUnknownSession
	ErrUnknownLocation = session.ErrUnknownLocation
	ErrUnknownEvidence = session.ErrUnknownEvidence
	ErrUnknownNPC      = dialogue.ErrUnknownNPC
)

// RejectionError explains to the player why an action was rejected.
type RejectionError struct {
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

const defaultSessionTTL = 12 * time.Hour

type Engine struct {
	truth        *story.Truth
	sessions     *session.Manager
	cache        *responsecache.Cache
	aggregator   *evaluation.Aggregator
	orchestrator *dialogue.Orchestrator
	interpreter  *interpreter.Interpreter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type options struct {
	sessionTTL   time.Duration
	sessionStore session.Store
	cacheStore   responsecache.Store
	sink         evaluation.Sink
	rater        evaluation.Rater
	metrics      *metrics.Metrics
}

type Option func(*options)

func WithSessionTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.sessionTTL = ttl
	}
}

func WithSessionStore(store session.Store) Option {
	return func(o *options) {
		o.sessionStore = store
	}
}

func WithCacheStore(store responsecache.Store) Option {
	return func(o *options) {
		o.cacheStore = store
	}
}

func WithEvaluationSink(sink evaluation.Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

func WithRater(r evaluation.Rater) Option {
	return func(o *options) {
		o.rater = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// NewEngine wires the engine components around the story and the generation backend.
func NewEngine(truth *story.Truth, backend ai.Backend, logger *slog.Logger, opts ...Option) *Engine {
	o := options{sessionTTL: defaultSessionTTL, rater: evaluation.HeuristicRater{}} //nolint:exhaustruct // optional
	for _, opt := range opts {
		opt(&o)
	}

	sessionOpts := []session.Option{session.WithMetrics(o.metrics)}
	if o.sessionStore != nil {
		sessionOpts = append(sessionOpts, session.WithStore(o.sessionStore))
	}
	cacheOpts := []responsecache.Option{responsecache.WithMetrics(o.metrics)}
	if o.cacheStore != nil {
		cacheOpts = append(cacheOpts, responsecache.WithStore(o.cacheStore))
	}
	var evalOpts []evaluation.Option
	if o.sink != nil {
		evalOpts = append(evalOpts, evaluation.WithSink(o.sink))
	}

	sessions := session.NewManager(truth, o.sessionTTL, logger, sessionOpts...)
	cache := responsecache.New(logger, cacheOpts...)
	aggregator := evaluation.NewAggregator(logger, evalOpts...)
	return &Engine{
		truth:      truth,
		sessions:   sessions,
		cache:      cache,
		aggregator: aggregator,
		orchestrator: dialogue.NewOrchestrator(truth, sessions, cache, backend, aggregator, logger,
			dialogue.WithRater(o.rater), dialogue.WithMetrics(o.metrics)),
		interpreter: interpreter.New(truth),
		metrics:     o.metrics,
		logger:      logger.With("source", "GameEngine"),
	}
}

// Warm loads the persisted response cache and evaluation log.
func (e *Engine) Warm(ctx context.Context) error {
	if err := e.cache.Warm(ctx); err != nil {
		return errors.Wrap(err, "warm response cache")
	}
	if err := e.aggregator.Warm(ctx); err != nil {
		return errors.Wrap(err, "restore evaluation log")
	}
	return nil
}

// PurgeExpiredSessions deletes the stored sessions that outlived the session TTL.
func (e *Engine) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := e.sessions.PurgeExpired(ctx)
	return n, errors.Wrap(err, "purge sessions")
}

func (e *Engine) Truth() *story.Truth {
	return e.truth
}

// StartSession creates a session and returns its initial state.
func (e *Engine) StartSession(ctx context.Context) (StateView, error) {
	s, err := e.sessions.Create(ctx)
	if err != nil {
		return StateView{}, errors.Wrap(err, "create session")
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, "session started", slog.String("session_id", s.ID))
	return e.view(s), nil
}

func (e *Engine) State(ctx context.Context, sessionID string) (StateView, error) {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return StateView{}, e.reject(err, "Session not found.")
	}
	return e.view(s), nil
}

// EndSession discards the session.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// ApplyAction interprets the free text and carries out the move, inspection or conversation it describes.
func (e *Engine) ApplyAction(ctx context.Context, sessionID string, text string) (ActionResult, error) {
	ctx = logging.WithAttrs(ctx, slog.String("session_id", sessionID))
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return ActionResult{}, e.reject(err, "Session not found.")
	}

	cmd := e.interpreter.Parse(text)
	e.metrics.RecordAction(string(cmd.Kind))
	e.logger.LogAttrs(ctx, slog.LevelDebug, "applying action",
		slog.String("kind", string(cmd.Kind)), slog.String("target", cmd.Target))

	var result ActionResult
	switch cmd.Kind {
	case interpreter.KindMove:
		result, err = e.move(ctx, s, cmd)
	case interpreter.KindInspect:
		result, err = e.inspect(ctx, s, cmd)
	case interpreter.KindTalk:
		result, err = e.talk(ctx, s, cmd)
	case interpreter.KindUnknown:
		result = ActionResult{Narration: e.helpText()}
	}
	if err != nil {
		return ActionResult{}, err
	}
	result.Kind = string(cmd.Kind)

	if cmd.Kind != interpreter.KindTalk {
		if err = e.sessions.RecordTurn(ctx, sessionID,
			models.Turn{Speaker: models.SpeakerPlayer, Text: strings.TrimSpace(text)},
			models.Turn{Speaker: models.SpeakerNarrator, Text: result.Narration},
		); err != nil {
			return ActionResult{}, errors.Wrap(err, "record action")
		}
	}

	if s, err = e.sessions.Get(ctx, sessionID); err != nil {
		return ActionResult{}, e.reject(err, "Session not found.")
	}
	result.State = e.view(s)
	return result, nil
}

func (e *Engine) move(ctx context.Context, s models.Session, cmd interpreter.Command) (ActionResult, error) {
	loc, err := e.truth.FindLocation(cmd.Target)
	if err != nil {
		return ActionResult{}, e.reject(errors.Join(ErrUnknownLocation, err),
			fmt.Sprintf("Can't find '%s'. Try: %s.", cmd.Target, strings.Join(e.locationNames(), ", ")))
	}
	if loc.ID == s.LocationID {
		return ActionResult{Narration: fmt.Sprintf("You are already in %s.", loc.Name)}, nil
	}
	if loc, err = e.sessions.Move(ctx, s.ID, loc.ID); err != nil {
		return ActionResult{}, e.reject(err, "You can't go there.")
	}
	return ActionResult{Narration: fmt.Sprintf("You travel to %s. %s", loc.Name, loc.Description)}, nil
}

func (e *Engine) inspect(ctx context.Context, s models.Session, cmd interpreter.Command) (ActionResult, error) {
	item, err := e.truth.FindEvidence(s.LocationID, cmd.Target)
	if err != nil {
		return ActionResult{}, e.reject(errors.Join(ErrUnknownEvidence, err),
			fmt.Sprintf("You inspect the %s but find nothing unusual.", cmd.Target))
	}
	res, err := e.sessions.Inspect(ctx, s.ID, item.ID)
	if err != nil {
		return ActionResult{}, e.reject(err, fmt.Sprintf("You inspect the %s but find nothing unusual.", cmd.Target))
	}
	view := evidenceView(res.Item)
	result := ActionResult{EvidenceDiscovered: &view}
	if res.Discovered {
		result.TierChanges = e.advanceTiers(ctx, e.sessions.EvidenceCount(s), res.EvidenceCount)
	}
	switch {
	case !res.Discovered:
		result.Narration = "You've already examined this thoroughly."
		result.EvidenceDiscovered = nil
	case res.Item.SolvesCase:
		result.Narration = fmt.Sprintf("CASE SOLVED! You found %s! %s", res.Item.Description, res.Item.Reveals)
		e.logger.LogAttrs(ctx, slog.LevelInfo, "case solved")
	default:
		result.Narration = fmt.Sprintf("New evidence: %s. %s", res.Item.Description, res.Item.Reveals)
	}
	return result, nil
}

func (e *Engine) talk(ctx context.Context, s models.Session, cmd interpreter.Command) (ActionResult, error) {
	res, err := e.orchestrator.Respond(ctx, s, cmd.Target, cmd.Extra)
	if err != nil {
		if errors.Is(err, dialogue.ErrUnknownNPC) {
			return ActionResult{}, e.reject(err, fmt.Sprintf("I don't see that person here. Try talking to: %s.",
				strings.Join(e.npcNames(), ", ")))
		}
		return ActionResult{}, e.reject(err, "Session not found.")
	}
	violations := make([]string, len(res.Violations))
	for i, v := range res.Violations {
		violations[i] = string(v)
	}
	return ActionResult{
		Narration: fmt.Sprintf("%s: %s", res.NPCName, res.Response),
		Dialogue: &DialogueView{
			NPCID:    res.NPCID,
			NPCName:  res.NPCName,
			Text:     res.Response,
			Tone:     res.Tone,
			Tier:     res.Tier,
			Cached:   res.Cached,
			Fallback: res.Fallback,
		},
		Violations: violations,
	}, nil
}

// advanceTiers runs every NPC's tier machine from the evidence count before an inspection to the count after it
// and returns the NPCs whose tier went up.
func (e *Engine) advanceTiers(ctx context.Context, before, after int) []NPCView {
	if after <= before {
		return nil
	}
	var changes []NPCView
	for _, npc := range e.truth.NPCs() {
		m := dialogue.NewMachine(npc)
		m.Advance(before)
		tier, changed := m.Advance(after)
		if !changed {
			continue
		}
		e.metrics.RecordTierChange(npc.ID, string(tier))
		e.logger.LogAttrs(ctx, slog.LevelDebug, "npc tier changed",
			slog.String("npc_id", npc.ID), slog.String("tier", string(tier)), slog.Int("evidence_count", after))
		changes = append(changes, NPCView{ID: npc.ID, Name: npc.Name, Tier: m.Current()})
	}
	return changes
}

// reject turns caller errors into a RejectionError with reason. Other errors are returned wrapped.
func (e *Engine) reject(err error, reason string) error {
	for _, sentinel := range []error{ErrUnknownSession, ErrUnknownLocation, ErrUnknownEvidence, ErrUnknownNPC} {
		if errors.Is(err, sentinel) {
			return &RejectionError{Reason: reason, Err: err}
		}
	}
	return errors.Wrap(err, "apply action")
}

func (e *Engine) helpText() string {
	return "I don't understand that command. Try: 'go to [location]', 'inspect [object]', or 'talk to [NPC]: [question]'."
}

func (e *Engine) locationNames() []string {
	var names []string
	for _, loc := range e.truth.Locations() {
		names = append(names, loc.Name)
	}
	return names
}

func (e *Engine) npcNames() []string {
	var names []string
	for _, npc := range e.truth.NPCs() {
		names = append(names, npc.Name)
	}
	return names
}

// EvaluationReport returns the current evaluation scores and cache statistics.
func (e *Engine) EvaluationReport() Report {
	return Report{
		Report: e.aggregator.Report(),
		Cache:  e.cache.Stats(),
	}
}

// EvaluationRecords returns the evaluation log.
func (e *Engine) EvaluationRecords() []models.EvaluationRecord {
	return e.aggregator.Records()
}

// EvaluationReset clears the evaluation counters. The response cache is left alone.
func (e *Engine) EvaluationReset(ctx context.Context) error {
	return e.aggregator.Reset(ctx)
}

func (e *Engine) CacheStats() responsecache.Stats {
	return e.cache.Stats()
}

// ResetCache drops all cached replies.
func (e *Engine) ResetCache(ctx context.Context) error {
	return e.cache.Reset(ctx)
}

// ActiveSessions is the number of sessions held in memory.
func (e *Engine) ActiveSessions() int {
	return e.sessions.Count()
}

func (e *Engine) view(s models.Session) StateView {
	count := e.sessions.EvidenceCount(s)
	v := StateView{
		SessionID:     s.ID,
		Evidence:      make([]EvidenceView, 0, len(s.Evidence)),
		CluesFound:    len(s.Evidence),
		EvidenceCount: count,
		History:       make([]TurnView, 0, len(s.History)),
		CreatedAt:     s.CreatedAt,
	}
	if loc, err := e.truth.Location(s.LocationID); err == nil {
		v.Location = LocationView{ID: loc.ID, Name: loc.Name, Description: loc.Description}
	}
	for _, id := range s.Evidence {
		item, err := e.truth.EvidenceByID(id)
		if err != nil {
			continue
		}
		v.Evidence = append(v.Evidence, evidenceView(item))
		v.Solved = v.Solved || item.SolvesCase
	}
	for _, npc := range e.truth.NPCs() {
		v.NPCs = append(v.NPCs, NPCView{
			ID:   npc.ID,
			Name: npc.Name,
			Tier: dialogue.ClassifyTier(count, npc.ConfessThreshold),
		})
	}
	for _, t := range s.History {
		v.History = append(v.History, TurnView{Speaker: e.speakerName(t.Speaker), Text: t.Text, At: t.At})
	}
	return v
}

func (e *Engine) speakerName(sp models.Speaker) string {
	switch sp {
	case models.SpeakerNarrator:
		return "Narrator"
	case models.SpeakerPlayer:
		return "You"
	default:
		if id, ok := sp.NPCID(); ok {
			if npc, err := e.truth.NPC(id); err == nil {
				return npc.Name
			}
		}
		return string(sp)
	}
}

func evidenceView(item story.EvidenceItem) EvidenceView {
	return EvidenceView{
		ID:          item.ID,
		Description: item.Description,
		Reveals:     item.Reveals,
		PointsTo:    item.PointsTo,
		SolvesCase:  item.SolvesCase,
	}
}
