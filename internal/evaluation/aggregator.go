// Package evaluation scores the quality of the dialogue system over time.
package evaluation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/models"
)

const (
	ConsistencyThreshold = 0.90
	QualityThreshold     = 0.75
	ProgressionThreshold = 0.80
	OverallThreshold     = 0.80

	consistencyWeight = 0.40
	qualityWeight     = 0.30
	progressionWeight = 0.30

	maxRating = 5
)

const (
	testKnowledgeBoundary = "knowledge_boundary"
	testLocationGrounding = "location_grounding"
	testNPCGrounding      = "npc_grounding"
	testResponseQuality   = "response_quality"
	testClueRevelation    = "clue_revelation"
)

// Interaction is the outcome of one NPC reply.
type Interaction struct {
	NPCID      string
	Violations models.Violations
	// Coherence and Relevance are 1-5 ratings.
	Coherence int
	Relevance int
	// ConfessionEligible is true when the NPC has confession content to hold back.
	ConfessionEligible bool
}

// Counters are the raw measurements scores are computed from.
type Counters struct {
	TotalInteractions     int `json:"total_interactions"`
	KnowledgeViolations   int `json:"knowledge_violations"`
	HallucinatedLocations int `json:"hallucinated_location_refs"`
	HallucinatedNPCs      int `json:"hallucinated_npc_refs"`
	Ratings               int `json:"ratings"`
	CoherenceSum          int `json:"coherence_sum"`
	RelevanceSum          int `json:"relevance_sum"`
	ConfessionEligible    int `json:"total_confession_eligible_interactions"`
	PrematureRevelations  int `json:"premature_revelations"`
}

type CategoryReport struct {
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

type Report struct {
	Consistency CategoryReport `json:"consistency"`
	Quality     CategoryReport `json:"quality"`
	Progression CategoryReport `json:"progression"`
	Overall     CategoryReport `json:"overall"`
	// AverageCoherence and AverageRelevance are zero when nothing was rated.
	AverageCoherence float64  `json:"average_coherence"`
	AverageRelevance float64  `json:"average_relevance"`
	Counters         Counters `json:"counters"`
	Records          int      `json:"records"`
}

// Sink persists evaluation records.
type Sink interface {
	AppendRecords(ctx context.Context, records []models.EvaluationRecord) error
	// ListRecords returns the log in insertion order.
	ListRecords(ctx context.Context) ([]models.EvaluationRecord, error)
	DeleteRecords(ctx context.Context) error
}

type Aggregator struct {
	mu       sync.Mutex
	counters Counters
	records  []models.EvaluationRecord
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Aggregator)

func WithSink(sink Sink) Option {
	return func(a *Aggregator) {
		a.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		logger: logger.With("source", "EvaluationAggregator"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record adds the interaction to the counters and appends its evaluation records.
func (a *Aggregator) Record(ctx context.Context, in Interaction) {
	at := a.now()
	records := recordsFor(in, at)

	a.mu.Lock()
	a.counters.TotalInteractions++
	if in.Violations.Has(models.ViolationKnowledge) {
		a.counters.KnowledgeViolations++
	}
	if in.Violations.Has(models.ViolationHallucinatedLocation) {
		a.counters.HallucinatedLocations++
	}
	if in.Violations.Has(models.ViolationHallucinatedNPC) {
		a.counters.HallucinatedNPCs++
	}
	if in.Coherence > 0 || in.Relevance > 0 {
		a.counters.Ratings++
		a.counters.CoherenceSum += in.Coherence
		a.counters.RelevanceSum += in.Relevance
	}
	if in.ConfessionEligible {
		a.counters.ConfessionEligible++
		if in.Violations.Has(models.ViolationPrematureRevelation) {
			a.counters.PrematureRevelations++
		}
	}
	a.records = append(a.records, records...)
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.AppendRecords(ctx, records); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "persist evaluation records", errors.SlogError(err))
		}
	}
}

// Warm replaces the in-memory log with the persisted one and rebuilds the counters from it.
func (a *Aggregator) Warm(ctx context.Context) error {
	if a.sink == nil {
		return nil
	}
	records, err := a.sink.ListRecords(ctx)
	if err != nil {
		return errors.Wrap(err, "list evaluation records")
	}
	counters := countersFrom(records)

	a.mu.Lock()
	a.counters = counters
	a.records = records
	a.mu.Unlock()

	a.logger.LogAttrs(ctx, slog.LevelInfo, "evaluation log restored",
		slog.Int("records", len(records)), slog.Int("interactions", counters.TotalInteractions))
	return nil
}

// countersFrom inverts recordsFor. Every interaction emits exactly one knowledge_boundary record.
func countersFrom(records []models.EvaluationRecord) Counters {
	var c Counters
	for _, rec := range records {
		switch rec.TestName {
		case testKnowledgeBoundary:
			c.TotalInteractions++
			if !rec.Passed {
				c.KnowledgeViolations++
			}
		case testLocationGrounding:
			if !rec.Passed {
				c.HallucinatedLocations++
			}
		case testNPCGrounding:
			if !rec.Passed {
				c.HallucinatedNPCs++
			}
		case testResponseQuality:
			c.Ratings++
			c.CoherenceSum += rec.Coherence
			c.RelevanceSum += rec.Relevance
		case testClueRevelation:
			c.ConfessionEligible++
			if !rec.Passed {
				c.PrematureRevelations++
			}
		}
	}
	return c
}

// Report computes scores from a consistent snapshot of the counters.
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	c := a.counters
	n := len(a.records)
	a.mu.Unlock()

	r := Score(c)
	r.Records = n
	return r
}

// Records returns a copy of the evaluation log.
func (a *Aggregator) Records() []models.EvaluationRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.records)
}

// Reset clears the counters and the log.
func (a *Aggregator) Reset(ctx context.Context) error {
	a.mu.Lock()
	a.counters = Counters{}
	a.records = nil
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.DeleteRecords(ctx); err != nil {
			return errors.Wrap(err, "delete persisted evaluation records")
		}
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "evaluation reset")
	return nil
}

// Score computes the report for the counters. Categories without measurements score 1.
func Score(c Counters) Report {
	r := Report{Counters: c}

	consistency := 1.0
	if c.TotalInteractions > 0 {
		violations := c.KnowledgeViolations + c.HallucinatedLocations + c.HallucinatedNPCs
		consistency = 1 - float64(violations)/float64(c.TotalInteractions)
	}
	r.Consistency = category(consistency, ConsistencyThreshold)

	quality := 1.0
	if c.Ratings > 0 {
		r.AverageCoherence = float64(c.CoherenceSum) / float64(c.Ratings)
		r.AverageRelevance = float64(c.RelevanceSum) / float64(c.Ratings)
		quality = (r.AverageCoherence + r.AverageRelevance) / (2 * maxRating) //nolint:mnd // two ratings
	}
	r.Quality = category(quality, QualityThreshold)

	progression := 1.0
	if c.ConfessionEligible > 0 {
		progression = 1 - float64(c.PrematureRevelations)/float64(c.ConfessionEligible)
	}
	r.Progression = category(progression, ProgressionThreshold)

	overall := consistencyWeight*r.Consistency.Score +
		qualityWeight*r.Quality.Score +
		progressionWeight*r.Progression.Score
	r.Overall = category(overall, OverallThreshold)
	r.Overall.Passed = r.Overall.Passed && r.Consistency.Passed && r.Quality.Passed && r.Progression.Passed
	return r
}

func category(score, threshold float64) CategoryReport {
	score = max(0, min(1, score))
	return CategoryReport{
		Score:     score,
		Threshold: threshold,
		Passed:    score >= threshold,
	}
}

func recordsFor(in Interaction, at time.Time) []models.EvaluationRecord {
	records := []models.EvaluationRecord{
		{
			Category: models.CategoryConsistency,
			TestName: testKnowledgeBoundary,
			Passed:   !in.Violations.Has(models.ViolationKnowledge),
			At:       at,
		},
		{
			Category: models.CategoryConsistency,
			TestName: testLocationGrounding,
			Passed:   !in.Violations.Has(models.ViolationHallucinatedLocation),
			At:       at,
		},
		{
			Category: models.CategoryConsistency,
			TestName: testNPCGrounding,
			Passed:   !in.Violations.Has(models.ViolationHallucinatedNPC),
			At:       at,
		},
	}
	if in.Coherence > 0 || in.Relevance > 0 {
		records = append(records, models.EvaluationRecord{
			Category:  models.CategoryQuality,
			TestName:  testResponseQuality,
			Passed:    float64(in.Coherence+in.Relevance)/(2*maxRating) >= QualityThreshold, //nolint:mnd // two ratings
			Coherence: in.Coherence,
			Relevance: in.Relevance,
			At:        at,
		})
	}
	if in.ConfessionEligible {
		records = append(records, models.EvaluationRecord{
			Category: models.CategoryProgression,
			TestName: testClueRevelation,
			Passed:   !in.Violations.Has(models.ViolationPrematureRevelation),
			At:       at,
		})
	}
	return records
}
