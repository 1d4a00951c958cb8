// Package session owns the mutable per-player game state: the current location, the discovered evidence and the
// conversation history.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
	"github.com/patrickmn/go-cache"
)

var (
	ErrUnknownSession  = errors.NewSentinel("unknown session")
	ErrUnknownLocation = errors.NewSentinel("unknown location")
	ErrUnknownEvidence = errors.NewSentinel("unknown evidence")
)

// Store persists sessions so that they survive a restart of the host.
type Store interface {
	// SaveSession upserts the session. Evidence and history are append-only so implementations may only write the
	// entries they don't have yet.
	SaveSession(ctx context.Context, s models.Session) error
	// LoadSession returns found = false when the session doesn't exist.
	LoadSession(ctx context.Context, id string) (s models.Session, found bool, err error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions deletes the sessions that haven't changed since before.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// entry guards one session. Holding mu serializes the actions of a single player while other sessions proceed
// independently.
type entry struct {
	mu      sync.Mutex
	session models.Session
	deleted bool
}

type Manager struct {
	truth    *story.Truth
	sessions *cache.Cache
	ttl      time.Duration
	store    Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Manager)

// WithStore makes the manager write every mutation through to store and read sessions it doesn't hold in memory
// from it.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

func WithMetrics(mtr *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mtr
	}
}

// WithClock overrides time.Now, used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager. Sessions that haven't been touched for ttl are evicted from memory. Stored
// sessions that haven't changed for ttl are no longer restored, see also PurgeExpired.
func NewManager(truth *story.Truth, ttl time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		truth:    truth,
		sessions: cache.New(ttl, ttl/2), //nolint:mnd // clean up twice per ttl
		ttl:      ttl,
		logger:   logger.With("source", "SessionManager"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics.ObserveActiveSessions(m.sessions.ItemCount)
	return m
}

// Create starts a new session at the story's starting location with the intro in its history.
func (m *Manager) Create(ctx context.Context) (models.Session, error) {
	now := m.now()
	s := models.Session{
		ID:         uuid.NewString(),
		LocationID: m.truth.StartLocation().ID,
		Evidence:   []string{},
		History: []models.Turn{{
			Speaker: models.SpeakerNarrator,
			Text:    m.truth.Intro(),
			At:      now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.store != nil {
		if err := m.store.SaveSession(ctx, s); err != nil {
			return models.Session{}, errors.Wrap(err, "save new session")
		}
	}
	m.sessions.SetDefault(s.ID, &entry{session: s}) //nolint:exhaustruct // zero mutex
	m.logger.LogAttrs(ctx, slog.LevelDebug, "session created", slog.String("session_id", s.ID))
	return s.Clone(), nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(ctx context.Context, id string) (models.Session, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return models.Session{}, errors.Wrap(ErrUnknownSession, "get session", slog.String("session_id", id))
	}
	return e.session.Clone(), nil
}

// Move changes the current location and returns it.
func (m *Manager) Move(ctx context.Context, id string, locationID string) (story.Location, error) {
	loc, err := m.truth.Location(locationID)
	if err != nil {
		return story.Location{}, errors.Wrap(
			errors.Join(ErrUnknownLocation, err), "move", slog.String("location_id", locationID))
	}
	_, err = m.update(ctx, id, func(s *models.Session) (bool, error) {
		if s.LocationID == loc.ID {
			return false, nil
		}
		s.LocationID = loc.ID
		return true, nil
	})
	if err != nil {
		return story.Location{}, err
	}
	return loc, nil
}

// InspectResult is the outcome of inspecting an evidence item.
type InspectResult struct {
	Item story.EvidenceItem
	// Discovered is true when this call added the item to the evidence log and false if it had been found before.
	Discovered    bool
	EvidenceCount int
}

// Inspect discovers an evidence item at the session's current location. Inspecting an item that was already
// discovered returns it without changing the session.
func (m *Manager) Inspect(ctx context.Context, id string, evidenceID string) (InspectResult, error) {
	var result InspectResult
	s, err := m.update(ctx, id, func(s *models.Session) (bool, error) {
		item, err := m.truth.Evidence(s.LocationID, evidenceID)
		if err != nil {
			return false, errors.Wrap(errors.Join(ErrUnknownEvidence, err), "inspect",
				slog.String("evidence_id", evidenceID), slog.String("location_id", s.LocationID))
		}
		result.Item = item
		if s.HasEvidence(item.ID) {
			return false, nil
		}
		s.Evidence = append(s.Evidence, item.ID)
		result.Discovered = true
		return true, nil
	})
	if err != nil {
		return InspectResult{}, err
	}
	result.EvidenceCount = m.EvidenceCount(s)
	return result, nil
}

// EvidenceCount returns the number of discovered items that implicate someone. Neutral flavour evidence doesn't
// build confession pressure.
func (m *Manager) EvidenceCount(s models.Session) int {
	count := 0
	for _, id := range s.Evidence {
		item, err := m.truth.EvidenceByID(id)
		if err != nil {
			continue
		}
		if item.Implicates() {
			count++
		}
	}
	return count
}

// RecordTurn appends turns to the conversation history.
func (m *Manager) RecordTurn(ctx context.Context, id string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	now := m.now()
	_, err := m.update(ctx, id, func(s *models.Session) (bool, error) {
		for _, t := range turns {
			if t.At.IsZero() {
				t.At = now
			}
			s.History = append(s.History, t)
		}
		return true, nil
	})
	return err
}

// Delete ends the session. Deleting an unknown session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			return errors.Wrap(err, "delete stored session", slog.String("session_id", id))
		}
	}
	if v, ok := m.sessions.Get(id); ok {
		e := v.(*entry) //nolint:forcetypeassert // only *entry is stored
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	m.sessions.Delete(id)
	return nil
}

// PurgeExpired deletes the stored sessions that haven't changed for the ttl and returns how many were deleted.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	if m.store == nil {
		return 0, nil
	}
	n, err := m.store.DeleteExpiredSessions(ctx, m.now().Add(-m.ttl))
	if err != nil {
		return 0, errors.Wrap(err, "purge expired sessions")
	}
	if n > 0 {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "purged expired sessions", slog.Int64("count", n))
	}
	return n, nil
}

// Count returns the number of sessions held in memory.
func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

// update applies fn to a copy of the session while holding the session lock. The copy is persisted and committed
// only when fn reports a change and returns no error, so a failure leaves the session untouched.
func (m *Manager) update(
	ctx context.Context,
	id string,
	fn func(s *models.Session) (changed bool, err error),
) (models.Session, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return models.Session{}, errors.Wrap(ErrUnknownSession, "update session", slog.String("session_id", id))
	}

	next := e.session.Clone()
	changed, err := fn(&next)
	if err != nil {
		return models.Session{}, err
	}
	if !changed {
		m.sessions.SetDefault(id, e)
		return e.session.Clone(), nil
	}
	next.UpdatedAt = m.now()
	if m.store != nil {
		if err = m.store.SaveSession(ctx, next); err != nil {
			return models.Session{}, errors.Wrap(err, "save session", slog.String("session_id", id))
		}
	}
	e.session = next
	m.sessions.SetDefault(id, e)
	return next.Clone(), nil
}

// lookup finds the session in memory, falling back to the store.
func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	if v, ok := m.sessions.Get(id); ok {
		return v.(*entry), nil //nolint:forcetypeassert // only *entry is stored
	}
	if m.store == nil {
		return nil, errors.Wrap(ErrUnknownSession, "lookup session", slog.String("session_id", id))
	}
	s, found, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "load session", slog.String("session_id", id))
	}
	if !found {
		return nil, errors.Wrap(ErrUnknownSession, "lookup session", slog.String("session_id", id))
	}
	if m.now().Sub(s.UpdatedAt) > m.ttl {
		if err = m.store.DeleteSession(ctx, id); err != nil {
			return nil, errors.Wrap(err, "delete expired session", slog.String("session_id", id))
		}
		return nil, errors.Wrap(ErrUnknownSession, "session expired", slog.String("session_id", id))
	}
	e := &entry{session: s} //nolint:exhaustruct // zero mutex
	// Another request may have restored the session concurrently. Keep the first one.
	if err = m.sessions.Add(id, e, cache.DefaultExpiration); err != nil {
		if v, ok := m.sessions.Get(id); ok {
			return v.(*entry), nil //nolint:forcetypeassert // only *entry is stored
		}
	}
	m.logger.LogAttrs(ctx, slog.LevelDebug, "session restored from store", slog.String("session_id", id))
	return e, nil
}
