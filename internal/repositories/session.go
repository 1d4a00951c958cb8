// Package repositories persists game state in SQLite.
package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/sqlite"
)

// SessionRepository stores game sessions with their discovery log and conversation history.
type SessionRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewSessionRepository(dbs *sqlite.Database, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{
		dbs:    dbs,
		logger: logger.With("source", "SessionRepository"),
	}
}

type sessionRow struct {
	ID         string `db:"id"`
	LocationID string `db:"location_id"`
	Created    int64  `db:"created"`
	Updated    int64  `db:"updated"`
}

type turnRow struct {
	Speaker string `db:"speaker"`
	Text    string `db:"text"`
	Created int64  `db:"created"`
}

// SaveSession upserts the session. Evidence and turns are append-only, so only the entries past the stored ones are
// inserted.
func (r *SessionRepository) SaveSession(ctx context.Context, s models.Session) error {
	tx, err := r.dbs.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err = tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback session save",
				errors.SlogError(errors.Wrap(err, "rollback")))
		}
	}()

	stmt := `INSERT INTO game_sessions (id, location_id, created, updated)
VALUES (:id, :location_id, :created, :updated)
ON CONFLICT (id) DO UPDATE SET location_id = excluded.location_id,
                               updated     = excluded.updated`
	if _, err = tx.NamedExecContext(ctx, stmt, sessionRow{
		ID:         s.ID,
		LocationID: s.LocationID,
		Created:    s.CreatedAt.UnixMilli(),
		Updated:    s.UpdatedAt.UnixMilli(),
	}); err != nil {
		return errors.Wrap(err, "upsert session", slog.String("session_id", s.ID))
	}

	var storedEvidence, storedTurns int
	if err = tx.GetContext(ctx, &storedEvidence,
		`SELECT COUNT(*) FROM discovered_evidence WHERE session_id = ?`, s.ID); err != nil {
		return errors.Wrap(err, "count evidence")
	}
	for i := storedEvidence; i < len(s.Evidence); i++ {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO discovered_evidence (session_id, evidence_id, "order") VALUES (?, ?, ?)`,
			s.ID, s.Evidence[i], i); err != nil {
			return errors.Wrap(err, "insert evidence", slog.String("evidence_id", s.Evidence[i]))
		}
	}

	if err = tx.GetContext(ctx, &storedTurns, `SELECT COUNT(*) FROM turns WHERE session_id = ?`, s.ID); err != nil {
		return errors.Wrap(err, "count turns")
	}
	for i := storedTurns; i < len(s.History); i++ {
		turn := s.History[i]
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, "order", speaker, text, created) VALUES (?, ?, ?, ?, ?)`,
			s.ID, i, string(turn.Speaker), turn.Text, turn.At.UnixMilli()); err != nil {
			return errors.Wrap(err, "insert turn", slog.Int("order", i))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit session")
	}
	return nil
}

// LoadSession returns found = false when no session has the id.
func (r *SessionRepository) LoadSession(ctx context.Context, id string) (models.Session, bool, error) {
	var row sessionRow
	err := r.dbs.ReadOnly.GetContext(ctx, &row,
		`SELECT id, location_id, created, updated FROM game_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, errors.Wrap(err, "read session", slog.String("session_id", id))
	}

	s := models.Session{
		ID:         row.ID,
		LocationID: row.LocationID,
		CreatedAt:  time.UnixMilli(row.Created),
		UpdatedAt:  time.UnixMilli(max(row.Created, row.Updated)),
	}
	if err = r.dbs.ReadOnly.SelectContext(ctx, &s.Evidence,
		`SELECT evidence_id FROM discovered_evidence WHERE session_id = ? ORDER BY "order"`, id); err != nil {
		return models.Session{}, false, errors.Wrap(err, "read evidence")
	}

	var turns []turnRow
	if err = r.dbs.ReadOnly.SelectContext(ctx, &turns,
		`SELECT speaker, text, created FROM turns WHERE session_id = ? ORDER BY "order"`, id); err != nil {
		return models.Session{}, false, errors.Wrap(err, "read turns")
	}
	s.History = make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		s.History = append(s.History, models.Turn{
			Speaker: models.Speaker(t.Speaker),
			Text:    t.Text,
			At:      time.UnixMilli(t.Created),
		})
	}
	return s, true, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM game_sessions WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "delete session", slog.String("session_id", id))
	}
	return nil
}

// DeleteExpiredSessions deletes the sessions that haven't changed since before and returns how many were deleted.
// Their evidence and turns go with them.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.dbs.ReadWrite.ExecContext(ctx,
		`DELETE FROM game_sessions WHERE MAX(created, updated) < ?`, before.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "count deleted sessions")
	}
	return n, nil
}
