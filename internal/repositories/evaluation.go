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

// EvaluationRepository keeps the append-only evaluation log.
type EvaluationRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewEvaluationRepository(dbs *sqlite.Database, logger *slog.Logger) *EvaluationRepository {
	return &EvaluationRepository{
		dbs:    dbs,
		logger: logger.With("source", "EvaluationRepository"),
	}
}

type evaluationRow struct {
	Category  string `db:"category"`
	TestName  string `db:"test_name"`
	Passed    bool   `db:"passed"`
	Coherence int    `db:"coherence"`
	Relevance int    `db:"relevance"`
	Created   int64  `db:"created"`
}

func (r *EvaluationRepository) AppendRecords(ctx context.Context, records []models.EvaluationRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.dbs.ReadWrite.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err = tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback evaluation records",
				errors.SlogError(errors.Wrap(err, "rollback")))
		}
	}()

	stmt := `INSERT INTO evaluation_records (category, test_name, passed, coherence, relevance, created)
VALUES (:category, :test_name, :passed, :coherence, :relevance, :created)`
	for _, rec := range records {
		if _, err = tx.NamedExecContext(ctx, stmt, evaluationRow{
			Category:  string(rec.Category),
			TestName:  rec.TestName,
			Passed:    rec.Passed,
			Coherence: rec.Coherence,
			Relevance: rec.Relevance,
			Created:   rec.At.UnixMilli(),
		}); err != nil {
			return errors.Wrap(err, "insert evaluation record", slog.String("test_name", rec.TestName))
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit evaluation records")
	}
	return nil
}

// ListRecords returns the log in insertion order.
func (r *EvaluationRepository) ListRecords(ctx context.Context) ([]models.EvaluationRecord, error) {
	var rows []evaluationRow
	if err := r.dbs.ReadOnly.SelectContext(ctx, &rows,
		`SELECT category, test_name, passed, coherence, relevance, created FROM evaluation_records ORDER BY id`,
	); err != nil {
		return nil, errors.Wrap(err, "query evaluation records")
	}
	records := make([]models.EvaluationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.EvaluationRecord{
			Category:  models.EvaluationCategory(row.Category),
			TestName:  row.TestName,
			Passed:    row.Passed,
			Coherence: row.Coherence,
			Relevance: row.Relevance,
			At:        time.UnixMilli(row.Created),
		})
	}
	return records, nil
}

func (r *EvaluationRepository) DeleteRecords(ctx context.Context) error {
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM evaluation_records`); err != nil {
		return errors.Wrap(err, "delete evaluation records")
	}
	return nil
}
