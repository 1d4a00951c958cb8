package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/responsecache"
	"github.com/myrjola/compassmystery/internal/sqlite"
)

// CacheRepository persists the dialogue response cache.
type CacheRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewCacheRepository(dbs *sqlite.Database, logger *slog.Logger) *CacheRepository {
	return &CacheRepository{
		dbs:    dbs,
		logger: logger.With("source", "CacheRepository"),
	}
}

type cacheRow struct {
	NPCID    string `db:"npc_id"`
	Question string `db:"question"`
	Tier     string `db:"tier"`
	Response string `db:"response"`
	Tone     string `db:"tone"`
	Fallback bool   `db:"fallback"`
	Created  int64  `db:"created"`
}

// AddEntry stores the entry unless one with the same key exists. The first stored answer wins.
func (r *CacheRepository) AddEntry(ctx context.Context, e responsecache.Entry) error {
	stmt := `INSERT OR IGNORE INTO dialogue_cache (npc_id, question, tier, response, tone, fallback, created)
VALUES (:npc_id, :question, :tier, :response, :tone, :fallback, :created)`
	if _, err := r.dbs.ReadWrite.NamedExecContext(ctx, stmt, cacheRow{
		NPCID:    e.Key.NPCID,
		Question: e.Key.Question,
		Tier:     string(e.Key.Tier),
		Response: e.Response,
		Tone:     e.Tone,
		Fallback: e.Fallback,
		Created:  e.CreatedAt.UnixMilli(),
	}); err != nil {
		return errors.Wrap(err, "insert cache entry", slog.String("npc_id", e.Key.NPCID))
	}
	return nil
}

func (r *CacheRepository) ListEntries(ctx context.Context) ([]responsecache.Entry, error) {
	var rows []cacheRow
	if err := r.dbs.ReadOnly.SelectContext(ctx, &rows,
		`SELECT npc_id, question, tier, response, tone, fallback, created FROM dialogue_cache ORDER BY created`,
	); err != nil {
		return nil, errors.Wrap(err, "query cache entries")
	}
	entries := make([]responsecache.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, responsecache.Entry{
			Key: responsecache.Key{
				NPCID:    row.NPCID,
				Question: row.Question,
				Tier:     models.Tier(row.Tier),
			},
			Response:  row.Response,
			Tone:      row.Tone,
			Fallback:  row.Fallback,
			CreatedAt: time.UnixMilli(row.Created),
		})
	}
	return entries, nil
}

func (r *CacheRepository) DeleteEntries(ctx context.Context) error {
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM dialogue_cache`); err != nil {
		return errors.Wrap(err, "delete cache entries")
	}
	return nil
}
