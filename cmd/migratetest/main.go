package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/sqlite"
	"github.com/myrjola/compassmystery/internal/testhelpers"
)

// countRows reports the row count of each table that carries state across restarts.
func countRows(ctx context.Context, db *sqlite.Database) (map[string]int, error) {
	counts := map[string]int{}
	for _, table := range []string{"game_sessions", "turns", "dialogue_cache", "evaluation_records"} {
		var count int
		if err := db.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
			return nil, errors.Wrap(err, "count rows", slog.String("table", table))
		}
		counts[table] = count
	}
	return counts, nil
}

// Migrates a copy of a production database and checks that the game state survived.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("MYSTERY_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "MYSTERY_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	counts, err := countRows(ctx, db)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error counting rows", errors.SlogError(err))
		os.Exit(1)
	}
	if counts["game_sessions"] == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no game sessions found, something is likely wrong")
		os.Exit(1)
	}
	for table, count := range counts {
		logger.LogAttrs(ctx, slog.LevelInfo, "row count", slog.String("table", table), slog.Int("count", count))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
	}
	cancel()
	os.Exit(0)
}
