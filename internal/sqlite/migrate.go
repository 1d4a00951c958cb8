package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/random"
)

// migrate makes the database schema match schemaDefinition declaratively.
//
// The target schema is created in a scratch in-memory database that is attached next to the live one. Tables and
// indexes are then diffed by name and SQL text:
//
//  1. tables missing from the target are dropped,
//  2. tables missing from the live database are created,
//  3. changed tables are rebuilt keeping the columns they have in common,
//  4. indexes are dropped and recreated when their definition differs.
//
// The rebuild follows https://www.sqlite.org/lang_altertable.html#otheralter.
func (db *Database) migrate(ctx context.Context, schemaDefinition string) (err error) {
	var (
		randomID     string
		dbNameLength uint = 20
	)
	if randomID, err = random.Letters(dbNameLength); err != nil {
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", randomID)
	target, err := sqlx.Open("sqlite3", targetDSN)
	if err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	// The in-memory target only lives while a connection is open.
	target.SetMaxIdleConns(1)
	defer func() {
		err = errors.Join(err, errors.Wrap(target.Close(), "close schema target database"))
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "create schema target")
	}

	// ATTACH and the foreign key pragma don't work inside a transaction, so pin a connection for the whole run.
	conn, err := db.ReadWrite.Connx(ctx)
	if err != nil {
		return errors.Wrap(err, "get connection")
	}
	defer func() {
		err = errors.Join(err, errors.Wrap(conn.Close(), "release connection"))
	}()

	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign keys")
	}
	defer func() {
		if _, fkErr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, errors.Wrap(fkErr, "enable foreign keys"))
		}
	}()
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schema_target", targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target")
	}
	defer func() {
		if _, detachErr := conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE schema_target"); detachErr != nil {
			err = errors.Join(err, errors.Wrap(detachErr, "detach schema target"))
		}
	}()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback migration",
				errors.SlogError(errors.Wrap(rbErr, "rollback")))
		}
	}()

	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	if err = db.migrateIndexes(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate indexes")
	}

	var violations []struct {
		Table  string         `db:"table"`
		RowID  sql.NullInt64  `db:"rowid"`
		Parent string         `db:"parent"`
		FKID   sql.NullString `db:"fkid"`
	}
	if err = tx.SelectContext(ctx, &violations, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration",
			slog.String("table", violations[0].Table), slog.Int("count", len(violations)))
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit migration")
	}
	return nil
}

type schemaObject struct {
	Name      string `db:"name"`
	TableName string `db:"tbl_name"`
	SQL       string `db:"sql"`
}

func (db *Database) migrateTables(ctx context.Context, tx *sqlx.Tx) error {
	var (
		dropped []string
		created []string
		changed []struct {
			Name       string `db:"name"`
			CurrentSQL string `db:"current_sql"`
			NewSQL     string `db:"new_sql"`
		}
	)
	if err := tx.SelectContext(ctx, &dropped, `SELECT name FROM main.sqlite_schema
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
  AND name NOT IN (SELECT name FROM schema_target.sqlite_schema WHERE type = 'table')`); err != nil {
		return errors.Wrap(err, "query dropped tables")
	}
	for _, name := range dropped {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", name))
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(name))); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", name))
		}
	}

	if err := tx.SelectContext(ctx, &created, `SELECT sql FROM schema_target.sqlite_schema
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
  AND name NOT IN (SELECT name FROM main.sqlite_schema WHERE type = 'table')`); err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, stmt := range created {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "create table")
		}
	}

	if err := tx.SelectContext(ctx, &changed, `SELECT current.name AS name, current.sql AS current_sql,
       target.sql AS new_sql
FROM main.sqlite_schema AS current
         JOIN schema_target.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`); err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changed {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
			slog.String("table", table.Name),
			slog.String("current_sql", table.CurrentSQL),
			slog.String("new_sql", table.NewSQL))
		if err := rebuildTable(ctx, tx, table.Name, table.NewSQL); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", table.Name))
		}
	}
	return nil
}

func rebuildTable(ctx context.Context, tx *sqlx.Tx, name, newSQL string) error {
	tempName := name + "_migration_temp"
	tempSQL := strings.Replace(newSQL, name, tempName, 1)
	if _, err := tx.ExecContext(ctx, tempSQL); err != nil {
		return errors.Wrap(err, "create temporary table", slog.String("query", tempSQL))
	}

	var common []string
	if err := tx.SelectContext(ctx, &common, `SELECT current.name
FROM pragma_table_info(?, 'main') AS current
         JOIN pragma_table_info(?, 'schema_target') AS target ON current.name = target.name`,
		name, name); err != nil {
		return errors.Wrap(err, "query common columns")
	}
	if len(common) > 0 {
		quoted := make([]string, len(common))
		for i, c := range common {
			quoted[i] = quote(c)
		}
		columns := strings.Join(quoted, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", //nolint:gosec // identifiers are quoted
			quote(tempName), columns, columns, quote(name))
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy rows")
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(name))); err != nil {
		return errors.Wrap(err, "drop old table")
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(tempName), quote(name))); err != nil {
		return errors.Wrap(err, "rename table")
	}
	return nil
}

// migrateIndexes runs after the tables so that rebuilt tables, which lost their indexes, get them back.
func (db *Database) migrateIndexes(ctx context.Context, tx *sqlx.Tx) error {
	var current, target []schemaObject
	const query = `SELECT name, tbl_name, sql FROM %s.sqlite_schema WHERE type = 'index' AND sql IS NOT NULL`
	if err := tx.SelectContext(ctx, &current, fmt.Sprintf(query, "main")); err != nil {
		return errors.Wrap(err, "query current indexes")
	}
	if err := tx.SelectContext(ctx, &target, fmt.Sprintf(query, "schema_target")); err != nil {
		return errors.Wrap(err, "query target indexes")
	}

	wanted := make(map[string]string, len(target))
	for _, idx := range target {
		wanted[idx.Name] = idx.SQL
	}
	existing := make(map[string]bool, len(current))
	for _, idx := range current {
		if sqlText, ok := wanted[idx.Name]; ok && sqlText == idx.SQL {
			existing[idx.Name] = true
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping index", slog.String("index", idx.Name))
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP INDEX %s", quote(idx.Name))); err != nil {
			return errors.Wrap(err, "drop index", slog.String("index", idx.Name))
		}
	}
	for _, idx := range target {
		if existing[idx.Name] {
			continue
		}
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating index", slog.String("query", idx.SQL))
		if _, err := tx.ExecContext(ctx, idx.SQL); err != nil {
			return errors.Wrap(err, "create index", slog.String("index", idx.Name))
		}
	}
	return nil
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
