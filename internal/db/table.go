package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ColumnDef is one column of a created table.
type ColumnDef struct {
	Name string
	Type string // SQL type, e.g. "varchar(15)" or "bigint"
}

// TableDef describes a table created by CreateAndCopy.
type TableDef struct {
	Schema  string
	Name    string
	Columns []ColumnDef
}

// CreateAndCopy creates def and loads rows into it inside one transaction.
// The table must not already exist; on any error nothing is left behind.
func CreateAndCopy(ctx context.Context, pool Pool, def TableDef, rows [][]any) (int64, error) {
	if def.Name == "" {
		return 0, eris.New("db: create table: no table name specified")
	}
	if len(def.Columns) == 0 {
		return 0, eris.Errorf("db: create table %s: no columns specified", def.Name)
	}
	if def.Schema == "" {
		def.Schema = DefaultSchema
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: create table: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, createTableSQL(def)); err != nil {
		return 0, eris.Wrapf(err, "db: create table %s.%s", def.Schema, def.Name)
	}

	names := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		names[i] = c.Name
	}
	n, err := CopyFromSchema(ctx, tx, def.Schema, def.Name, names, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: create table: commit tx")
	}
	return n, nil
}

func createTableSQL(def TableDef) string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)",
		pgx.Identifier{def.Schema, def.Name}.Sanitize(),
		strings.Join(cols, ", "),
	)
}

// sanitizeTable handles schema-qualified table names like "public.lu_jobs2010_taz2010".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
