package db

import (
	"context"

	"github.com/rotisserie/eris"
)

// ScanTable runs SELECT * against table and calls fn for each row with the
// column names and decoded values. table may be schema-qualified.
func ScanTable(ctx context.Context, pool Pool, table string, fn func(columns []string, values []any) error) error {
	rows, err := pool.Query(ctx, "SELECT * FROM "+sanitizeTable(table))
	if err != nil {
		return eris.Wrapf(err, "db: query %s", table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return eris.Wrapf(err, "db: read row of %s", table)
		}
		if err := fn(columns, values); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "db: iterate %s", table)
	}
	return nil
}

// TableExists reports whether schema.table exists.
func TableExists(ctx context.Context, pool Pool, schema, table string) (bool, error) {
	rows, err := pool.Query(ctx,
		`SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`,
		schema, table,
	)
	if err != nil {
		return false, eris.Wrapf(err, "db: look up %s.%s", schema, table)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, eris.Wrapf(err, "db: look up %s.%s", schema, table)
	}
	return exists, nil
}
