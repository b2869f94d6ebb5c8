package tabular

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
	"github.com/sells-group/coa-cli/internal/db"
)

// PostgresSource reads datasets stored as tables of one schema.
type PostgresSource struct {
	Pool   db.Pool
	Schema string // default "public"
}

// Stream implements dataset.Source.
func (s *PostgresSource) Stream(ctx context.Context, name string) (<-chan dataset.Record, <-chan error) {
	schema := s.Schema
	if schema == "" {
		schema = db.DefaultSchema
	}
	return stream(ctx, name, func(emit func(dataset.Record) error) error {
		zap.L().Debug("postgres: reading dataset", zap.String("dataset", name), zap.String("schema", schema))
		return db.ScanTable(ctx, s.Pool, schema+"."+name, func(columns []string, values []any) error {
			for i, v := range values {
				values[i] = pgValue(v)
			}
			return emit(dataset.NewRecord(columns, values))
		})
	})
}

// pgValue unwraps pgtype values that have no natural Go scalar.
func pgValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// PostgresWriter writes tables into the schema named by the location.
type PostgresWriter struct {
	Pool db.Pool

	mu      sync.Mutex
	pending map[string]bool
}

// CreateTable implements dataset.Writer.
func (w *PostgresWriter) CreateTable(ctx context.Context, location, name string) (dataset.Table, error) {
	schema := location
	if schema == "" {
		schema = db.DefaultSchema
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := schema + "." + name
	exists, err := db.TableExists(ctx, w.Pool, schema, name)
	if err != nil {
		return nil, err
	}
	if exists || w.pending[key] {
		return nil, eris.Errorf("postgres: table %s already exists", key)
	}
	if w.pending == nil {
		w.pending = make(map[string]bool)
	}
	w.pending[key] = true
	return &postgresTable{tableBuffer: tableBuffer{name: name}, w: w, schema: schema, key: key}, nil
}

func (w *PostgresWriter) release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, key)
}

type postgresTable struct {
	tableBuffer
	w      *PostgresWriter
	schema string
	key    string
}

func (t *postgresTable) Close(ctx context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	defer t.w.release(t.key)

	def := db.TableDef{Schema: t.schema, Name: t.name, Columns: make([]db.ColumnDef, len(t.cols))}
	for i, c := range t.cols {
		def.Columns[i] = db.ColumnDef{Name: c.Name, Type: pgType(c)}
	}
	_, err := db.CreateAndCopy(ctx, t.w.Pool, def, t.rows)
	return err
}

func pgType(c dataset.Column) string {
	switch {
	case c.Type == dataset.TypeLong:
		return "bigint"
	case c.Length > 0:
		return fmt.Sprintf("varchar(%d)", c.Length)
	default:
		return "text"
	}
}

// Abort releases the table name. The table is created and loaded in a single
// transaction at Close, so there is nothing to drop.
func (t *postgresTable) Abort(context.Context) error {
	if !t.done {
		t.w.release(t.key)
	}
	t.done = true
	return nil
}

