package tabular

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// openSQLite opens a SQLite database file and configures WAL mode.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return db, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqliteTableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type IN ('table', 'view') AND lower(name) = lower(?)`,
		name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: look up table %s", name)
	}
	return n > 0, nil
}

// SQLiteSource reads datasets stored as tables of one SQLite database.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

// NewSQLiteSource opens the database at path. The file must exist.
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSource{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Stream implements dataset.Source.
func (s *SQLiteSource) Stream(ctx context.Context, name string) (<-chan dataset.Record, <-chan error) {
	return stream(ctx, name, func(emit func(dataset.Record) error) error {
		rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
		if err != nil {
			return eris.Wrapf(err, "sqlite: query %s", name)
		}
		defer rows.Close() //nolint:errcheck

		columns, err := rows.Columns()
		if err != nil {
			return eris.Wrapf(err, "sqlite: columns of %s", name)
		}
		zap.L().Debug("sqlite: reading dataset", zap.String("dataset", name), zap.String("path", s.path))

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return eris.Wrapf(err, "sqlite: scan %s", name)
			}
			if err := emit(dataset.NewRecord(columns, values)); err != nil {
				return err
			}
		}
		return eris.Wrapf(rows.Err(), "sqlite: iterate %s", name)
	})
}

// SQLiteWriter writes tables into the SQLite database file named by the
// location. Handles are cached per file until Close.
type SQLiteWriter struct {
	mu      sync.Mutex
	dbs     map[string]*sql.DB
	pending map[string]bool
}

// CreateTable implements dataset.Writer.
func (w *SQLiteWriter) CreateTable(ctx context.Context, location, name string) (dataset.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	db, err := w.open(location)
	if err != nil {
		return nil, err
	}
	key := location + "\x00" + strings.ToLower(name)
	exists, err := sqliteTableExists(ctx, db, name)
	if err != nil {
		return nil, err
	}
	if exists || w.pending[key] {
		return nil, eris.Errorf("sqlite: table %s already exists in %s", name, location)
	}
	if w.pending == nil {
		w.pending = make(map[string]bool)
	}
	w.pending[key] = true
	return &sqliteTable{tableBuffer: tableBuffer{name: name}, w: w, db: db, key: key}, nil
}

func (w *SQLiteWriter) open(path string) (*sql.DB, error) {
	if db, ok := w.dbs[path]; ok {
		return db, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create directory %s", dir)
		}
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if w.dbs == nil {
		w.dbs = make(map[string]*sql.DB)
	}
	w.dbs[path] = db
	return db, nil
}

func (w *SQLiteWriter) release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, key)
}

// Close closes every database opened by the writer.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for path, db := range w.dbs {
		if err := db.Close(); err != nil && first == nil {
			first = eris.Wrapf(err, "sqlite: close %s", path)
		}
	}
	w.dbs = nil
	return first
}

type sqliteTable struct {
	tableBuffer
	w   *SQLiteWriter
	db  *sql.DB
	key string
}

func (t *sqliteTable) Close(ctx context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	defer t.w.release(t.key)

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, t.createSQL()); err != nil {
		return eris.Wrapf(err, "sqlite: create table %s", t.name)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+quoteIdent(t.name)+" VALUES ("+placeholders+")")
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert into %s", t.name)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range t.rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", t.name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (t *sqliteTable) createSQL() string {
	cols := make([]string, len(t.cols))
	for i, c := range t.cols {
		typ := "TEXT"
		if c.Type == dataset.TypeLong {
			typ = "INTEGER"
		}
		cols[i] = quoteIdent(c.Name) + " " + typ
	}
	return "CREATE TABLE " + quoteIdent(t.name) + " (" + strings.Join(cols, ", ") + ")"
}

// Abort releases the table name. Nothing reaches the database before Close.
func (t *sqliteTable) Abort(context.Context) error {
	if !t.done {
		t.w.release(t.key)
	}
	t.done = true
	return nil
}
