package main

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coa-cli/internal/accessibility"
	"github.com/sells-group/coa-cli/internal/config"
	"github.com/sells-group/coa-cli/internal/dataset"
	"github.com/sells-group/coa-cli/internal/db"
	"github.com/sells-group/coa-cli/internal/store"
	"github.com/sells-group/coa-cli/internal/tabular"
)

// closers collects cleanup functions for the backends opened by a command.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

// Close runs the cleanup functions in reverse order and returns the first error.
func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// initSource opens the configured input backend.
func initSource(ctx context.Context, sc config.SourceConfig, cl *closers) (dataset.Source, error) {
	switch tabular.Format(sc.Format) {
	case tabular.FormatCSV:
		delim, err := delimiter(sc.Delimiter)
		if err != nil {
			return nil, err
		}
		return &tabular.CSVSource{Dir: sc.Path, Delimiter: delim}, nil
	case tabular.FormatXLSX:
		return &tabular.XLSXSource{Path: sc.Path}, nil
	case tabular.FormatShapefile:
		return &tabular.ShapefileSource{Dir: sc.Path}, nil
	case tabular.FormatSQLite:
		src, err := tabular.NewSQLiteSource(sc.Path)
		if err != nil {
			return nil, err
		}
		cl.add(src.Close)
		return src, nil
	case tabular.FormatPostgres:
		pool, err := db.Connect(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect source database")
		}
		cl.add(func() error { pool.Close(); return nil })
		return &tabular.PostgresSource{Pool: pool, Schema: sc.Schema}, nil
	default:
		return nil, eris.Errorf("unsupported source format: %s", sc.Format)
	}
}

// initWriter opens the configured output backend.
func initWriter(ctx context.Context, oc config.OutputConfig, cl *closers) (dataset.Writer, error) {
	switch tabular.Format(oc.Format) {
	case tabular.FormatCSV:
		return &tabular.CSVWriter{}, nil
	case tabular.FormatXLSX:
		return &tabular.XLSXWriter{}, nil
	case tabular.FormatSQLite:
		w := &tabular.SQLiteWriter{}
		cl.add(w.Close)
		return w, nil
	case tabular.FormatPostgres:
		pool, err := db.Connect(ctx, oc.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect output database")
		}
		cl.add(func() error { pool.Close(); return nil })
		return &tabular.PostgresWriter{Pool: pool}, nil
	default:
		return nil, eris.Errorf("unsupported output format: %s", oc.Format)
	}
}

// initStore opens and migrates the run log. A nil store means run logging is
// disabled.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(sc.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// recorder adapts an optional store to the runner. A nil interface value is
// returned when logging is disabled so the runner skips recording.
func recorder(st store.Store) accessibility.Recorder {
	if st == nil {
		return nil
	}
	return st
}

// splitList splits a ";"-separated argument, dropping blanks.
func splitList(arg string) []string {
	var out []string
	for _, part := range strings.Split(arg, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func delimiter(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, eris.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}
