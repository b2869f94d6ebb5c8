// Package tabular reads input datasets from and writes output tables to CSV
// directories, XLSX workbooks, shapefiles, SQLite databases, and PostgreSQL
// schemas.
package tabular

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// Format names a storage backend.
type Format string

// Supported formats.
const (
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatShapefile Format = "shp"
	FormatSQLite    Format = "sqlite"
	FormatPostgres  Format = "postgres"
)

// stream runs produce in a goroutine and forwards the records it emits.
// Both channels are closed when produce returns; its error, if any, is sent
// on the error channel.
func stream(ctx context.Context, name string, produce func(emit func(dataset.Record) error) error) (<-chan dataset.Record, <-chan error) {
	recCh := make(chan dataset.Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		emit := func(rec dataset.Record) error {
			select {
			case recCh <- rec:
				return nil
			case <-ctx.Done():
				return eris.Wrapf(ctx.Err(), "tabular: read %s: context cancelled", name)
			}
		}
		if err := produce(emit); err != nil {
			errCh <- err
		}
	}()

	return recCh, errCh
}

// textRecord builds a record from string cells. Blank cells are null.
func textRecord(header, cells []string) dataset.Record {
	values := make([]any, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			values[i] = nil
		} else {
			values[i] = c
		}
	}
	return dataset.NewRecord(header, values)
}

// cleanHeader trims header cells and strips a UTF-8 byte order mark.
func cleanHeader(cells []string) ([]string, error) {
	header := make([]string, len(cells))
	for i, c := range cells {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		header[i] = strings.TrimSpace(c)
		if header[i] == "" {
			return nil, eris.Errorf("header column %d is blank", i+1)
		}
	}
	return header, nil
}

// formatCell renders an output value as text.
func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return dataset.ValueOf(x).String()
	}
}

// tableBuffer collects columns and rows until the owning table is closed.
type tableBuffer struct {
	name string
	cols []dataset.Column
	rows [][]any
	done bool
}

func (b *tableBuffer) Name() string { return b.name }

func (b *tableBuffer) AddColumn(_ context.Context, col dataset.Column) error {
	if b.done {
		return eris.Errorf("tabular: table %s is closed", b.name)
	}
	if len(b.rows) > 0 {
		return eris.Errorf("tabular: table %s: add column %s after rows were inserted", b.name, col.Name)
	}
	if col.Name == "" {
		return eris.Errorf("tabular: table %s: column name is empty", b.name)
	}
	for _, c := range b.cols {
		if strings.EqualFold(c.Name, col.Name) {
			return eris.Errorf("tabular: table %s: duplicate column %s", b.name, col.Name)
		}
	}
	b.cols = append(b.cols, col)
	return nil
}

func (b *tableBuffer) InsertRow(_ context.Context, values []any) error {
	if b.done {
		return eris.Errorf("tabular: table %s is closed", b.name)
	}
	if len(b.cols) == 0 {
		return eris.Errorf("tabular: table %s has no columns", b.name)
	}
	if err := dataset.CheckRow(b.cols, values); err != nil {
		return eris.Wrapf(err, "tabular: table %s", b.name)
	}
	b.rows = append(b.rows, slices.Clone(values))
	return nil
}

// finish marks the buffer closed. It fails on a second call.
func (b *tableBuffer) finish() error {
	if b.done {
		return eris.Errorf("tabular: table %s is already closed", b.name)
	}
	if len(b.cols) == 0 {
		return eris.Errorf("tabular: table %s has no columns", b.name)
	}
	b.done = true
	return nil
}

func (b *tableBuffer) columnNames() []string {
	names := make([]string, len(b.cols))
	for i, c := range b.cols {
		names[i] = c.Name
	}
	return names
}
