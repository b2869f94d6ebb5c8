package dataset

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Source reads named tabular datasets.
type Source interface {
	// Stream sends every record of the named dataset. Both channels are
	// closed when reading completes; at most one error is sent.
	Stream(ctx context.Context, name string) (<-chan Record, <-chan error)
}

// Writer creates output tables in an explicit location (directory, database
// file or schema, depending on the backend).
type Writer interface {
	// CreateTable starts a new table. It fails if the table already exists.
	CreateTable(ctx context.Context, location, name string) (Table, error)
}

// Table is an output table under construction. Columns must be added before
// the first row is inserted. Nothing is visible to readers until Close
// succeeds; Abort discards everything the table created.
type Table interface {
	Name() string
	AddColumn(ctx context.Context, col Column) error
	InsertRow(ctx context.Context, values []any) error
	Close(ctx context.Context) error
	Abort(ctx context.Context) error
}

// ColumnType is the storage type of an output column.
type ColumnType int

// Supported column types.
const (
	TypeText ColumnType = iota
	TypeLong
)

func (t ColumnType) String() string {
	switch t {
	case TypeText:
		return "TEXT"
	case TypeLong:
		return "LONG"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column describes one output column. Length bounds TEXT values; zero means unbounded.
type Column struct {
	Name   string
	Type   ColumnType
	Length int
}

// Check validates v against the column type.
func (c Column) Check(v any) error {
	switch c.Type {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return eris.Errorf("column %s: expected text, got %T", c.Name, v)
		}
		if c.Length > 0 && utf8.RuneCountInString(s) > c.Length {
			return eris.Errorf("column %s: value %q exceeds length %d", c.Name, s, c.Length)
		}
	case TypeLong:
		switch v.(type) {
		case int64, int:
		default:
			return eris.Errorf("column %s: expected integer, got %T", c.Name, v)
		}
	default:
		return eris.Errorf("column %s: unsupported type %s", c.Name, c.Type)
	}
	return nil
}

// CheckRow validates a row against the column list.
func CheckRow(cols []Column, values []any) error {
	if len(values) != len(cols) {
		return eris.Errorf("row has %d values, table has %d columns", len(values), len(cols))
	}
	for i, col := range cols {
		if err := col.Check(values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Each streams the named dataset from src and calls fn for every record.
// Reading stops at the first error returned by fn or by the source.
func Each(ctx context.Context, src Source, name string, fn func(Record) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recCh, errCh := src.Stream(ctx, name)

	var fnErr error
	for rec := range recCh {
		if fnErr != nil {
			continue
		}
		if err := fn(rec); err != nil {
			fnErr = err
			cancel()
		}
	}

	for err := range errCh {
		if err != nil && fnErr == nil {
			return eris.Wrapf(err, "dataset: read %s", name)
		}
	}
	return fnErr
}
