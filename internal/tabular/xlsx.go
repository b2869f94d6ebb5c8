package tabular

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// XLSXSource reads datasets from the sheets of one workbook. The first row
// of each sheet is the header.
type XLSXSource struct {
	Path string
}

// Stream implements dataset.Source. name selects the sheet.
func (s *XLSXSource) Stream(ctx context.Context, name string) (<-chan dataset.Record, <-chan error) {
	return stream(ctx, name, func(emit func(dataset.Record) error) error {
		f, err := xlsx.OpenFile(s.Path)
		if err != nil {
			return eris.Wrapf(err, "xlsx: open %s", s.Path)
		}
		sheet, ok := f.Sheet[name]
		if !ok {
			return eris.Errorf("xlsx: sheet %q not found in %s", name, s.Path)
		}
		zap.L().Debug("xlsx: reading dataset", zap.String("dataset", name), zap.String("path", s.Path))

		var header []string
		for _, row := range sheet.Rows {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
			}
			cells := rowToStrings(row)
			if blank(cells) {
				continue
			}
			if header == nil {
				if header, err = cleanHeader(cells); err != nil {
					return eris.Wrapf(err, "xlsx: sheet %s", name)
				}
				continue
			}
			if err := emit(textRecord(header, cells)); err != nil {
				return err
			}
		}
		if header == nil {
			return eris.Errorf("xlsx: sheet %s has no header row", name)
		}
		return nil
	})
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

// XLSXWriter writes each table as a sheet of the workbook at location. Tables
// sharing a workbook are saved one at a time.
type XLSXWriter struct {
	mu      sync.Mutex
	pending map[string]bool
}

// CreateTable implements dataset.Writer.
func (w *XLSXWriter) CreateTable(_ context.Context, location, name string) (dataset.Table, error) {
	if utf8.RuneCountInString(name) > maxSheetName {
		return nil, eris.Errorf("xlsx: table name %s is longer than %d characters", name, maxSheetName)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	key := location + "\x00" + name
	if w.pending[key] {
		return nil, eris.Errorf("xlsx: table %s is already being written to %s", name, location)
	}
	f, err := openWorkbook(location)
	if err != nil {
		return nil, err
	}
	if _, ok := f.Sheet[name]; ok {
		return nil, eris.Errorf("xlsx: table %s already exists in %s", name, location)
	}
	if w.pending == nil {
		w.pending = make(map[string]bool)
	}
	w.pending[key] = true
	return &xlsxTable{tableBuffer: tableBuffer{name: name}, w: w, key: key, path: location}, nil
}

func (w *XLSXWriter) release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, key)
}

// openWorkbook opens path, or returns an empty workbook if it does not exist.
func openWorkbook(path string) (*xlsx.File, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return xlsx.NewFile(), nil
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	return f, nil
}

type xlsxTable struct {
	tableBuffer
	w    *XLSXWriter
	key  string
	path string
}

func (t *xlsxTable) Close(context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	defer t.w.release(t.key)

	t.w.mu.Lock()
	defer t.w.mu.Unlock()

	f, err := openWorkbook(t.path)
	if err != nil {
		return err
	}
	sheet, err := f.AddSheet(t.name)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %s", t.name)
	}

	header := sheet.AddRow()
	for _, col := range t.cols {
		header.AddCell().SetString(col.Name)
	}
	for _, values := range t.rows {
		row := sheet.AddRow()
		for _, v := range values {
			cell := row.AddCell()
			switch x := v.(type) {
			case int64:
				cell.SetInt64(x)
			case int:
				cell.SetInt(x)
			default:
				cell.SetString(formatCell(x))
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create directory for %s", t.path)
	}
	return eris.Wrapf(f.Save(t.path), "xlsx: save %s", t.path)
}

// Abort releases the sheet name. Nothing reaches the workbook before Close.
func (t *xlsxTable) Abort(context.Context) error {
	if !t.done {
		t.w.release(t.key)
	}
	t.done = true
	return nil
}
