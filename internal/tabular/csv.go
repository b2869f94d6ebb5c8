package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

const csvExt = ".csv"

// CSVSource reads <Dir>/<name>.csv. The first row is the header.
type CSVSource struct {
	Dir       string
	Delimiter rune // default ','
	Comment   rune // comment character (0 = none)
}

// Stream implements dataset.Source.
func (s *CSVSource) Stream(ctx context.Context, name string) (<-chan dataset.Record, <-chan error) {
	path := filepath.Join(s.Dir, name+csvExt)
	return stream(ctx, name, func(emit func(dataset.Record) error) error {
		f, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "csv: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		zap.L().Debug("csv: reading dataset", zap.String("dataset", name), zap.String("path", path))
		return s.read(ctx, f, emit)
	})
}

func (s *CSVSource) read(ctx context.Context, r io.Reader, emit func(dataset.Record) error) error {
	reader := csv.NewReader(r)
	if s.Delimiter != 0 {
		reader.Comma = s.Delimiter
	}
	if s.Comment != 0 {
		reader.Comment = s.Comment
	}
	reader.FieldsPerRecord = -1 // allow variable fields

	var header []string
	for {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "csv: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			if header == nil {
				return eris.New("csv: missing header row")
			}
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "csv: read row")
		}

		if header == nil {
			if header, err = cleanHeader(row); err != nil {
				return eris.Wrap(err, "csv")
			}
			continue
		}
		if err := emit(textRecord(header, row)); err != nil {
			return err
		}
	}
}

// CSVWriter writes each table to <location>/<name>.csv. Rows go to a
// temporary file in location that is renamed into place on Close, so an
// unfinished table never appears under its final name.
type CSVWriter struct {
	Delimiter rune // default ','

	mu      sync.Mutex
	pending map[string]bool
}

// CreateTable implements dataset.Writer.
func (w *CSVWriter) CreateTable(_ context.Context, location, name string) (dataset.Table, error) {
	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, eris.Wrapf(err, "csv: create directory %s", location)
	}
	path := filepath.Join(location, name+csvExt)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending[path] {
		return nil, eris.Errorf("csv: table %s is already being written to %s", name, location)
	}
	if err := checkAbsent(path); err != nil {
		return nil, eris.Wrapf(err, "csv: table %s", name)
	}
	f, err := os.CreateTemp(location, "."+name+"-*.tmp")
	if err != nil {
		return nil, eris.Wrapf(err, "csv: create temp file for %s", name)
	}
	if w.pending == nil {
		w.pending = make(map[string]bool)
	}
	w.pending[path] = true
	return &csvTable{tableBuffer: tableBuffer{name: name}, w: w, path: path, f: f, delimiter: w.Delimiter}, nil
}

func (w *CSVWriter) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, path)
}

func checkAbsent(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return eris.Errorf("already exists at %s", path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "stat %s", path)
	}
	return nil
}

type csvTable struct {
	tableBuffer
	w         *CSVWriter
	path      string
	f         *os.File
	delimiter rune
	released  bool
}

func (t *csvTable) Close(context.Context) error {
	if err := t.finish(); err != nil {
		return err
	}
	if err := t.write(); err != nil {
		_ = t.discard()
		return err
	}
	defer t.unreserve()

	if err := checkAbsent(t.path); err != nil {
		_ = os.Remove(t.f.Name())
		return eris.Wrapf(err, "csv: table %s", t.name)
	}
	if err := os.Rename(t.f.Name(), t.path); err != nil {
		_ = os.Remove(t.f.Name())
		return eris.Wrapf(err, "csv: publish %s", t.path)
	}
	return nil
}

func (t *csvTable) write() error {
	cw := csv.NewWriter(t.f)
	if t.delimiter != 0 {
		cw.Comma = t.delimiter
	}
	if err := cw.Write(t.columnNames()); err != nil {
		return eris.Wrapf(err, "csv: write header of %s", t.path)
	}
	record := make([]string, len(t.cols))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "csv: write row of %s", t.path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrapf(err, "csv: flush %s", t.path)
	}
	return eris.Wrapf(t.f.Close(), "csv: close %s", t.f.Name())
}

// discard drops the temporary file and frees the table name.
func (t *csvTable) discard() error {
	defer t.unreserve()
	_ = t.f.Close()
	if err := os.Remove(t.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "csv: remove %s", t.f.Name())
	}
	return nil
}

func (t *csvTable) unreserve() {
	if !t.released {
		t.released = true
		t.w.release(t.path)
	}
}

func (t *csvTable) Abort(context.Context) error {
	if t.released {
		return nil
	}
	t.done = true
	return t.discard()
}
