package accessibility

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// memSource serves datasets from memory.
type memSource map[string][]dataset.Record

func (m memSource) Stream(_ context.Context, name string) (<-chan dataset.Record, <-chan error) {
	recCh := make(chan dataset.Record, len(m[name]))
	errCh := make(chan error, 1)
	if recs, ok := m[name]; ok {
		for _, rec := range recs {
			recCh <- rec
		}
	} else {
		errCh <- fmt.Errorf("dataset %s not found", name)
	}
	close(recCh)
	close(errCh)
	return recCh, errCh
}

// memWriter keeps committed tables in memory.
type memWriter struct {
	mu       sync.Mutex
	tables   map[string]*memTable
	aborted  []string
	failOn   string
	insertOK int
}

func newMemWriter() *memWriter {
	return &memWriter{tables: make(map[string]*memTable)}
}

func (w *memWriter) CreateTable(_ context.Context, location, name string) (dataset.Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := location + "/" + name
	if _, ok := w.tables[key]; ok {
		return nil, fmt.Errorf("table %s exists", key)
	}
	t := &memTable{w: w, key: key, name: name}
	if name == w.failOn {
		t.failAfter = w.insertOK
	} else {
		t.failAfter = -1
	}
	return t, nil
}

func (w *memWriter) table(location, name string) *memTable {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tables[location+"/"+name]
}

type memTable struct {
	w         *memWriter
	key       string
	name      string
	cols      []dataset.Column
	rows      [][]any
	failAfter int
}

func (t *memTable) Name() string { return t.name }

func (t *memTable) AddColumn(_ context.Context, col dataset.Column) error {
	t.cols = append(t.cols, col)
	return nil
}

func (t *memTable) InsertRow(_ context.Context, values []any) error {
	if t.failAfter >= 0 && len(t.rows) >= t.failAfter {
		return errors.New("disk full")
	}
	if err := dataset.CheckRow(t.cols, values); err != nil {
		return err
	}
	t.rows = append(t.rows, values)
	return nil
}

func (t *memTable) Close(context.Context) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.tables[t.key] = t
	return nil
}

func (t *memTable) Abort(context.Context) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.aborted = append(t.w.aborted, t.name)
	return nil
}

// memRecorder captures recorder calls.
type memRecorder struct {
	mu      sync.Mutex
	runs    map[string]string
	ended   map[string]int
	pairs   map[string]*recordedPair
	counter int
}

type recordedPair struct {
	runID, travelTime, landUse, output string
	rows                               int
	err                                error
	done                               bool
}

func newMemRecorder() *memRecorder {
	return &memRecorder{runs: map[string]string{}, ended: map[string]int{}, pairs: map[string]*recordedPair{}}
}

func (r *memRecorder) BeginRun(_ context.Context, runID, location string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = location
	return nil
}

func (r *memRecorder) BeginPair(_ context.Context, runID, travelTime, landUse, output string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	id := fmt.Sprintf("pair-%d", r.counter)
	r.pairs[id] = &recordedPair{runID: runID, travelTime: travelTime, landUse: landUse, output: output}
	return id, nil
}

func (r *memRecorder) EndPair(_ context.Context, pairID string, rows int, pairErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[pairID]
	if !ok {
		return fmt.Errorf("pair %s not found", pairID)
	}
	p.rows, p.err, p.done = rows, pairErr, true
	return nil
}

func (r *memRecorder) EndRun(_ context.Context, runID string, failed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[runID] = failed
	return nil
}

// countingProgress records progress calls.
type countingProgress struct {
	mu    sync.Mutex
	total int
	done  int
}

func (p *countingProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

func (p *countingProgress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
}

func ttRecord(scale, o, d string, mins float64) dataset.Record {
	return dataset.Record{"o" + scale: dataset.Text(o), "d" + scale: dataset.Text(d), "mins": dataset.Number(mins)}
}

func luRecord(scale, subject, id string, n float64) dataset.Record {
	return dataset.Record{scale: dataset.Text(id), "n" + subject: dataset.Number(n)}
}

// exampleTravelTimes covers A, B and C completely.
func exampleTravelTimes(scale string) []dataset.Record {
	return []dataset.Record{
		ttRecord(scale, "A", "A", 0), ttRecord(scale, "A", "B", 5), ttRecord(scale, "A", "C", 20),
		ttRecord(scale, "B", "B", 0), ttRecord(scale, "B", "A", 5), ttRecord(scale, "B", "C", 10),
		ttRecord(scale, "C", "C", 0), ttRecord(scale, "C", "A", 20), ttRecord(scale, "C", "B", 10),
	}
}

func exampleLandUse(scale, subject string) []dataset.Record {
	return []dataset.Record{
		luRecord(scale, subject, "A", 10),
		luRecord(scale, subject, "B", 20),
		luRecord(scale, subject, "C", 30),
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
