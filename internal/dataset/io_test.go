package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	records []Record
	err     error
}

func (s sliceSource) Stream(ctx context.Context, _ string) (<-chan Record, <-chan error) {
	recCh := make(chan Record)
	errCh := make(chan error, 1)
	go func() {
		defer close(recCh)
		defer close(errCh)
		for _, rec := range s.records {
			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if s.err != nil {
			errCh <- s.err
		}
	}()
	return recCh, errCh
}

func TestEach_VisitsAllRecords(t *testing.T) {
	src := sliceSource{records: []Record{
		{"id": Text("a")},
		{"id": Text("b")},
		{"id": Text("c")},
	}}

	var seen []string
	err := Each(context.Background(), src, "lu_jobs2010_taz2000", func(rec Record) error {
		seen = append(seen, rec.Get("id").String())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestEach_SourceError(t *testing.T) {
	src := sliceSource{records: []Record{{"id": Text("a")}}, err: errors.New("disk gone")}

	err := Each(context.Background(), src, "lu_jobs2010_taz2000", func(Record) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read lu_jobs2010_taz2000")
	assert.Contains(t, err.Error(), "disk gone")
}

func TestEach_CallbackErrorStopsReading(t *testing.T) {
	records := make([]Record, 100)
	for i := range records {
		records[i] = Record{"id": Number(float64(i))}
	}
	stop := errors.New("stop")

	calls := 0
	err := Each(context.Background(), sliceSource{records: records}, "x", func(Record) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, calls)
}

func TestColumn_Check(t *testing.T) {
	id := Column{Name: "taz", Type: TypeText, Length: 3}
	assert.NoError(t, id.Check("abc"))
	assert.Error(t, id.Check("abcd"))
	assert.Error(t, id.Check(int64(1)))

	count := Column{Name: "t5", Type: TypeLong}
	assert.NoError(t, count.Check(int64(10)))
	assert.Error(t, count.Check("10"))
}

func TestCheckRow(t *testing.T) {
	cols := []Column{{Name: "taz", Type: TypeText, Length: 15}, {Name: "t5", Type: TypeLong}}
	assert.NoError(t, CheckRow(cols, []any{"1", int64(3)}))
	assert.Error(t, CheckRow(cols, []any{"1"}))
}

func TestColumnType_String(t *testing.T) {
	assert.Equal(t, "TEXT", TypeText.String())
	assert.Equal(t, "LONG", TypeLong.String())
}
