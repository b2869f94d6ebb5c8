package tabular

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coa-cli/internal/dataset"
)

func newTestSQLiteWriter(t *testing.T) *SQLiteWriter {
	t.Helper()
	w := &SQLiteWriter{}
	t.Cleanup(func() { w.Close() }) //nolint:errcheck
	return w
}

func TestSQLiteWriter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "results.db")
	w := newTestSQLiteWriter(t)

	table, err := w.CreateTable(ctx, path, "acc_jobs2010_auto2015_taz2010")
	require.NoError(t, err)
	fill(t, table)
	require.NoError(t, table.Close(ctx))

	src, err := NewSQLiteSource(path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	recs, err := collect(t, src, "acc_jobs2010_auto2015_taz2010")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, dataset.Text("A"), recs[0]["taz"])
	assert.Equal(t, dataset.Number(30), recs[0]["t5"])
	assert.Equal(t, dataset.Number(60), recs[1]["t10"])
}

func TestSQLiteWriter_ExistingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	w := newTestSQLiteWriter(t)

	table, err := w.CreateTable(ctx, path, "acc")
	require.NoError(t, err)

	_, err = w.CreateTable(ctx, path, "ACC")
	assert.ErrorContains(t, err, "already exists")

	fill(t, table)
	require.NoError(t, table.Close(ctx))

	_, err = w.CreateTable(ctx, path, "acc")
	assert.ErrorContains(t, err, "already exists")
}

func TestSQLiteWriter_Abort(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	w := newTestSQLiteWriter(t)

	table, err := w.CreateTable(ctx, path, "acc")
	require.NoError(t, err)
	fill(t, table)
	require.NoError(t, table.Abort(ctx))

	src, err := NewSQLiteSource(path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck
	_, err = collect(t, src, "acc")
	assert.Error(t, err)

	table, err = w.CreateTable(ctx, path, "acc")
	require.NoError(t, err)
	require.NoError(t, table.Abort(ctx))
}

func TestSQLiteSource_Values(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inputs.db")
	db, err := openSQLite(path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE tt_auto2015_taz2010 (otaz INTEGER, dtaz TEXT, mins REAL);
		INSERT INTO tt_auto2015_taz2010 VALUES (1, 'B', 4.5), (2, NULL, NULL);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := NewSQLiteSource(path)
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	recs, err := collect(t, src, "tt_auto2015_taz2010")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0]["otaz"].String())
	assert.Equal(t, dataset.Text("B"), recs[0]["dtaz"])
	assert.Equal(t, dataset.Number(4.5), recs[0]["mins"])
	assert.True(t, recs[1]["dtaz"].IsNull())
	assert.True(t, recs[1]["mins"].IsNull())
}

func TestNewSQLiteSource_Missing(t *testing.T) {
	_, err := NewSQLiteSource(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"acc"`, quoteIdent("acc"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
