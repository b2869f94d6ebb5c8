//go:build !integration

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coa-cli/internal/config"
	"github.com/sells-group/coa-cli/internal/store"
	"github.com/sells-group/coa-cli/internal/tabular"
)

func TestInitSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.SourceConfig
		want any
	}{
		{"csv", config.SourceConfig{Format: "csv", Path: dir, Delimiter: ";"}, &tabular.CSVSource{}},
		{"xlsx", config.SourceConfig{Format: "xlsx", Path: filepath.Join(dir, "in.xlsx")}, &tabular.XLSXSource{}},
		{"shp", config.SourceConfig{Format: "shp", Path: dir}, &tabular.ShapefileSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cl closers
			src, err := initSource(ctx, tt.cfg, &cl)
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
			assert.Empty(t, cl)
		})
	}

	var cl closers
	src, err := initSource(ctx, config.SourceConfig{Format: "csv", Path: dir, Delimiter: "|"}, &cl)
	require.NoError(t, err)
	assert.Equal(t, '|', src.(*tabular.CSVSource).Delimiter)
}

func TestInitSource_Errors(t *testing.T) {
	ctx := context.Background()

	var cl closers
	_, err := initSource(ctx, config.SourceConfig{Format: "gdb"}, &cl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported source format")

	_, err = initSource(ctx, config.SourceConfig{Format: "sqlite", Path: filepath.Join(t.TempDir(), "missing.db")}, &cl)
	require.Error(t, err)
	assert.Empty(t, cl)

	_, err = initSource(ctx, config.SourceConfig{Format: "csv", Delimiter: "ab"}, &cl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single character")
}

func TestInitWriter(t *testing.T) {
	ctx := context.Background()

	var cl closers
	w, err := initWriter(ctx, config.OutputConfig{Format: "csv"}, &cl)
	require.NoError(t, err)
	assert.IsType(t, &tabular.CSVWriter{}, w)

	w, err = initWriter(ctx, config.OutputConfig{Format: "xlsx"}, &cl)
	require.NoError(t, err)
	assert.IsType(t, &tabular.XLSXWriter{}, w)

	w, err = initWriter(ctx, config.OutputConfig{Format: "sqlite"}, &cl)
	require.NoError(t, err)
	assert.IsType(t, &tabular.SQLiteWriter{}, w)
	assert.Len(t, cl, 1)
	require.NoError(t, cl.Close())

	_, err = initWriter(ctx, config.OutputConfig{Format: "shp"}, &cl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()

	st, err := initStore(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Nil(t, recorder(st))

	st, err = initStore(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
	assert.NotNil(t, recorder(st))

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = initStore(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList("a;b ; c"))
	assert.Equal(t, []string{"a"}, splitList(";a;;"))
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" ; "))
}

func TestDelimiter(t *testing.T) {
	r, err := delimiter("")
	require.NoError(t, err)
	assert.Equal(t, rune(0), r)

	r, err = delimiter("\t")
	require.NoError(t, err)
	assert.Equal(t, '\t', r)

	_, err = delimiter(",,")
	require.Error(t, err)
}

func TestClosers_ReverseOrderFirstError(t *testing.T) {
	var order []int
	var cl closers
	cl.add(func() error { order = append(order, 1); return errors.New("first") })
	cl.add(func() error { order = append(order, 2); return errors.New("second") })
	cl.add(func() error { order = append(order, 3); return nil })

	err := cl.Close()
	require.Error(t, err)
	assert.Equal(t, "second", err.Error())
	assert.Equal(t, []int{3, 2, 1}, order)
}
