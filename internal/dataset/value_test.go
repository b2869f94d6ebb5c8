package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		in       any
		kind     ValueKind
		rendered string
	}{
		{nil, KindNull, ""},
		{"A1", KindText, "A1"},
		{[]byte("B2"), KindText, "B2"},
		{int64(7), KindNumber, "7"},
		{int32(12), KindNumber, "12"},
		{7.0, KindNumber, "7"},
		{2.5, KindNumber, "2.5"},
		{float32(1.5), KindNumber, "1.5"},
		{true, KindNumber, "1"},
	}
	for _, tt := range tests {
		v := ValueOf(tt.in)
		assert.Equal(t, tt.kind, v.kind, "kind for %#v", tt.in)
		assert.Equal(t, tt.rendered, v.String(), "rendering for %#v", tt.in)
	}
}

func TestValue_Float(t *testing.T) {
	f, err := Number(3.25).Float()
	require.NoError(t, err)
	assert.InDelta(t, 3.25, f, 1e-9)

	f, err = Text(" 12.5 ").Float()
	require.NoError(t, err)
	assert.InDelta(t, 12.5, f, 1e-9)

	_, err = Text("twelve").Float()
	assert.Error(t, err)

	_, err = Null().Float()
	assert.Error(t, err)
}

func TestValue_FiniteFloat(t *testing.T) {
	_, err := Number(math.NaN()).FiniteFloat()
	assert.Error(t, err)

	_, err = Text("Inf").FiniteFloat()
	assert.Error(t, err)

	f, err := Text("4").FiniteFloat()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, f, 1e-9)
}

func TestRecord_Get(t *testing.T) {
	rec := NewRecord([]string{"OTAZ", "dtaz", "mins"}, []any{"1", int64(2)})

	assert.Equal(t, "1", rec.Get("otaz").String())
	assert.Equal(t, "2", rec.Get("dtaz").String())
	assert.True(t, rec.Get("mins").IsNull(), "missing trailing value is null")
	assert.True(t, rec.Get("absent").IsNull())
	assert.True(t, rec.Has("Otaz"))
	assert.False(t, rec.Has("absent"))
}

func TestInvalidValueError(t *testing.T) {
	err := &InvalidValueError{Dataset: "lu_jobs2010_taz2000", Field: "njobs", Value: "-3", Reason: "negative count"}
	assert.Equal(t, `dataset lu_jobs2010_taz2000: field njobs: invalid value "-3": negative count`, err.Error())
}
