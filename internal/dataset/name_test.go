package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Identifier
	}{
		{"lu_jobs2010_taz2000", Identifier{Kind: KindLandUse, Subject: "jobs", SubjectYear: "2010", Scale: "taz", ScaleYear: "2000"}},
		{"tt_auto2015_taz2010", Identifier{Kind: KindTravelTime, Subject: "auto", SubjectYear: "2015", Scale: "taz", ScaleYear: "2010"}},
		{"lu_pop2020_blockgroup2020", Identifier{Kind: KindLandUse, Subject: "pop", SubjectYear: "2020", Scale: "blockgroup", ScaleYear: "2020"}},
		{"x_a1234_b5678", Identifier{Kind: "x", Subject: "a", SubjectYear: "1234", Scale: "b", ScaleYear: "5678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.String())
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []string{
		"",
		"lu_jobs2010",
		"lu_jobs2010_taz2000_extra",
		"lu_job_taz2000",
		"lu_jobs2010_2000",
		"lu_2010_taz2000",
		"lujobs2010taz2000",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(name)
			require.Error(t, err)
			var malformed *MalformedNameError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, name, malformed.Name)
			assert.Contains(t, err.Error(), "malformed name")
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	a, err := Parse("tt_transit2018_parcel2016")
	require.NoError(t, err)
	b, err := Parse("tt_transit2018_parcel2016")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSameScale(t *testing.T) {
	tt, _ := Parse("tt_auto2015_taz2010")
	same, _ := Parse("lu_jobs2010_taz2010")
	otherYear, _ := Parse("lu_jobs2010_taz2000")
	otherScale, _ := Parse("lu_jobs2010_block2010")

	assert.True(t, tt.SameScale(same))
	assert.False(t, tt.SameScale(otherYear))
	assert.False(t, tt.SameScale(otherScale))
}

func TestComposeOutputName(t *testing.T) {
	name, err := ComposeOutputName("auto", "2015", "jobs", "2010", "taz", "2010")
	require.NoError(t, err)
	assert.Equal(t, "acc_jobs2010_auto2015_taz2010", name)
}

func TestComposeOutputName_EmptyPart(t *testing.T) {
	_, err := ComposeOutputName("auto", "2015", "", "2010", "taz", "2010")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination is empty")
}

func TestOutputName_UsesTravelTimeScale(t *testing.T) {
	tt, err := Parse("tt_auto2015_taz2010")
	require.NoError(t, err)
	lu, err := Parse("lu_jobs2010_taz2000")
	require.NoError(t, err)

	name, err := OutputName(tt, lu)
	require.NoError(t, err)
	assert.Equal(t, "acc_jobs2010_auto2015_taz2010", name)

	again, err := ComposeOutputName(tt.Subject, tt.SubjectYear, lu.Subject, lu.SubjectYear, tt.Scale, tt.ScaleYear)
	require.NoError(t, err)
	assert.Equal(t, name, again)
}
