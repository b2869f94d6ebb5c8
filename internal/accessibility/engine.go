// Package accessibility computes cumulative-opportunities accessibility:
// for every origin, the opportunities reachable within each travel-time
// threshold.
package accessibility

import (
	"cmp"
	"context"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// TimeLookup answers origin-destination travel times.
type TimeLookup interface {
	TimeBetween(origin, destination string) (float64, error)
}

// Opportunities answers opportunity counts per feature.
type Opportunities interface {
	SortedIDs() []string
	OpportunitiesAt(id string) (int64, error)
}

// Row is the accessibility of one origin. Counts[i] belongs to thresholds[i].
type Row struct {
	ID     string
	Counts []int64
}

// Values returns the row in output column order.
func (r Row) Values() []any {
	values := make([]any, 0, len(r.Counts)+1)
	values = append(values, r.ID)
	for _, c := range r.Counts {
		values = append(values, c)
	}
	return values
}

// Columns returns the output schema: the scale id column followed by one
// LONG column per threshold.
func Columns(scale string, thresholds []int, idLength int) []dataset.Column {
	cols := make([]dataset.Column, 0, len(thresholds)+1)
	cols = append(cols, dataset.Column{Name: scale, Type: dataset.TypeText, Length: idLength})
	for _, t := range thresholds {
		cols = append(cols, dataset.Column{Name: ColumnName(t), Type: dataset.TypeLong})
	}
	return cols
}

type reach struct {
	mins          float64
	opportunities int64
}

// Compute returns one row per land-use feature, in SortedIDs order. A
// destination counts toward a threshold when its travel time is at most the
// threshold. Every origin-destination pair among the land-use features must
// have a travel time. ctx is checked between origins.
func Compute(ctx context.Context, tt TimeLookup, lu Opportunities, thresholds []int) ([]Row, error) {
	if err := ValidateThresholds(thresholds); err != nil {
		return nil, err
	}

	ids := lu.SortedIDs()
	opportunities := make([]int64, len(ids))
	for i, id := range ids {
		n, err := lu.OpportunitiesAt(id)
		if err != nil {
			return nil, err
		}
		opportunities[i] = n
	}

	rows := make([]Row, len(ids))
	dests := make([]reach, len(ids))
	for i, origin := range ids {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "accessibility: interrupted at origin %d of %d", i, len(ids))
		}

		for j, dest := range ids {
			mins, err := tt.TimeBetween(origin, dest)
			if err != nil {
				return nil, err
			}
			dests[j] = reach{mins: mins, opportunities: opportunities[j]}
		}
		slices.SortFunc(dests, func(a, b reach) int { return cmp.Compare(a.mins, b.mins) })

		// Thresholds ascend, so one pass over the sorted destinations
		// accumulates every column.
		counts := make([]int64, len(thresholds))
		var sum int64
		next := 0
		for k, t := range thresholds {
			limit := float64(t)
			for next < len(dests) && dests[next].mins <= limit {
				sum += dests[next].opportunities
				next++
			}
			counts[k] = sum
		}
		rows[i] = Row{ID: origin, Counts: counts}
	}
	return rows, nil
}
