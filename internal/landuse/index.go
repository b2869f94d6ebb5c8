// Package landuse loads land-use datasets into an opportunity count per feature.
package landuse

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// Fields returns the feature id column and the opportunity count column,
// e.g. "taz" and "njobs".
func Fields(id dataset.Identifier) (idField, countField string) {
	return id.Scale, "n" + id.Subject
}

// UnknownFeatureError reports a lookup for a feature the dataset does not contain.
type UnknownFeatureError struct {
	Dataset string
	ID      string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("landuse %s: unknown feature %q", e.Dataset, e.ID)
}

// DuplicateFeature records a repeated feature id. The first count is kept.
type DuplicateFeature struct {
	ID      string
	Kept    int64
	Ignored int64
}

// Index maps feature ids to opportunity counts. It is immutable once built.
type Index struct {
	name       string
	id         dataset.Identifier
	counts     map[string]int64
	total      int64
	sorted     []string
	duplicates []DuplicateFeature
}

// Name returns the dataset name the index was built from.
func (ix *Index) Name() string { return ix.name }

// Identifier returns the parsed dataset name.
func (ix *Index) Identifier() dataset.Identifier { return ix.id }

// Len returns the number of distinct features.
func (ix *Index) Len() int { return len(ix.counts) }

// Duplicates returns the ids that appeared more than once, in input order.
func (ix *Index) Duplicates() []DuplicateFeature { return ix.duplicates }

// OpportunitiesAt returns the opportunity count for a feature.
func (ix *Index) OpportunitiesAt(id string) (int64, error) {
	n, ok := ix.counts[id]
	if !ok {
		return 0, &UnknownFeatureError{Dataset: ix.name, ID: id}
	}
	return n, nil
}

// SortedIDs returns every feature id in ascending byte order. The returned
// slice is shared and must not be modified.
func (ix *Index) SortedIDs() []string { return ix.sorted }

// Total returns the sum of all opportunity counts. It always fits in an
// int64, so any partial sum over distinct features does too.
func (ix *Index) Total() int64 { return ix.total }

// Builder accumulates records into an Index.
type Builder struct {
	ix         *Index
	idField    string
	countField string
	rows       int
	log        *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger that receives duplicate reports.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder starts an index for the named dataset.
func NewBuilder(name string, opts ...Option) (*Builder, error) {
	id, err := dataset.Parse(name)
	if err != nil {
		return nil, err
	}
	idField, countField := Fields(id)
	b := &Builder{
		ix: &Index{
			name:   name,
			id:     id,
			counts: make(map[string]int64),
		},
		idField:    idField,
		countField: countField,
		log:        zap.L(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With(zap.String("component", "landuse"), zap.String("dataset", name))
	return b, nil
}

// Add inserts one record. A null or missing count is zero; a repeated id is
// reported and skipped.
func (b *Builder) Add(rec dataset.Record) error {
	b.rows++

	v := rec.Get(b.idField)
	if v.IsNull() {
		reason := "id is null"
		if !rec.Has(b.idField) {
			reason = "field not found"
		}
		return &dataset.InvalidValueError{Dataset: b.ix.name, Field: b.idField, Reason: reason}
	}
	id := v.String()

	count, err := b.count(rec.Get(b.countField))
	if err != nil {
		return err
	}

	if kept, dup := b.ix.counts[id]; dup {
		b.ix.duplicates = append(b.ix.duplicates, DuplicateFeature{ID: id, Kept: kept, Ignored: count})
		b.log.Error("duplicate feature id",
			zap.String("id", id),
			zap.Int64("kept", kept),
			zap.Int64("ignored", count),
		)
		return nil
	}
	if count > math.MaxInt64-b.ix.total {
		return &dataset.InvalidValueError{Dataset: b.ix.name, Field: b.countField, Value: rec.Get(b.countField).String(), Reason: "total opportunities out of range"}
	}
	b.ix.counts[id] = count
	b.ix.total += count
	return nil
}

// count coerces an opportunity value. Fractional counts round to the nearest
// whole opportunity.
func (b *Builder) count(v dataset.Value) (int64, error) {
	if v.IsNull() {
		return 0, nil
	}
	f, err := v.FiniteFloat()
	if err != nil {
		return 0, &dataset.InvalidValueError{Dataset: b.ix.name, Field: b.countField, Value: v.String(), Reason: err.Error()}
	}
	if f < 0 {
		return 0, &dataset.InvalidValueError{Dataset: b.ix.name, Field: b.countField, Value: v.String(), Reason: "negative count"}
	}
	if f > math.MaxInt64/2 {
		return 0, &dataset.InvalidValueError{Dataset: b.ix.name, Field: b.countField, Value: v.String(), Reason: "count out of range"}
	}
	return int64(math.Round(f)), nil
}

// Index finishes the build and fixes the id order. The builder must not be
// used afterwards.
func (b *Builder) Index() *Index {
	sorted := make([]string, 0, len(b.ix.counts))
	for id := range b.ix.counts {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	b.ix.sorted = sorted

	b.log.Info("loaded land use",
		zap.Int("rows", b.rows),
		zap.Int("features", b.ix.Len()),
		zap.Int64("opportunities", b.ix.Total()),
		zap.Int("duplicates", len(b.ix.duplicates)),
	)
	return b.ix
}

// Load reads the named land-use dataset from src.
func Load(ctx context.Context, src dataset.Source, name string, opts ...Option) (*Index, error) {
	b, err := NewBuilder(name, opts...)
	if err != nil {
		return nil, err
	}
	b.log.Info("loading land use")
	if err := dataset.Each(ctx, src, name, b.Add); err != nil {
		return nil, eris.Wrapf(err, "landuse: load %s", name)
	}
	return b.Index(), nil
}
