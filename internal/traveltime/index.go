// Package traveltime loads origin-destination travel-time datasets into an
// in-memory lookup.
package traveltime

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// TimeField is the travel-time column in minutes.
const TimeField = "mins"

// Fields returns the origin and destination id columns for a scale, e.g. "otaz" and "dtaz".
func Fields(scale string) (origin, destination string) {
	return "o" + scale, "d" + scale
}

type pairKey struct {
	origin      string
	destination string
}

// UnknownPairError reports a lookup for a pair the dataset does not cover.
type UnknownPairError struct {
	Dataset     string
	Origin      string
	Destination string
}

func (e *UnknownPairError) Error() string {
	return fmt.Sprintf("traveltime %s: no travel time from %q to %q", e.Dataset, e.Origin, e.Destination)
}

// DuplicatePair records a repeated origin-destination pair. The first value is kept.
type DuplicatePair struct {
	Origin      string
	Destination string
	Kept        float64
	Ignored     float64
}

// Index maps (origin, destination) to minutes. It is immutable once built.
type Index struct {
	name       string
	id         dataset.Identifier
	times      map[pairKey]float64
	duplicates []DuplicatePair
}

// Name returns the dataset name the index was built from.
func (ix *Index) Name() string { return ix.name }

// Identifier returns the parsed dataset name.
func (ix *Index) Identifier() dataset.Identifier { return ix.id }

// Len returns the number of distinct pairs.
func (ix *Index) Len() int { return len(ix.times) }

// Duplicates returns the pairs that appeared more than once, in input order.
func (ix *Index) Duplicates() []DuplicatePair { return ix.duplicates }

// TimeBetween returns the travel time from origin to destination.
func (ix *Index) TimeBetween(origin, destination string) (float64, error) {
	mins, ok := ix.times[pairKey{origin: origin, destination: destination}]
	if !ok {
		return 0, &UnknownPairError{Dataset: ix.name, Origin: origin, Destination: destination}
	}
	return mins, nil
}

// Builder accumulates records into an Index.
type Builder struct {
	ix          *Index
	originField string
	destField   string
	rows        int
	log         *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger that receives duplicate reports.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// NewBuilder starts an index for the named dataset. The name must follow the
// dataset naming convention; the scale selects the id fields.
func NewBuilder(name string, opts ...Option) (*Builder, error) {
	id, err := dataset.Parse(name)
	if err != nil {
		return nil, err
	}
	originField, destField := Fields(id.Scale)
	b := &Builder{
		ix: &Index{
			name:  name,
			id:    id,
			times: make(map[pairKey]float64),
		},
		originField: originField,
		destField:   destField,
		log:         zap.L(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With(zap.String("component", "traveltime"), zap.String("dataset", name))
	return b, nil
}

// Add inserts one record. A repeated pair is reported and skipped.
func (b *Builder) Add(rec dataset.Record) error {
	b.rows++

	origin, err := b.id(rec, b.originField)
	if err != nil {
		return err
	}
	dest, err := b.id(rec, b.destField)
	if err != nil {
		return err
	}

	raw := rec.Get(TimeField)
	if raw.IsNull() {
		return &dataset.InvalidValueError{Dataset: b.ix.name, Field: TimeField, Reason: "travel time is missing"}
	}
	mins, err := raw.FiniteFloat()
	if err != nil {
		return &dataset.InvalidValueError{Dataset: b.ix.name, Field: TimeField, Value: raw.String(), Reason: err.Error()}
	}

	key := pairKey{origin: origin, destination: dest}
	if kept, dup := b.ix.times[key]; dup {
		b.ix.duplicates = append(b.ix.duplicates, DuplicatePair{Origin: origin, Destination: dest, Kept: kept, Ignored: mins})
		b.log.Error("duplicate origin-destination pair",
			zap.String("origin", origin),
			zap.String("destination", dest),
			zap.Float64("kept", kept),
			zap.Float64("ignored", mins),
		)
		return nil
	}
	b.ix.times[key] = mins
	return nil
}

func (b *Builder) id(rec dataset.Record, field string) (string, error) {
	v := rec.Get(field)
	if v.IsNull() {
		if !rec.Has(field) {
			return "", &dataset.InvalidValueError{Dataset: b.ix.name, Field: field, Reason: "field not found"}
		}
		return "", &dataset.InvalidValueError{Dataset: b.ix.name, Field: field, Reason: "id is null"}
	}
	return v.String(), nil
}

// Index finishes the build. The builder must not be used afterwards.
func (b *Builder) Index() *Index {
	b.log.Info("loaded travel times",
		zap.Int("rows", b.rows),
		zap.Int("pairs", b.ix.Len()),
		zap.Int("duplicates", len(b.ix.duplicates)),
	)
	return b.ix
}

// Load reads the named travel-time dataset from src.
func Load(ctx context.Context, src dataset.Source, name string, opts ...Option) (*Index, error) {
	b, err := NewBuilder(name, opts...)
	if err != nil {
		return nil, err
	}
	b.log.Info("loading travel times")
	if err := dataset.Each(ctx, src, name, b.Add); err != nil {
		return nil, eris.Wrapf(err, "traveltime: load %s", name)
	}
	return b.Index(), nil
}
