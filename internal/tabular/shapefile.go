package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coa-cli/internal/dataset"
)

// ShapefileSource reads the attribute table of <Dir>/<name>.shp. Geometry is
// ignored.
type ShapefileSource struct {
	Dir string
}

// Stream implements dataset.Source.
func (s *ShapefileSource) Stream(ctx context.Context, name string) (<-chan dataset.Record, <-chan error) {
	path := filepath.Join(s.Dir, name+".shp")
	return stream(ctx, name, func(emit func(dataset.Record) error) error {
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "shapefile: open %s", path)
		}
		reader, err := shp.Open(path)
		if err != nil {
			return eris.Wrapf(err, "shapefile: open %s", path)
		}
		defer func() { _ = reader.Close() }()

		fields := reader.Fields()
		if len(fields) == 0 {
			return eris.Errorf("shapefile: %s has no attribute table", path)
		}
		names := make([]string, len(fields))
		numeric := make([]bool, len(fields))
		for i, f := range fields {
			names[i] = strings.TrimRight(f.String(), "\x00")
			numeric[i] = f.Fieldtype == 'N' || f.Fieldtype == 'F'
		}

		zap.L().Debug("shapefile: reading dataset",
			zap.String("dataset", name),
			zap.String("path", path),
			zap.Strings("fields", names),
		)

		for reader.Next() {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "shapefile: context cancelled")
			}
			rec := make(dataset.Record, len(fields))
			for i := range fields {
				rec[names[i]] = attributeValue(reader.Attribute(i), numeric[i])
			}
			if err := emit(rec); err != nil {
				return err
			}
		}
		return eris.Wrapf(reader.Err(), "shapefile: read %s", path)
	})
}

// attributeValue converts a DBF attribute. Numeric fields that do not parse
// are kept as text so the consumer reports them.
func attributeValue(raw string, numeric bool) dataset.Value {
	val := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if val == "" {
		return dataset.Null()
	}
	if numeric {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return dataset.Number(f)
		}
	}
	return dataset.Text(val)
}
