package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

// Value variants.
const (
	KindNull ValueKind = iota
	KindText
	KindNumber
)

// Value is a single field read from a tabular dataset.
type Value struct {
	kind ValueKind
	text string
	num  float64
}

// Null returns the null value.
func Null() Value { return Value{} }

// Text wraps a string value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// ValueOf converts a driver-level value (database/sql, pgx, DBF text) into a Value.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	case int:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case float32:
		return Number(float64(x))
	case float64:
		return Number(x)
	case bool:
		if x {
			return Number(1)
		}
		return Number(0)
	case time.Time:
		return Text(x.Format(time.RFC3339))
	default:
		return Text(fmt.Sprint(x))
	}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders the value as an identifier. Whole numbers render without a
// fractional part so that 7.0 from a typed store matches "7" from a text file.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float coerces the value to a number. Text is parsed after trimming spaces.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, eris.Wrapf(err, "dataset: parse %q as number", v.text)
		}
		return f, nil
	default:
		return 0, eris.New("dataset: null value is not a number")
	}
}

// InvalidValueError reports a field value that cannot be used.
type InvalidValueError struct {
	Dataset string
	Field   string
	Value   string
	Reason  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("dataset %s: field %s: invalid value %q: %s", e.Dataset, e.Field, e.Value, e.Reason)
}

// Record is one row of a dataset keyed by field name.
type Record map[string]Value

// NewRecord zips field names with raw values. Missing trailing values are null.
func NewRecord(fields []string, values []any) Record {
	rec := make(Record, len(fields))
	for i, f := range fields {
		if i < len(values) {
			rec[f] = ValueOf(values[i])
		} else {
			rec[f] = Null()
		}
	}
	return rec
}

// Get returns the named field, matching case-insensitively when no exact
// match exists. Absent fields are null.
func (r Record) Get(field string) Value {
	if v, ok := r[field]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(k, field) {
			return v
		}
	}
	return Null()
}

// Has reports whether the record carries the named field.
func (r Record) Has(field string) bool {
	if _, ok := r[field]; ok {
		return true
	}
	for k := range r {
		if strings.EqualFold(k, field) {
			return true
		}
	}
	return false
}

// finite reports whether f is a usable measurement.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FiniteFloat coerces v to a finite number.
func (v Value) FiniteFloat() (float64, error) {
	f, err := v.Float()
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, eris.Errorf("dataset: %v is not a finite number", f)
	}
	return f, nil
}
