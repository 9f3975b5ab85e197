package records

import (
	"fmt"
	"time"
)

// Record is one row of a named table: column names mapped to scalar values,
// kept in insertion order. The zero value is an empty record ready to use.
type Record struct {
	cols []string
	vals map[string]any
}

// NewRecord builds a record from alternating column/value pairs.
// It panics on an odd argument count or a non-string column name.
func NewRecord(pairs ...any) Record {
	if len(pairs)%2 != 0 {
		panic("records: NewRecord needs column/value pairs")
	}
	var r Record
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("records: column name at %d is %T, not string", i, pairs[i]))
		}
		r.Set(col, pairs[i+1])
	}
	return r
}

// Set stores value under column. Setting an existing column keeps its position.
func (r *Record) Set(column string, value any) {
	if r.vals == nil {
		r.vals = make(map[string]any)
	}
	if _, ok := r.vals[column]; !ok {
		r.cols = append(r.cols, column)
	}
	r.vals[column] = normalize(value)
}

// Has reports whether column is present.
func (r Record) Has(column string) bool {
	_, ok := r.vals[column]
	return ok
}

// Get returns the raw value of column.
func (r Record) Get(column string) (any, bool) {
	v, ok := r.vals[column]
	return v, ok
}

func (r Record) Int(column string) (int64, bool) {
	switch v := r.vals[column].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (r Record) Float(column string) (float64, bool) {
	switch v := r.vals[column].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (r Record) String(column string) (string, bool) {
	v, ok := r.vals[column].(string)
	return v, ok
}

// Columns returns the column names in insertion order.
func (r Record) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Values returns the values in column order.
func (r Record) Values() []any {
	out := make([]any, 0, len(r.cols))
	for _, c := range r.cols {
		out = append(out, r.vals[c])
	}
	return out
}

func (r Record) Len() int { return len(r.cols) }

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.cols))
	for _, c := range r.cols {
		out[c] = r.vals[c]
	}
	return out
}

// normalize folds driver and caller values onto the scalar set the store
// works with: int64, float64, string and nil. Anything else is kept as is and
// rejected when the record is written.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, int64, float64, string:
		return true
	}
	return false
}
