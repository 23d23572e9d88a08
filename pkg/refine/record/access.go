package record

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Text returns the text field as a string, or def when it is absent or not
// representable as text.
func Text(rec Record, def string) string {
	v := Field(rec, FieldText, nil)
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return t
	case map[string]any, []any, Record:
		return def
	default:
		return String(t)
	}
}

// Field returns field coerced to a plain Go scalar. Any lookup or coercion
// failure yields def.
func Field(rec Record, field string, def any) (out any) {
	if !Valid(rec) {
		return def
	}
	defer func() {
		if recover() != nil {
			out = def
		}
	}()

	v, ok := rec.Get(field)
	if !ok {
		return def
	}
	s, ok := Scalar(v)
	if !ok {
		return def
	}
	return s
}

// SetField returns a new record of the same shape with field set to value.
// Invalid records yield nil.
func SetField(rec Record, field string, value any) Record {
	if !Valid(rec) {
		return nil
	}
	return rec.Set(field, value)
}

// Scalar unwraps adapter-specific wrapper types into plain Go values:
// string, bool, int64, uint64, float64, time.Time, nested maps and slices.
// The second result is false when v cannot be represented.
func Scalar(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string, bool, int64, float64, time.Time:
		return t, true
	case map[string]any, []any, Record:
		return t, true
	case []byte:
		return string(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case sql.NullString:
		return nullable(t.Valid, t.String)
	case sql.NullInt64:
		return nullable(t.Valid, t.Int64)
	case sql.NullInt32:
		return nullable(t.Valid, int64(t.Int32))
	case sql.NullFloat64:
		return nullable(t.Valid, t.Float64)
	case sql.NullBool:
		return nullable(t.Valid, t.Bool)
	case sql.NullTime:
		return nullable(t.Valid, t.Time)
	case driver.Valuer:
		inner, err := t.Value()
		if err != nil {
			return nil, false
		}
		if _, again := inner.(driver.Valuer); again {
			return nil, false
		}
		return Scalar(inner)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u), true
		}
		return u, true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, true
		}
		return Scalar(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			inner, ok := Scalar(iter.Value().Interface())
			if !ok {
				return nil, false
			}
			out[iter.Key().String()] = inner
		}
		return out, true
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			inner, ok := Scalar(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			out[i] = inner
		}
		return out, true
	}
	return nil, false
}

func nullable[T any](valid bool, v T) (any, bool) {
	if !valid {
		return nil, false
	}
	return v, true
}

// String returns the canonical string form of a field value. It is the
// identity used for duplicate detection: equal strings mean equal keys.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any, []any, *Map, *Row:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	if s, ok := Scalar(v); ok {
		if _, same := s.(Record); !same && !reflect.DeepEqual(s, v) {
			return String(s)
		}
	}
	return fmt.Sprint(v)
}
