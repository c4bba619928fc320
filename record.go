package sheetwidget

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// NewRecordID is the id carried by the placeholder record the host selects
// when the cursor sits on the "add new" row.
const NewRecordID = -1

// Record is an immutable snapshot of one host row.
type Record struct {
	ID     int                    // 行ID (NewRecordID は未作成の行)
	Values map[string]interface{} // カラム名と値のマップ
}

// NewRecord returns the "new record" placeholder.
func NewRecord() *Record {
	return &Record{ID: NewRecordID, Values: map[string]interface{}{}}
}

// IsNew reports whether r is missing or is the "new record" placeholder.
func (r *Record) IsNew() bool {
	return r == nil || r.ID <= 0
}

// Has reports whether the record carries the given column.
func (r *Record) Has(col string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Values[col]
	return ok
}

// Get returns the raw value of a column.
func (r *Record) Get(col string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Values[col]
	return v, ok
}

// Columns returns the column names present in the record, sorted.
func (r *Record) Columns() []string {
	if r == nil {
		return nil
	}
	cols := make([]string, 0, len(r.Values))
	for col := range r.Values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a deep copy of the record. Slices and nested maps are copied
// so that the clone can be handed to consumers without sharing state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := &Record{
		ID:     r.ID,
		Values: make(map[string]interface{}, len(r.Values)),
	}
	for k, v := range r.Values {
		clone.Values[k] = CloneValue(v)
	}
	return clone
}

// CloneValue deep-copies a field value. Lists and nested maps are copied;
// other values are returned as is.
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// CloneRecords clones every record of a collection, preserving order.
func CloneRecords(records []*Record) []*Record {
	if records == nil {
		return nil
	}
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// FindRecord returns the record with the given id, or nil.
func FindRecord(records []*Record, id int) *Record {
	for _, r := range records {
		if r != nil && r.ID == id {
			return r
		}
	}
	return nil
}

// GetAsString returns the value as string or defaultValue if not found
func (r *Record) GetAsString(col string, defaultValue string) string {
	v, ok := r.Get(col)
	if !ok || v == nil {
		return defaultValue
	}

	switch val := v.(type) {
	case string:
		return val
	case int, int64, float64:
		return fmt.Sprintf("%v", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// GetAsInt64 returns the value as int64 or defaultValue if not found
func (r *Record) GetAsInt64(col string, defaultValue int64) int64 {
	v, ok := r.Get(col)
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// GetAsFloat64 returns the value as float64 or defaultValue if not found
func (r *Record) GetAsFloat64(col string, defaultValue float64) float64 {
	v, ok := r.Get(col)
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetAsStrings returns the value as []string or defaultValue if not found.
// Host list cells arrive as []interface{}; a leading "L" marker (the
// host's list type code) is dropped.
func (r *Record) GetAsStrings(col string, defaultValue []string) []string {
	v, ok := r.Get(col)
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case []string:
		return val
	case string:
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	case []interface{}:
		if len(val) > 0 && val[0] == "L" {
			val = val[1:]
		}
		result := make([]string, len(val))
		for i, item := range val {
			result[i] = fmt.Sprintf("%v", item)
		}
		return result
	}
	return defaultValue
}

// GetAsBool returns the value as bool or defaultValue if not found
func (r *Record) GetAsBool(col string, defaultValue bool) bool {
	v, ok := r.Get(col)
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1"
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	}
	return defaultValue
}

// GetAsTime returns the value as time.Time or defaultValue if not found.
// Numeric values are host timestamps in seconds since the epoch.
func (r *Record) GetAsTime(col string, defaultValue time.Time) time.Time {
	v, ok := r.Get(col)
	if !ok {
		return defaultValue
	}

	switch val := v.(type) {
	case time.Time:
		return val
	case float64:
		return time.Unix(int64(val), 0).UTC()
	case int64:
		return time.Unix(val, 0).UTC()
	case string:
		formats := []string{
			time.RFC3339,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, val); err == nil {
				return t
			}
		}
	}
	return defaultValue
}

func (r *Record) set(col string, value interface{}) {
	if r.Values == nil {
		r.Values = make(map[string]interface{})
	}
	r.Values[col] = value
}

// SetString sets a string value
func (r *Record) SetString(col string, value string) { r.set(col, value) }

// SetInt64 sets an int64 value
func (r *Record) SetInt64(col string, value int64) { r.set(col, value) }

// SetFloat64 sets a float64 value
func (r *Record) SetFloat64(col string, value float64) { r.set(col, value) }

// SetStrings sets a []string value
func (r *Record) SetStrings(col string, value []string) {
	out := make([]string, len(value))
	copy(out, value)
	r.set(col, out)
}

// SetBool sets a bool value
func (r *Record) SetBool(col string, value bool) { r.set(col, value) }

// SetTime sets a time.Time value (stored as ISO 8601 string)
func (r *Record) SetTime(col string, value time.Time) { r.set(col, value.Format(time.RFC3339)) }
