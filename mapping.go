package sheetwidget

import (
	"fmt"
	"regexp"
	"sort"
)

// ColumnMapping maps logical roles to host column names. The host reports a
// role that is no longer mapped either by dropping the key or by mapping it
// to the empty string.
type ColumnMapping map[string]string

// Clone returns a copy of the mapping.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	for role, col := range m {
		out[role] = col
	}
	return out
}

// Equal reports whether two mappings hold the same roles and columns.
func (m ColumnMapping) Equal(other ColumnMapping) bool {
	if len(m) != len(other) {
		return false
	}
	for role, col := range m {
		if c, ok := other[role]; !ok || c != col {
			return false
		}
	}
	return true
}

// Resolve returns the column a role is mapped to. A sample record, when
// given, must carry that column; otherwise the role counts as unmapped.
func (m ColumnMapping) Resolve(role string, sample *Record) (string, bool) {
	col, ok := m[role]
	if !ok || col == "" {
		return "", false
	}
	if sample != nil && !sample.IsNew() && !sample.Has(col) {
		return "", false
	}
	return col, true
}

// FieldValue is the result of reading a role from a record.
type FieldValue struct {
	Value  interface{}
	Mapped bool
	Column string
}

// GetField reads a role from a record through the mapping. The record itself
// serves as the sample the mapping is checked against.
func GetField(record *Record, mapping ColumnMapping, role string) FieldValue {
	col, ok := mapping.Resolve(role, record)
	if !ok || record == nil {
		return FieldValue{}
	}
	return FieldValue{Value: record.Values[col], Mapped: true, Column: col}
}

// MapRecord returns a record keyed by role instead of column name. Roles that
// are not genuinely mapped are left out.
func MapRecord(record *Record, mapping ColumnMapping) *Record {
	if record == nil {
		return nil
	}
	mapped := &Record{ID: record.ID, Values: make(map[string]interface{}, len(mapping))}
	for role := range mapping {
		if f := GetField(record, mapping, role); f.Mapped {
			mapped.Values[role] = f.Value
		}
	}
	return mapped
}

// UnmapFields translates role-keyed fields into column-keyed fields.
func UnmapFields(fields map[string]interface{}, mapping ColumnMapping, sample *Record) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for role, value := range fields {
		col, ok := mapping.Resolve(role, sample)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotMapped, role)
		}
		out[col] = value
	}
	return out, nil
}

// ValidateMapping checks that every required column role is mapped to a
// column present in the sample record.
func ValidateMapping(mapping ColumnMapping, columns []ColumnSpec, sample *Record) error {
	cfgErr := &ConfigError{}
	for _, spec := range columns {
		col, ok := mapping[spec.Name]
		if !ok || col == "" {
			if !spec.Optional {
				cfgErr.Missing = append(cfgErr.Missing, spec.Name)
			}
			continue
		}
		if sample != nil && !sample.IsNew() && !sample.Has(col) {
			cfgErr.Dangling = append(cfgErr.Dangling, spec.Name)
		}
	}
	if len(cfgErr.Missing) == 0 && len(cfgErr.Dangling) == 0 {
		return nil
	}
	sort.Strings(cfgErr.Missing)
	sort.Strings(cfgErr.Dangling)
	return cfgErr
}

var internalColumnPattern = regexp.MustCompile(`(^manual)|(^id$)|(^gristHelper_)|(^_)|(^#)`)

// IsInternalColumn reports whether a column is host bookkeeping rather than
// user data (id, manualSort, helper columns).
func IsInternalColumn(col string) bool {
	return internalColumnPattern.MatchString(col)
}
