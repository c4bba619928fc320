package emulator

import (
	"fmt"

	"github.com/ideamans/go-sheetwidget"
)

// Condition represents a single filter condition
type Condition struct {
	Column   string      `yaml:"column" mapstructure:"column"`     // カラム名
	Operator string      `yaml:"operator" mapstructure:"operator"` // 演算子: ==, !=, >, >=, <, <=, in, between
	Value    interface{} `yaml:"value" mapstructure:"value"`       // inの場合は[]interface{}, betweenの場合は2要素
}

// Filter selects the records a section shows, like a linked or filtered
// section of the host.
type Filter struct {
	Conditions []Condition `yaml:"conditions" mapstructure:"conditions"` // AND条件として評価
}

// IsZero reports whether the filter lets every record through.
func (f Filter) IsZero() bool {
	return len(f.Conditions) == 0
}

var validOperators = map[string]bool{
	"==": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true, "in": true, "between": true,
}

// evalCondition evaluates a single condition against a record
func evalCondition(record *sheetwidget.Record, condition Condition) bool {
	var value interface{}
	if condition.Column == "id" {
		value = int64(record.ID)
	} else {
		// カラムが存在しない場合、nullとして扱う
		value = record.Values[condition.Column]
	}

	switch condition.Operator {
	case "==":
		return compareEqual(value, condition.Value)
	case "!=":
		return !compareEqual(value, condition.Value)
	case ">":
		return isNumeric(value) && isNumeric(condition.Value) && toFloat64(value) > toFloat64(condition.Value)
	case ">=":
		return isNumeric(value) && isNumeric(condition.Value) && toFloat64(value) >= toFloat64(condition.Value)
	case "<":
		return isNumeric(value) && isNumeric(condition.Value) && toFloat64(value) < toFloat64(condition.Value)
	case "<=":
		return isNumeric(value) && isNumeric(condition.Value) && toFloat64(value) <= toFloat64(condition.Value)
	case "in":
		return compareIn(value, condition.Value)
	case "between":
		return compareBetween(value, condition.Value)
	default:
		return false
	}
}

// Matches checks if a record matches all conditions of the filter
func (f Filter) Matches(record *sheetwidget.Record) bool {
	if record == nil {
		return false
	}
	for _, condition := range f.Conditions {
		if !evalCondition(record, condition) {
			return false
		}
	}
	return true
}

// compareEqual compares two values for equality
func compareEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	// 数値の比較は型変換を考慮
	if isNumeric(a) && isNumeric(b) {
		return toFloat64(a) == toFloat64(b)
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareIn checks if a is in the list b
func compareIn(a, b interface{}) bool {
	list, ok := b.([]interface{})
	if !ok {
		return false
	}
	for _, item := range list {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

// compareBetween checks if a is between the two bounds of b, inclusive
func compareBetween(a, b interface{}) bool {
	lo, hi, ok := bounds(b)
	if !ok || !isNumeric(a) || !isNumeric(lo) || !isNumeric(hi) {
		return false
	}
	v := toFloat64(a)
	return v >= toFloat64(lo) && v <= toFloat64(hi)
}

func bounds(b interface{}) (interface{}, interface{}, bool) {
	switch v := b.(type) {
	case [2]interface{}:
		return v[0], v[1], true
	case []interface{}:
		if len(v) == 2 {
			return v[0], v[1], true
		}
	}
	return nil, nil, false
}

// isNumeric checks if a value is numeric
func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// toFloat64 converts a numeric value to float64
func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

// ApplyFilter returns the records matching the filter, keeping their order
func ApplyFilter(records []*sheetwidget.Record, filter Filter) []*sheetwidget.Record {
	results := []*sheetwidget.Record{}
	for _, record := range records {
		if filter.Matches(record) {
			results = append(results, record)
		}
	}
	return results
}

// ValidateFilter validates filter structure
func ValidateFilter(filter Filter) error {
	for i, cond := range filter.Conditions {
		if !validOperators[cond.Operator] {
			return fmt.Errorf("%w: invalid operator '%s' in condition %d", ErrInvalidFilter, cond.Operator, i)
		}
		if cond.Operator == "in" {
			if _, ok := cond.Value.([]interface{}); !ok {
				return fmt.Errorf("%w: operator 'in' requires a list value in condition %d", ErrInvalidFilter, i)
			}
		}
		if cond.Operator == "between" {
			if _, _, ok := bounds(cond.Value); !ok {
				return fmt.Errorf("%w: operator 'between' requires two bounds in condition %d", ErrInvalidFilter, i)
			}
		}
		if cond.Column == "" {
			return fmt.Errorf("%w: empty column name in condition %d", ErrInvalidFilter, i)
		}
	}
	return nil
}
