package sheetwidget

import "reflect"

// Change holds both sides of a field that differs between two snapshots.
type Change struct {
	Old interface{}
	New interface{}
}

// FieldDelta describes the differences between two records or two plain
// dictionaries, keyed by field name.
type FieldDelta struct {
	Added   map[string]interface{}
	Changed map[string]Change
	Removed map[string]interface{}
}

func newFieldDelta() *FieldDelta {
	return &FieldDelta{
		Added:   make(map[string]interface{}),
		Changed: make(map[string]Change),
		Removed: make(map[string]interface{}),
	}
}

// HasAnyChanges reports whether any group is non-empty.
func (d *FieldDelta) HasAnyChanges() bool {
	if d == nil {
		return false
	}
	return len(d.Added) > 0 || len(d.Changed) > 0 || len(d.Removed) > 0
}

// RecordsDelta describes the differences between two record collections,
// keyed by record id.
type RecordsDelta struct {
	Added   map[int]*Record
	Changed map[int]*FieldDelta
	Removed map[int]*Record
}

func newRecordsDelta() *RecordsDelta {
	return &RecordsDelta{
		Added:   make(map[int]*Record),
		Changed: make(map[int]*FieldDelta),
		Removed: make(map[int]*Record),
	}
}

// HasAnyChanges reports whether any group is non-empty.
func (d *RecordsDelta) HasAnyChanges() bool {
	if d == nil {
		return false
	}
	return len(d.Added) > 0 || len(d.Changed) > 0 || len(d.Removed) > 0
}

// IDs returns every id that appears in the delta.
func (d *RecordsDelta) IDs() []int {
	if d == nil {
		return nil
	}
	ids := make([]int, 0, len(d.Added)+len(d.Changed)+len(d.Removed))
	for id := range d.Added {
		ids = append(ids, id)
	}
	for id := range d.Changed {
		ids = append(ids, id)
	}
	for id := range d.Removed {
		ids = append(ids, id)
	}
	return ids
}

// CompareRecords compares the fields of two records. A nil record is treated
// as an empty one; the record id is not a field.
func CompareRecords(oldRecord, newRecord *Record) *FieldDelta {
	var oldValues, newValues map[string]interface{}
	if oldRecord != nil {
		oldValues = oldRecord.Values
	}
	if newRecord != nil {
		newValues = newRecord.Values
	}
	return CompareDicts(oldValues, newValues)
}

// CompareDicts compares two plain key/value dictionaries.
func CompareDicts(oldDict, newDict map[string]interface{}) *FieldDelta {
	delta := newFieldDelta()
	for key, oldValue := range oldDict {
		newValue, ok := newDict[key]
		if !ok {
			delta.Removed[key] = oldValue
			continue
		}
		if !ValuesEqual(oldValue, newValue) {
			delta.Changed[key] = Change{Old: oldValue, New: newValue}
		}
	}
	for key, newValue := range newDict {
		if _, ok := oldDict[key]; !ok {
			delta.Added[key] = newValue
		}
	}
	return delta
}

// DictsEqual reports whether two dictionaries hold the same keys and values.
func DictsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key, va := range a {
		vb, ok := b[key]
		if !ok || !ValuesEqual(va, vb) {
			return false
		}
	}
	return true
}

// CompareRecordCollections compares two record collections matched by id.
// Records without an id counterpart land in Added or Removed; matched records
// with differing fields land in Changed with their field-level delta.
func CompareRecordCollections(oldRecords, newRecords []*Record) *RecordsDelta {
	delta := newRecordsDelta()

	oldByID := make(map[int]*Record, len(oldRecords))
	for _, r := range oldRecords {
		if r != nil {
			oldByID[r.ID] = r
		}
	}
	newByID := make(map[int]*Record, len(newRecords))
	for _, r := range newRecords {
		if r != nil {
			newByID[r.ID] = r
		}
	}

	for id, newRecord := range newByID {
		oldRecord, ok := oldByID[id]
		if !ok {
			delta.Added[id] = newRecord
			continue
		}
		if fields := CompareRecords(oldRecord, newRecord); fields.HasAnyChanges() {
			delta.Changed[id] = fields
		}
	}
	for id, oldRecord := range oldByID {
		if _, ok := newByID[id]; !ok {
			delta.Removed[id] = oldRecord
		}
	}
	return delta
}

// ValuesEqual compares two field values. Sequences are equal when they have
// the same length and equal elements; maps compare key by key; numbers
// compare by value whatever their Go type; any other values use ==, and values whose dynamic type is not comparable are unequal
// unless both sides are deeply equal.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isSequence(va) || isSequence(vb) {
		if !isSequence(va) || !isSequence(vb) || va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !ValuesEqual(va.Index(i).Interface(), vb.Index(i).Interface()) {
				return false
			}
		}
		return true
	}

	if va.Kind() == reflect.Map || vb.Kind() == reflect.Map {
		if va.Kind() != reflect.Map || vb.Kind() != reflect.Map || va.Len() != vb.Len() {
			return false
		}
		if va.Type().Key() != vb.Type().Key() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !ValuesEqual(iter.Value().Interface(), other.Interface()) {
				return false
			}
		}
		return true
	}

	if eq, ok := numbersEqual(va, vb); ok {
		return eq
	}

	if !va.Type().Comparable() || !vb.Type().Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// numbersEqual compares two numeric values by value, so int(5), int64(5) and
// 5.0 are equal. ok is false unless both values are numbers.
func numbersEqual(va, vb reflect.Value) (eq, ok bool) {
	ka, kb := numberKind(va), numberKind(vb)
	if ka == 0 || kb == 0 {
		return false, false
	}
	switch {
	case ka == reflect.Float64 || kb == reflect.Float64:
		return toFloat(va) == toFloat(vb), true
	case ka == reflect.Int64 && kb == reflect.Int64:
		return va.Int() == vb.Int(), true
	case ka == reflect.Uint64 && kb == reflect.Uint64:
		return va.Uint() == vb.Uint(), true
	case ka == reflect.Int64:
		return va.Int() >= 0 && uint64(va.Int()) == vb.Uint(), true
	default:
		return vb.Int() >= 0 && uint64(vb.Int()) == va.Uint(), true
	}
}

// numberKind folds the numeric kinds into Int64, Uint64 and Float64.
func numberKind(v reflect.Value) reflect.Kind {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.Int64
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return reflect.Uint64
	case reflect.Float32, reflect.Float64:
		return reflect.Float64
	}
	return 0
}

func toFloat(v reflect.Value) float64 {
	switch numberKind(v) {
	case reflect.Int64:
		return float64(v.Int())
	case reflect.Uint64:
		return float64(v.Uint())
	}
	return v.Float()
}

func isSequence(v reflect.Value) bool {
	return v.Kind() == reflect.Slice || v.Kind() == reflect.Array
}
