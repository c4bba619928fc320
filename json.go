package sheetwidget

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ParseRecordJSON decodes a single record snapshot such as
// {"id": 1, "Name": "x"}. A JSON null decodes to nil.
func ParseRecordJSON(data []byte) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid record JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsObject() {
		return nil, fmt.Errorf("record JSON must be an object")
	}
	return recordFromResult(res)
}

// ParseRecordsJSON decodes a record collection, either an array of record
// objects or the host's columnar form {"id": [1, 2], "Name": ["a", "b"]}.
func ParseRecordsJSON(data []byte) ([]*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid records JSON")
	}
	res := gjson.ParseBytes(data)
	switch {
	case res.IsArray():
		var records []*Record
		var err error
		res.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				err = fmt.Errorf("record %d is not an object", len(records))
				return false
			}
			var r *Record
			if r, err = recordFromResult(item); err != nil {
				return false
			}
			records = append(records, r)
			return true
		})
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []*Record{}
		}
		return records, nil
	case res.IsObject():
		return columnarToRecords(res)
	default:
		return nil, fmt.Errorf("records JSON must be an array or a columnar object")
	}
}

// ParseMappingJSON decodes a column mapping. Null values, which the host uses
// for roles that are no longer mapped, decode to the empty string.
func ParseMappingJSON(data []byte) (ColumnMapping, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid mapping JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return ColumnMapping{}, nil
	}
	if !res.IsObject() {
		return nil, fmt.Errorf("mapping JSON must be an object")
	}
	mapping := ColumnMapping{}
	res.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			mapping[key.String()] = value.String()
		} else {
			mapping[key.String()] = ""
		}
		return true
	})
	return mapping, nil
}

// ParseOptionsJSON decodes widget options stored as a JSON object. Empty
// input decodes to empty options.
func ParseOptionsJSON(data []byte) (Options, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Options{}, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid options JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return Options{}, nil
	}
	if !res.IsObject() {
		return nil, fmt.Errorf("options JSON must be an object")
	}
	options := Options{}
	res.ForEach(func(key, value gjson.Result) bool {
		options[key.String()] = jsonValue(value)
		return true
	})
	return options, nil
}

// FormatOptionsJSON encodes widget options as a JSON object with sorted keys.
func FormatOptionsJSON(options Options) (string, error) {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := "{}"
	for _, k := range keys {
		var err error
		if out, err = sjson.Set(out, optionPath(k), options[k]); err != nil {
			return "", fmt.Errorf("encode option %q: %w", k, err)
		}
	}
	return out, nil
}

// optionPath escapes a key for use as an sjson path.
func optionPath(key string) string {
	var b strings.Builder
	if key != "" && strings.Trim(key, "0123456789") == "" {
		b.WriteByte(':')
	}
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func recordFromResult(res gjson.Result) (*Record, error) {
	idResult := res.Get("id")
	if !idResult.Exists() {
		return nil, fmt.Errorf("record has no id")
	}
	record := &Record{ID: int(idResult.Int()), Values: make(map[string]interface{})}
	res.ForEach(func(key, value gjson.Result) bool {
		if key.String() != "id" {
			record.Values[key.String()] = jsonValue(value)
		}
		return true
	})
	return record, nil
}

func columnarToRecords(res gjson.Result) ([]*Record, error) {
	ids := res.Get("id")
	if !ids.IsArray() {
		return nil, fmt.Errorf("columnar records need an id column")
	}
	idList := ids.Array()
	records := make([]*Record, len(idList))
	for i, id := range idList {
		records[i] = &Record{ID: int(id.Int()), Values: make(map[string]interface{})}
	}

	var err error
	res.ForEach(func(key, column gjson.Result) bool {
		if key.String() == "id" {
			return true
		}
		values := column.Array()
		if len(values) != len(records) {
			err = fmt.Errorf("column %q has %d values, want %d", key.String(), len(values), len(records))
			return false
		}
		for i, v := range values {
			records[i].Values[key.String()] = jsonValue(v)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// jsonValue converts a gjson result into plain Go values. Whole numbers
// become int64, like the spreadsheet backends produce.
func jsonValue(v gjson.Result) interface{} {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if f := v.Float(); f == float64(int64(f)) {
			return int64(f)
		}
		return v.Float()
	case gjson.String:
		return v.String()
	}
	if v.IsArray() {
		items := v.Array()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	}
	if v.IsObject() {
		out := make(map[string]interface{})
		v.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = jsonValue(value)
			return true
		})
		return out
	}
	return v.Value()
}
