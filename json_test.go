package sheetwidget_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/go-sheetwidget"
)

func TestParseRecordJSON(t *testing.T) {
	r, err := sheetwidget.ParseRecordJSON([]byte(`{"id": 2, "Name": "x", "Score": 1.5, "Count": 3, "Tags": ["L", "a"], "Done": true, "Note": null}`))
	require.NoError(t, err)
	assert.Equal(t, 2, r.ID)
	assert.Equal(t, map[string]interface{}{
		"Name":  "x",
		"Score": 1.5,
		"Count": int64(3),
		"Tags":  []interface{}{"L", "a"},
		"Done":  true,
		"Note":  nil,
	}, r.Values)

	r, err = sheetwidget.ParseRecordJSON([]byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = sheetwidget.ParseRecordJSON([]byte(`{"Name": "no id"}`))
	assert.Error(t, err)
	_, err = sheetwidget.ParseRecordJSON([]byte(`[1]`))
	assert.Error(t, err)
	_, err = sheetwidget.ParseRecordJSON([]byte(`{broken`))
	assert.Error(t, err)
}

func TestParseRecordsJSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		records, err := sheetwidget.ParseRecordsJSON([]byte(`[{"id": 1, "v": 1}, {"id": 2, "v": "two"}]`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(1), records[0].Values["v"])
		assert.Equal(t, "two", records[1].Values["v"])
	})

	t.Run("columnar", func(t *testing.T) {
		records, err := sheetwidget.ParseRecordsJSON([]byte(`{"id": [1, 2], "v": [10, 20], "w": ["a", null]}`))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 2, records[1].ID)
		assert.Equal(t, int64(20), records[1].Values["v"])
		assert.Nil(t, records[1].Values["w"])
	})

	t.Run("empty array", func(t *testing.T) {
		records, err := sheetwidget.ParseRecordsJSON([]byte(`[]`))
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("ragged columns", func(t *testing.T) {
		_, err := sheetwidget.ParseRecordsJSON([]byte(`{"id": [1, 2], "v": [10]}`))
		assert.Error(t, err)
	})

	t.Run("element is not an object", func(t *testing.T) {
		_, err := sheetwidget.ParseRecordsJSON([]byte(`[{"id": 1}, 5]`))
		assert.Error(t, err)
	})
}

func TestParseMappingJSON(t *testing.T) {
	m, err := sheetwidget.ParseMappingJSON([]byte(`{"title": "Name", "done": null}`))
	require.NoError(t, err)
	assert.Equal(t, sheetwidget.ColumnMapping{"title": "Name", "done": ""}, m)

	m, err = sheetwidget.ParseMappingJSON([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = sheetwidget.ParseMappingJSON([]byte(`"x"`))
	assert.Error(t, err)
}

func TestOptionsJSON(t *testing.T) {
	options := sheetwidget.Options{
		"color": "red",
		"size":  2,
		"a.b":   true,
		"list":  []interface{}{1, "x"},
		"none":  nil,
	}

	encoded, err := sheetwidget.FormatOptionsJSON(options)
	require.NoError(t, err)
	assert.JSONEq(t, `{"color":"red","size":2,"a.b":true,"list":[1,"x"],"none":null}`, encoded)

	decoded, err := sheetwidget.ParseOptionsJSON([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, sheetwidget.Options{
		"color": "red",
		"size":  int64(2),
		"a.b":   true,
		"list":  []interface{}{int64(1), "x"},
		"none":  nil,
	}, decoded)

	empty, err := sheetwidget.ParseOptionsJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = sheetwidget.ParseOptionsJSON([]byte(`[1]`))
	assert.Error(t, err)
}
