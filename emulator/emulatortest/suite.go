// Package emulatortest holds a conformance suite for emulator backends.
package emulatortest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/emulator"
)

// BackendFactory returns a backend over an empty table. Every call must
// return a fresh table.
type BackendFactory func(t *testing.T) emulator.Backend

// RunBackendSuite checks the behavior every backend shares: table round
// trips, batch updates, option storage and a widget session on a host.
func RunBackendSuite(t *testing.T, newBackend BackendFactory) {
	t.Run("SaveAndLoad", func(t *testing.T) { testSaveAndLoad(t, newBackend(t)) })
	t.Run("BatchUpdate", func(t *testing.T) { testBatchUpdate(t, newBackend(t)) })
	t.Run("Options", func(t *testing.T) { testOptions(t, newBackend(t)) })
	t.Run("LargeTable", func(t *testing.T) { testLargeTable(t, newBackend(t)) })
	for _, strategy := range []emulator.SyncStrategy{emulator.SyncBatch, emulator.SyncFull} {
		t.Run(fmt.Sprintf("WidgetSession/%s", strategyName(strategy)), func(t *testing.T) {
			testWidgetSession(t, newBackend(t), strategy)
		})
	}
}

func strategyName(s emulator.SyncStrategy) string {
	if s == emulator.SyncFull {
		return "full"
	}
	return "batch"
}

// seed writes the same small table to every backend.
func seed(t *testing.T, b emulator.Backend) {
	t.Helper()
	records := []*sheetwidget.Record{
		{ID: 1, Values: map[string]interface{}{"Name": "Alice", "Age": int64(30), "Score": 91.5, "Active": true}},
		{ID: 2, Values: map[string]interface{}{"Name": "Bob", "Age": int64(25), "Active": false}},
		{ID: 3, Values: map[string]interface{}{"Name": "Carol", "Score": 78.25}},
	}
	require.NoError(t, b.Save(context.Background(), records, []string{"Name", "Age", "Score", "Active"}))
}

func byID(records []*sheetwidget.Record) map[int]map[string]interface{} {
	out := make(map[int]map[string]interface{}, len(records))
	for _, r := range records {
		out[r.ID] = r.Values
	}
	return out
}

func testSaveAndLoad(t *testing.T, b emulator.Backend) {
	ctx := context.Background()
	seed(t, b)

	records, schema, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Age", "Score", "Active"}, schema)
	assert.Equal(t, map[int]map[string]interface{}{
		1: {"Name": "Alice", "Age": int64(30), "Score": 91.5, "Active": true},
		2: {"Name": "Bob", "Age": int64(25), "Active": false},
		3: {"Name": "Carol", "Score": 78.25},
	}, byID(records))

	// Saving again replaces the table
	require.NoError(t, b.Save(ctx, []*sheetwidget.Record{
		{ID: 5, Values: map[string]interface{}{"Name": "Eve"}},
	}, []string{"Name"}))
	records, schema, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, schema)
	assert.Equal(t, map[int]map[string]interface{}{5: {"Name": "Eve"}}, byID(records))
}

func testBatchUpdate(t *testing.T, b emulator.Backend) {
	ctx := context.Background()
	seed(t, b)

	require.NoError(t, b.BatchUpdate(ctx, []emulator.Operation{
		{Type: emulator.OpAdd, Record: &sheetwidget.Record{ID: 4, Values: map[string]interface{}{"Name": "Dave", "Email": "dave@example.com"}}},
		{Type: emulator.OpUpdate, Record: &sheetwidget.Record{ID: 1, Values: map[string]interface{}{"Name": "Alice", "Age": int64(31)}}},
		{Type: emulator.OpDelete, Record: &sheetwidget.Record{ID: 2}},
	}))

	records, schema, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Age", "Score", "Active", "Email"}, schema)

	got := byID(records)
	require.Len(t, got, 3)
	assert.Equal(t, map[string]interface{}{"Name": "Alice", "Age": int64(31)}, got[1])
	assert.NotContains(t, got, 2)
	assert.Equal(t, "Dave", got[4]["Name"])
	assert.Equal(t, "dave@example.com", got[4]["Email"])

	// Updating a record the table no longer has adds it back
	require.NoError(t, b.BatchUpdate(ctx, []emulator.Operation{
		{Type: emulator.OpUpdate, Record: &sheetwidget.Record{ID: 2, Values: map[string]interface{}{"Name": "Bob"}}},
	}))
	records, _, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bob", byID(records)[2]["Name"])
}

func testOptions(t *testing.T, b emulator.Backend) {
	store, ok := b.(emulator.OptionStore)
	if !ok {
		t.Skip("backend does not store options")
	}
	ctx := context.Background()
	seed(t, b)

	want := sheetwidget.Options{"theme": "dark", "size": int64(2), "labels": []interface{}{"a", "b"}}
	require.NoError(t, store.SaveOptions(ctx, want))
	got, err := store.LoadOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Options live apart from the table
	records, _, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func testLargeTable(t *testing.T, b emulator.Backend) {
	ctx := context.Background()
	const n = 250

	records := make([]*sheetwidget.Record, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, &sheetwidget.Record{ID: i, Values: map[string]interface{}{
			"Name":  fmt.Sprintf("user%03d", i),
			"Index": int64(i),
			"Even":  i%2 == 0,
		}})
	}
	require.NoError(t, b.Save(ctx, records, []string{"Name", "Index", "Even"}))

	loaded, _, err := b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, n)
	got := byID(loaded)
	for _, i := range []int{1, 2, 125, n} {
		assert.Equal(t, fmt.Sprintf("user%03d", i), got[i]["Name"], "record %d", i)
		assert.Equal(t, int64(i), got[i]["Index"], "record %d", i)
		assert.Equal(t, i%2 == 0, got[i]["Even"], "record %d", i)
	}
}

// testWidgetSession writes through a widget, syncs, and reads the result back
// with a second host.
func testWidgetSession(t *testing.T, b emulator.Backend, strategy emulator.SyncStrategy) {
	ctx := context.Background()
	seed(t, b)

	host := emulator.New(b, &emulator.Config{RetryInterval: 1, Strategy: strategy})
	host.SetMapping(sheetwidget.ColumnMapping{"name": "Name", "age": "Age"})
	require.NoError(t, host.Load(ctx))

	widget, err := sheetwidget.New(host, &sheetwidget.Config{
		RequiredAccess: sheetwidget.AccessFull,
		Columns:        []sheetwidget.ColumnSpec{{Name: "name"}, {Name: "age", Type: "Int", Optional: true}},
	})
	require.NoError(t, err)
	require.NoError(t, widget.Start(ctx))
	require.True(t, widget.IsReady())

	_, err = widget.WriteCursorField(ctx, "age", int64(40), nil)
	require.NoError(t, err)

	// Concurrent creates all get distinct ids
	var wg sync.WaitGroup
	ids := make(chan int, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := widget.WriteRecord(ctx, sheetwidget.NewRecordID, map[string]interface{}{"Name": fmt.Sprintf("new%d", i)}, nil)
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)
	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 5)

	require.NoError(t, widget.SetOption(ctx, "color", "blue"))
	require.NoError(t, widget.Close(ctx))
	require.NoError(t, host.Close(ctx))

	reopened := emulator.New(b, &emulator.Config{RetryInterval: 1})
	require.NoError(t, reopened.Load(ctx))
	defer reopened.Close(ctx)

	records := byID(reopened.Records())
	assert.Len(t, records, 8)
	assert.Equal(t, int64(40), records[1]["Age"])
	assert.Equal(t, "Alice", records[1]["Name"])
	for id := range seen {
		assert.Contains(t, records, id)
	}

	if _, ok := b.(emulator.OptionStore); ok {
		v, err := reopened.GetOption(ctx, "color")
		require.NoError(t, err)
		assert.Equal(t, "blue", v)
	}
}
