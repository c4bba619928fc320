package excel

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xuri/excelize/v2"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/emulator"
)

func newTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.xlsx")
	b, err := New(&Config{FilePath: path, SheetName: "Data"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, path
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{name: "valid", config: &Config{FilePath: "a.xlsx", SheetName: "Data"}},
		{name: "missing path", config: &Config{SheetName: "Data"}, wantErr: ErrMissingFilePath},
		{name: "missing sheet", config: &Config{FilePath: "a.xlsx"}, wantErr: ErrMissingSheetName},
		{name: "sheet conflict", config: &Config{FilePath: "a.xlsx", SheetName: "_options"}, wantErr: ErrSheetConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.config)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && b.config.OptionsSheet != DefaultOptionsSheet {
				t.Errorf("OptionsSheet = %q, want %q", b.config.OptionsSheet, DefaultOptionsSheet)
			}
		})
	}

	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestBackend_LoadSave(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	t.Run("Load missing file", func(t *testing.T) {
		records, schema, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(records) != 0 || len(schema) != 0 {
			t.Errorf("Load() = %v, %v; want empty", records, schema)
		}
	})

	records := []*sheetwidget.Record{
		{ID: 5, Values: map[string]interface{}{"name": "Bob", "score": 1.5}},
		{ID: 2, Values: map[string]interface{}{"name": "Alice", "age": int64(30), "active": true, "tags": []interface{}{"a", "b"}}},
	}

	t.Run("Save and Load", func(t *testing.T) {
		if err := b.Save(ctx, records, []string{"id", "name", "age", "active", "tags", "score"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		loaded, schema, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		wantSchema := []string{"name", "age", "active", "tags", "score"}
		if !reflect.DeepEqual(schema, wantSchema) {
			t.Errorf("schema = %v, want %v", schema, wantSchema)
		}
		if len(loaded) != 2 {
			t.Fatalf("got %d records, want 2", len(loaded))
		}

		alice := loaded[0]
		if alice.ID != 2 {
			t.Errorf("first record id = %d, want 2", alice.ID)
		}
		want := map[string]interface{}{"name": "Alice", "age": int64(30), "active": true, "tags": "a,b"}
		if !reflect.DeepEqual(alice.Values, want) {
			t.Errorf("values = %v, want %v", alice.Values, want)
		}

		bob := loaded[1]
		if bob.ID != 5 || bob.Values["score"] != 1.5 {
			t.Errorf("second record = %v", bob)
		}
		if _, ok := bob.Values["age"]; ok {
			t.Error("empty cells should not become values")
		}
	})

	t.Run("Save replaces rows", func(t *testing.T) {
		if err := b.Save(ctx, records[:1], []string{"name"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		loaded, schema, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(loaded) != 1 || loaded[0].ID != 5 {
			t.Errorf("Load() = %v, want only record 5", loaded)
		}
		if !reflect.DeepEqual(schema, []string{"name"}) {
			t.Errorf("schema = %v", schema)
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		if _, _, err := b.Load(cancelCtx); err == nil {
			t.Error("Load() with cancelled context should return error")
		}
		if err := b.Save(cancelCtx, nil, nil); err == nil {
			t.Error("Save() with cancelled context should return error")
		}
	})
}

func TestBackend_LoadWithoutIDColumn(t *testing.T) {
	b, path := newTestBackend(t)

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", "Data"); err != nil {
		t.Fatal(err)
	}
	_ = f.SetSheetRow("Data", "A1", &[]interface{}{"name", "qty"})
	_ = f.SetSheetRow("Data", "A2", &[]interface{}{"pen", 3})
	_ = f.SetSheetRow("Data", "A4", &[]interface{}{"ink", 2.5})
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	records, schema, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(schema, []string{"name", "qty"}) {
		t.Errorf("schema = %v", schema)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Row numbers become ids, blank rows are skipped
	if records[0].ID != 1 || records[1].ID != 3 {
		t.Errorf("ids = %d, %d; want 1, 3", records[0].ID, records[1].ID)
	}
	if records[0].Values["qty"] != int64(3) || records[1].Values["qty"] != 2.5 {
		t.Errorf("qty values = %v, %v", records[0].Values["qty"], records[1].Values["qty"])
	}
}

func TestBackend_InvalidID(t *testing.T) {
	b, path := newTestBackend(t)

	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", "Data")
	_ = f.SetSheetRow("Data", "A1", &[]interface{}{"id", "name"})
	_ = f.SetSheetRow("Data", "A2", &[]interface{}{"x", "pen"})
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, _, err := b.Load(context.Background()); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Load() error = %v, want ErrInvalidID", err)
	}
}

func TestBackend_BatchUpdate(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	initial := []*sheetwidget.Record{
		{ID: 1, Values: map[string]interface{}{"name": "Initial"}},
		{ID: 2, Values: map[string]interface{}{"name": "ToDelete"}},
	}
	if err := b.Save(ctx, initial, []string{"name"}); err != nil {
		t.Fatalf("failed to save initial data: %v", err)
	}

	operations := []emulator.Operation{
		{Type: emulator.OpAdd, Record: &sheetwidget.Record{ID: 3, Values: map[string]interface{}{"name": "Added", "new_column": "value"}}},
		{Type: emulator.OpUpdate, Record: &sheetwidget.Record{ID: 1, Values: map[string]interface{}{"name": "Updated"}}},
		{Type: emulator.OpDelete, Record: &sheetwidget.Record{ID: 2}},
	}
	if err := b.BatchUpdate(ctx, operations); err != nil {
		t.Fatalf("BatchUpdate() error = %v", err)
	}

	loaded, schema, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after batch update error = %v", err)
	}
	if !reflect.DeepEqual(schema, []string{"name", "new_column"}) {
		t.Errorf("schema = %v", schema)
	}
	if len(loaded) != 2 {
		t.Fatalf("got %d records, want 2", len(loaded))
	}
	if loaded[0].ID != 1 || loaded[0].Values["name"] != "Updated" {
		t.Errorf("updated record = %v", loaded[0])
	}
	if loaded[1].ID != 3 || loaded[1].Values["new_column"] != "value" {
		t.Errorf("added record = %v", loaded[1])
	}
}

func TestBackend_Options(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	options, err := b.LoadOptions(ctx)
	if err != nil {
		t.Fatalf("LoadOptions() error = %v", err)
	}
	if len(options) != 0 {
		t.Errorf("LoadOptions() on missing file = %v", options)
	}

	want := sheetwidget.Options{"theme": "dark", "size": int64(3), "flags": []interface{}{"a", true}}
	if err := b.SaveOptions(ctx, want); err != nil {
		t.Fatalf("SaveOptions() error = %v", err)
	}
	records := []*sheetwidget.Record{{ID: 1, Values: map[string]interface{}{"name": "x"}}}
	if err := b.Save(ctx, records, []string{"name"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := b.LoadOptions(ctx)
	if err != nil {
		t.Fatalf("LoadOptions() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadOptions() = %v, want %v", got, want)
	}

	loaded, _, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("table and options should share the file, got %d records", len(loaded))
	}
}

// A value written as int comes back from the workbook as int64. Reloading
// the unchanged table must not report a modification.
func TestBackend_ReloadAfterWriteIsQuiet(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	seed := []*sheetwidget.Record{
		{ID: 1, Values: map[string]interface{}{"Title": "first", "Count": int64(1)}},
		{ID: 2, Values: map[string]interface{}{"Title": "second", "Count": int64(2)}},
	}
	if err := b.Save(ctx, seed, []string{"Title", "Count"}); err != nil {
		t.Fatal(err)
	}

	host := emulator.New(b, &emulator.Config{})
	host.SetMapping(sheetwidget.ColumnMapping{"title": "Title", "count": "Count"})
	if err := host.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer host.Close(ctx)

	widget, err := sheetwidget.New(host, &sheetwidget.Config{RequiredAccess: sheetwidget.AccessFull})
	if err != nil {
		t.Fatal(err)
	}
	if err := widget.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer widget.Close(ctx)

	if _, err := widget.WriteRecord(ctx, 1, map[string]interface{}{"Count": 5, "Score": 2.0}, nil); err != nil {
		t.Fatalf("WriteRecord() error = %v", err)
	}
	if err := host.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	var modified atomic.Int32
	widget.OnRecordsModified(func(ev sheetwidget.Event) {
		for id, fd := range ev.Delta.Changed {
			for col, c := range fd.Changed {
				t.Errorf("change of record %d column %s: %v (%T) -> %v (%T)", id, col, c.Old, c.Old, c.New, c.New)
			}
		}
		modified.Add(1)
	})

	if err := host.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if n := modified.Load(); n != 0 {
		t.Errorf("reload of unchanged data dispatched %d recordsModified events", n)
	}

	got, err := widget.GetRecordField(sheetwidget.FindRecord(widget.Records(), 1), "count")
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(5) {
		t.Errorf("count = %v (%T), want int64 5 from the workbook", got, got)
	}
}

func TestBackend_WithEmulator(t *testing.T) {
	b, path := newTestBackend(t)
	ctx := context.Background()

	seed := []*sheetwidget.Record{
		{ID: 1, Values: map[string]interface{}{"Title": "first"}},
		{ID: 2, Values: map[string]interface{}{"Title": "second"}},
	}
	if err := b.Save(ctx, seed, []string{"Title"}); err != nil {
		t.Fatal(err)
	}

	host := emulator.New(b, &emulator.Config{})
	host.SetMapping(sheetwidget.ColumnMapping{"title": "Title"})
	if err := host.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	widget, err := sheetwidget.New(host, &sheetwidget.Config{RequiredAccess: sheetwidget.AccessFull})
	if err != nil {
		t.Fatal(err)
	}
	if err := widget.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := widget.WriteCursorField(ctx, "title", "changed", nil); err != nil {
		t.Fatalf("WriteCursorField() error = %v", err)
	}
	if err := widget.SetOption(ctx, "color", "red"); err != nil {
		t.Fatalf("SetOption() error = %v", err)
	}
	if err := widget.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := host.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := New(&Config{FilePath: path, SheetName: "Data"})
	if err != nil {
		t.Fatal(err)
	}
	loaded, _, err := reopened.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded[0].Values["Title"] != "changed" || loaded[1].Values["Title"] != "second" {
		t.Errorf("Load() = %v", loaded)
	}
	options, err := reopened.LoadOptions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if options["color"] != "red" {
		t.Errorf("options = %v", options)
	}
}

func TestBackend_Watch(t *testing.T) {
	b, path := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records := []*sheetwidget.Record{{ID: 1, Values: map[string]interface{}{"name": "x"}}}
	if err := b.Save(ctx, records, []string{"name"}); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 16)
	if err := b.Watch(ctx, func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	other, err := New(&Config{FilePath: path, SheetName: "Data"})
	if err != nil {
		t.Fatal(err)
	}
	// Let the modification time move past our own write
	time.Sleep(20 * time.Millisecond)
	records[0].Values["name"] = "y"
	if err := other.Save(ctx, records, []string{"name"}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("external change was not reported")
	}
}

func TestBackend_WatchLogsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.xlsx")
	var logs bytes.Buffer
	b, err := New(&Config{FilePath: path, SheetName: "Data", Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan fsnotify.Event)
	errs := make(chan error)
	changed := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.watchLoop(ctx, path, events, errs, func() { changed <- struct{}{} })
	}()

	errs <- errors.New("event queue overflow")
	// The loop keeps going after an error
	events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change after a watcher error was not reported")
	}
	cancel()
	<-done

	if !strings.Contains(logs.String(), "event queue overflow") {
		t.Errorf("watcher error was not logged: %q", logs.String())
	}
}

func TestCellConversion(t *testing.T) {
	parseTests := []struct {
		in   string
		want interface{}
	}{
		{"42", int64(42)},
		{"2.5", 2.5},
		{"TRUE", true},
		{"false", false},
		{"hello", "hello"},
	}
	for _, tt := range parseTests {
		if got := parseCell(tt.in); got != tt.want {
			t.Errorf("parseCell(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
		}
	}

	if got := cellValue([]interface{}{"a", int64(1)}); got != "a,1" {
		t.Errorf("cellValue(list) = %v", got)
	}
	if got := cellValue(nil); got != "" {
		t.Errorf("cellValue(nil) = %v", got)
	}
	if got := cellValue(map[string]interface{}{"k": "v"}); got != `{"k":"v"}` {
		t.Errorf("cellValue(map) = %v", got)
	}
}
