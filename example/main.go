package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/backends/googlesheets"
	"github.com/ideamans/go-sheetwidget/emulator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()

	backendConfig := googlesheets.Config{
		SpreadsheetID: "your-spreadsheet-id",
		SheetName:     "tasks",
	}

	// Initialize Google Sheets backend with JSON key file
	backend, err := googlesheets.NewWithJSONKeyFile(ctx, backendConfig, "./service-account.json")
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	// Recommended defaults for Google Sheets
	host := emulator.New(backend, googlesheets.DefaultHostConfig())
	host.SetMapping(sheetwidget.ColumnMapping{"title": "Task", "done": "Done"})
	if err := host.Load(ctx); err != nil {
		return fmt.Errorf("failed to load sheet: %w", err)
	}
	defer host.Close(ctx)

	widget, err := sheetwidget.New(host, &sheetwidget.Config{
		Name:           "tasks",
		RequiredAccess: sheetwidget.AccessFull,
		Columns: []sheetwidget.ColumnSpec{
			{Name: "title", Type: "Text"},
			{Name: "done", Type: "Bool", Optional: true},
		},
	})
	if err != nil {
		return err
	}
	defer widget.Close(ctx)

	widget.OnReadyOrCursorMoved(func(ev sheetwidget.Event) {
		title, _ := widget.GetCursorField("title")
		fmt.Printf("%s: cursor on %v\n", ev.Type, title)
	})
	widget.OnRecordsModified(func(ev sheetwidget.Event) {
		fmt.Printf("records modified: %d added, %d changed, %d removed\n",
			len(ev.Delta.Added), len(ev.Delta.Changed), len(ev.Delta.Removed))
	})

	if err := widget.Start(ctx); err != nil {
		return err
	}

	// Mark the selected task as done
	if _, err := widget.WriteCursorField(ctx, "done", true, nil); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	// Add a task
	id, err := widget.WriteRecord(ctx, sheetwidget.NewRecordID, map[string]interface{}{"Task": "review widget"}, nil)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}
	fmt.Printf("Added task %d\n", id)

	// Force sync
	return host.Sync(ctx)
}
