package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/backends/excel"
	"github.com/ideamans/go-sheetwidget/emulator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := excel.New(&excel.Config{
		FilePath:  "./example_data.xlsx",
		SheetName: "users",
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("Failed to create Excel backend: %v", err)
	}

	// Seed the workbook on first run
	if _, err := os.Stat("./example_data.xlsx"); os.IsNotExist(err) {
		seed := []*sheetwidget.Record{
			{ID: 1, Values: map[string]interface{}{"Name": "Alice Johnson", "Department": "Engineering", "Age": int64(30)}},
			{ID: 2, Values: map[string]interface{}{"Name": "Bob Smith", "Department": "Marketing", "Age": int64(25)}},
			{ID: 3, Values: map[string]interface{}{"Name": "Carol White", "Department": "Engineering", "Age": int64(35)}},
		}
		if err := backend.Save(ctx, seed, []string{"Name", "Department", "Age"}); err != nil {
			log.Fatalf("Failed to seed workbook: %v", err)
		}
	}

	host := emulator.New(backend, excel.DefaultHostConfig())
	host.SetMapping(sheetwidget.ColumnMapping{"name": "Name", "team": "Department"})
	if err := host.Load(ctx); err != nil {
		log.Fatalf("Failed to load workbook: %v", err)
	}

	widget, err := sheetwidget.New(host, &sheetwidget.Config{
		RequiredAccess: sheetwidget.AccessReadTable,
		Columns:        []sheetwidget.ColumnSpec{{Name: "name"}, {Name: "team"}},
	})
	if err != nil {
		log.Fatal(err)
	}

	// Count people per team whenever the table changes
	widget.On(sheetwidget.EventReady, printTeams)
	widget.On(sheetwidget.EventRecordsModified, printTeams)

	if err := widget.Start(ctx); err != nil {
		log.Fatal(err)
	}

	// Reload when the workbook is edited in Excel
	if err := backend.Watch(ctx, func() {
		if err := host.Reload(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Reload failed: %v", err)
		}
	}); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Watching example_data.xlsx, press Ctrl+C to stop")
	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := widget.Close(closeCtx); err != nil {
		log.Printf("Error closing widget: %v", err)
	}
	if err := host.Close(closeCtx); err != nil {
		log.Printf("Error closing host: %v", err)
	}
}

func printTeams(ev sheetwidget.Event) {
	counts := map[string]int{}
	for _, r := range ev.State.Records {
		team := sheetwidget.GetField(r, ev.State.Mapping, "team")
		counts[fmt.Sprint(team.Value)]++
	}
	fmt.Printf("%s %s: %v\n", ev.Time.Format(time.Kitchen), ev.Type, counts)
}
