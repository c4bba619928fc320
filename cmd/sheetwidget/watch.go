package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/backends/excel"
)

var watchedEvents = []sheetwidget.EventType{
	sheetwidget.EventReady,
	sheetwidget.EventCursorMoved,
	sheetwidget.EventCursorMovedToNew,
	sheetwidget.EventRecordsModified,
	sheetwidget.EventMappingsChanged,
	sheetwidget.EventOptionsChanged,
	sheetwidget.EventInteractionOptionsChanged,
	sheetwidget.EventOptionsEditorRequested,
	sheetwidget.EventWidgetHidden,
	sheetwidget.EventWidgetShown,
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print widget events as YAML while the table changes",
		Long: `watch attaches a widget to the table and prints every event it dispatches
as a YAML document. Excel files are reloaded when they change on disk, Google
sheets are polled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, cfg, flags.debug, poll)
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 30*time.Second, "reload interval for backends that cannot be watched")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config, debug bool, poll time.Duration) error {
	out := newYAMLWriter(cmd.OutOrStdout())
	defer out.close()

	s, err := openSession(ctx, cfg, debug, func(w *sheetwidget.Widget) {
		for _, et := range watchedEvents {
			w.On(et, func(ev sheetwidget.Event) {
				if err := out.write(newEventDoc(ev)); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "write event:", err)
				}
			})
		}
	})
	if err != nil {
		return err
	}

	reload := func() {
		if err := s.host.Reload(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reload failed", slog.String("error", err.Error()))
		}
	}

	if b, ok := s.backend.(*excel.Backend); ok {
		if err := b.Watch(ctx, reload); err != nil {
			_ = s.close(context.Background())
			return err
		}
	} else if poll > 0 {
		go func() {
			ticker := time.NewTicker(poll)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reload()
				}
			}
		}()
	}

	<-ctx.Done()
	// ctx is done; flush with a fresh one
	return s.close(context.Background())
}
