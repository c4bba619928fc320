package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/backends/excel"
	"github.com/ideamans/go-sheetwidget/backends/googlesheets"
	"github.com/ideamans/go-sheetwidget/emulator"
)

// session is a widget attached to an emulated host over the configured backend.
type session struct {
	backend emulator.Backend
	host    *emulator.Host
	widget  *sheetwidget.Widget
	logger  *slog.Logger
}

// openSession loads the table and starts a widget on it. register is called
// before the handshake so that handlers see the ready event.
func openSession(ctx context.Context, cfg *config, debug bool, register func(*sheetwidget.Widget)) (*session, error) {
	logger := cfg.logger(debug)

	backend, hostCfg, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	hostCfg.Logger = logger.With(slog.String("component", "host"))

	host := emulator.New(backend, hostCfg)
	host.SetMapping(cfg.mapping())
	if err := host.Load(ctx); err != nil {
		_ = host.Close(ctx)
		return nil, fmt.Errorf("load table: %w", err)
	}
	if err := host.SetFilter(cfg.filter()); err != nil {
		_ = host.Close(ctx)
		return nil, err
	}

	widget, err := sheetwidget.New(host, &sheetwidget.Config{
		Name:           cfg.Widget.Name,
		RequiredAccess: sheetwidget.Access(cfg.Widget.Access),
		Columns:        cfg.Widget.Columns,
		WriteDelay:     cfg.Widget.WriteDelay,
		Logger:         logger,
	})
	if err != nil {
		_ = host.Close(ctx)
		return nil, err
	}
	if register != nil {
		register(widget)
	}
	if err := widget.Start(ctx); err != nil {
		_ = host.Close(ctx)
		return nil, err
	}

	return &session{backend: backend, host: host, widget: widget, logger: logger}, nil
}

func openBackend(ctx context.Context, cfg *config, logger *slog.Logger) (emulator.Backend, *emulator.Config, error) {
	switch cfg.Backend {
	case backendExcel:
		b, err := excel.New(&excel.Config{
			FilePath:     cfg.Excel.File,
			SheetName:    cfg.Excel.Sheet,
			OptionsSheet: cfg.Excel.OptionsSheet,
			Logger:       logger.With(slog.String("component", "excel")),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, excel.DefaultHostConfig(), nil

	case backendGoogleSheets:
		gsCfg := googlesheets.Config{
			SpreadsheetID: cfg.GoogleSheets.SpreadsheetID,
			SheetName:     cfg.GoogleSheets.Sheet,
			OptionsSheet:  cfg.GoogleSheets.OptionsSheet,
		}
		var (
			b   *googlesheets.Backend
			err error
		)
		if cfg.GoogleSheets.Credentials != "" {
			b, err = googlesheets.NewWithJSONKeyFile(ctx, gsCfg, cfg.GoogleSheets.Credentials)
		} else {
			b, err = googlesheets.NewWithDefaultCredentials(ctx, gsCfg)
		}
		if err != nil {
			return nil, nil, err
		}
		return b, googlesheets.DefaultHostConfig(), nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// close flushes scheduled writes and syncs pending edits to the backend.
func (s *session) close(ctx context.Context) error {
	return errors.Join(s.widget.Close(ctx), s.host.Close(ctx))
}
