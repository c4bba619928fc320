package excel

import (
	"log/slog"
	"time"

	"github.com/ideamans/go-sheetwidget/emulator"
)

// DefaultOptionsSheet is where widget options are kept when Config.OptionsSheet is empty.
const DefaultOptionsSheet = "_options"

// Config holds configuration for the Excel backend
type Config struct {
	FilePath     string // Path to the Excel file
	SheetName    string // Name of the sheet holding the table
	OptionsSheet string // Name of the sheet holding widget options (default: _options)

	Logger *slog.Logger // Receives file watcher errors (default: discard)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return ErrMissingFilePath
	}
	if c.SheetName == "" {
		return ErrMissingSheetName
	}
	if c.OptionsSheet == c.SheetName {
		return ErrSheetConflict
	}
	return nil
}

// DefaultHostConfig returns the recommended emulator configuration for Excel
func DefaultHostConfig() *emulator.Config {
	return &emulator.Config{
		SyncInterval:  1 * time.Second,
		MaxRetries:    3,
		RetryInterval: 500 * time.Millisecond,
	}
}
