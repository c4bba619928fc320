package googlesheets

import (
	"errors"
	"time"

	"github.com/ideamans/go-sheetwidget/emulator"
)

// DefaultOptionsSheet is where widget options are kept when Config.OptionsSheet is empty.
const DefaultOptionsSheet = "_options"

var (
	// ErrMissingSpreadsheetID is returned when the spreadsheet is not specified
	ErrMissingSpreadsheetID = errors.New("spreadsheet id is required")

	// ErrMissingSheetName is returned when sheet name is not specified
	ErrMissingSheetName = errors.New("sheet name is required")

	// ErrInvalidID is returned when a row carries an id that is not a positive integer
	ErrInvalidID = errors.New("invalid id cell")
)

// Config represents configuration specific to the Google Sheets backend
type Config struct {
	SpreadsheetID string
	SheetName     string
	OptionsSheet  string // default: _options
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.SpreadsheetID == "" {
		return ErrMissingSpreadsheetID
	}
	if c.SheetName == "" {
		return ErrMissingSheetName
	}
	return nil
}

// DefaultHostConfig returns the recommended emulator configuration for Google Sheets.
// The API is rate limited, so edits are batched over a longer interval.
func DefaultHostConfig() *emulator.Config {
	return &emulator.Config{
		SyncInterval:  10 * time.Second,
		MaxRetries:    3,
		RetryInterval: 1 * time.Second,
	}
}
