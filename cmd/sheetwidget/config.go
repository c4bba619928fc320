package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/emulator"
)

const (
	configFileName = "sheetwidget"
	configFileType = "yaml"
	envPrefix      = "SHEETWIDGET"

	backendExcel        = "excel"
	backendGoogleSheets = "googlesheets"
)

// config is the CLI configuration read from the config file and SHEETWIDGET_*
// environment variables.
type config struct {
	Backend string `mapstructure:"backend"`
	Debug   bool   `mapstructure:"debug"`

	Excel struct {
		File         string `mapstructure:"file"`
		Sheet        string `mapstructure:"sheet"`
		OptionsSheet string `mapstructure:"options_sheet"`
	} `mapstructure:"excel"`

	GoogleSheets struct {
		SpreadsheetID string `mapstructure:"spreadsheet_id"`
		Sheet         string `mapstructure:"sheet"`
		OptionsSheet  string `mapstructure:"options_sheet"`
		Credentials   string `mapstructure:"credentials"`
	} `mapstructure:"googlesheets"`

	Widget struct {
		Name       string                   `mapstructure:"name"`
		Access     string                   `mapstructure:"access"`
		Columns    []sheetwidget.ColumnSpec `mapstructure:"columns"`
		Mapping    map[string]string        `mapstructure:"mapping"`
		WriteDelay time.Duration            `mapstructure:"write_delay"`
		// Filter limits the section to the rows matching every condition.
		Filter []emulator.Condition `mapstructure:"filter"`
	} `mapstructure:"widget"`
}

// loadConfig reads the config file, if any, and applies environment overrides.
// Without --config, sheetwidget.yaml is looked up in the working directory and
// a missing file is not an error.
func loadConfig(path string) (*config, error) {
	v := viper.New()

	// Every key gets a default so that AutomaticEnv can override it.
	v.SetDefault("backend", backendExcel)
	v.SetDefault("debug", false)
	v.SetDefault("excel.file", "")
	v.SetDefault("excel.sheet", "Sheet1")
	v.SetDefault("excel.options_sheet", "")
	v.SetDefault("googlesheets.spreadsheet_id", "")
	v.SetDefault("googlesheets.sheet", "Sheet1")
	v.SetDefault("googlesheets.options_sheet", "")
	v.SetDefault("googlesheets.credentials", "")
	v.SetDefault("widget.name", "sheetwidget")
	v.SetDefault("widget.access", string(sheetwidget.AccessFull))
	v.SetDefault("widget.write_delay", "500ms")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) validate() error {
	switch c.Backend {
	case backendExcel:
		if c.Excel.File == "" {
			return fmt.Errorf("excel.file is required")
		}
	case backendGoogleSheets:
		if c.GoogleSheets.SpreadsheetID == "" {
			return fmt.Errorf("googlesheets.spreadsheet_id is required")
		}
	default:
		return fmt.Errorf("unknown backend %q (valid: %s, %s)", c.Backend, backendExcel, backendGoogleSheets)
	}

	switch sheetwidget.Access(c.Widget.Access) {
	case sheetwidget.AccessNone, sheetwidget.AccessReadTable, sheetwidget.AccessFull:
	default:
		return fmt.Errorf("unknown widget.access %q", c.Widget.Access)
	}

	if err := emulator.ValidateFilter(c.filter()); err != nil {
		return fmt.Errorf("widget.filter: %w", err)
	}
	return nil
}

func (c *config) filter() emulator.Filter {
	return emulator.Filter{Conditions: c.Widget.Filter}
}

func (c *config) mapping() sheetwidget.ColumnMapping {
	m := make(sheetwidget.ColumnMapping, len(c.Widget.Mapping))
	for role, col := range c.Widget.Mapping {
		m[role] = col
	}
	return m
}

// logger writes text to a terminal and one JSON object per line otherwise.
func (c *config) logger(debug bool) *slog.Logger {
	if !debug && !c.Debug {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
