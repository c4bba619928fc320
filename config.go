package sheetwidget

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"
)

// Category is a kind of snapshot the host delivers.
type Category string

const (
	CategoryCursor   Category = "cursor"
	CategoryRecords  Category = "records"
	CategoryMappings Category = "mappings"
	CategoryOptions  Category = "options"
)

// DefaultRequired is the set of categories a widget waits for before it
// becomes ready when Config.Required is empty.
var DefaultRequired = []Category{CategoryCursor, CategoryRecords, CategoryMappings}

// Config represents configuration for a Widget
type Config struct {
	Name           string        // Used as the logger's "widget" attribute
	RequiredAccess Access        // Access level requested in the handshake (default: read table)
	Columns        []ColumnSpec  // Column roles the user can map
	AllowSelectBy  bool          // Whether the widget can drive the host's cursor in linked sections
	Required       []Category    // Categories required before "ready" (default: DefaultRequired)
	WriteDelay     time.Duration // Default delay for scheduled writes (default: 500ms)

	// SkipReadyMessage suppresses the handshake, for widgets running inside
	// a frame whose parent already configured the host.
	SkipReadyMessage bool

	// FlushOnHide runs pending scheduled writes when the host hides the widget.
	FlushOnHide bool

	// OnWriteError receives failures of writes fired by the scheduler.
	OnWriteError func(id int, err error)

	Logger *slog.Logger // default: discard, or stderr at debug level when Debug is set
	Debug  bool
	Clock  clock.Clock // default: wall clock
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "widget"
	}
	if c.RequiredAccess == "" {
		c.RequiredAccess = AccessReadTable
	}
	if len(c.Required) == 0 {
		c.Required = append([]Category(nil), DefaultRequired...)
	}
	if c.WriteDelay <= 0 {
		c.WriteDelay = 500 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		if c.Debug {
			c.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}
	return c
}
