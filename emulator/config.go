package emulator

import (
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// SyncStrategy selects how pending edits reach the backend
type SyncStrategy int

const (
	// SyncBatch sends only the changed records through Backend.BatchUpdate.
	SyncBatch SyncStrategy = iota
	// SyncFull rewrites the whole table through Backend.Save.
	SyncFull
)

// Config represents configuration for an emulated host
type Config struct {
	SyncInterval  time.Duration // Interval for periodic sync (0 disables it)
	MaxRetries    int           // Maximum number of retries for backend calls (default: 3)
	RetryInterval time.Duration // Base interval between retries for exponential backoff (default: 100ms)
	Strategy      SyncStrategy  // default: SyncBatch

	// Interaction is delivered to widgets with their options, e.g. a theme.
	// The access level requested in the handshake is added to it.
	Interaction map[string]interface{}

	Logger *slog.Logger // default: discard
	Clock  clock.Clock  // default: wall clock
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// backoff returns the delay before retry number attempt, doubling from
// RetryInterval up to 2s.
func (c Config) backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * c.RetryInterval
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
