package excel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn whenever the Excel file is changed by someone else. Writes
// made through this backend are ignored. The watch is registered before Watch
// returns and stops when ctx is done.
//
// The directory is watched rather than the file, as spreadsheet applications
// replace the file on save.
func (b *Backend) Watch(ctx context.Context, fn func()) error {
	path, err := filepath.Abs(b.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		b.watchLoop(ctx, path, watcher.Events, watcher.Errors, fn)
	}()
	return nil
}

// watchLoop filters watcher events down to foreign changes of path. Watcher
// errors are logged and the watch goes on.
func (b *Backend) watchLoop(ctx context.Context, path string, events <-chan fsnotify.Event, errs <-chan error, fn func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if b.ownWrite() {
				continue
			}
			fn()
		case err, ok := <-errs:
			if !ok {
				return
			}
			b.config.Logger.Warn("watch error", slog.String("file", path), slog.String("error", err.Error()))
		}
	}
}

// ownWrite reports whether the file is still the one we wrote last.
func (b *Backend) ownWrite() bool {
	info, err := os.Stat(b.config.FilePath)
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.lastWrite.IsZero() && info.ModTime().Equal(b.lastWrite)
}
