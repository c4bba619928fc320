package sheetwidget

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WriteRecord persists fields into the record with the given id, or creates a
// record when id is NewRecordID. It returns the id of the written record.
// Host failures are wrapped in ErrWriteFailed and never retried.
func (w *Widget) WriteRecord(ctx context.Context, id int, fields map[string]interface{}, opts *WriteOptions) (int, error) {
	if !w.IsReady() {
		return 0, ErrNotReady
	}
	if id != NewRecordID && id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRecordID, id)
	}
	w.logger.Debug("write record", slog.Int("id", id), slog.Int("fields", len(fields)))

	if id == NewRecordID {
		newID, err := w.host.Create(ctx, fields, opts)
		if err != nil {
			return 0, fmt.Errorf("%w: create record: %w", ErrWriteFailed, err)
		}
		return newID, nil
	}
	if err := w.host.Update(ctx, id, fields, opts); err != nil {
		return 0, fmt.Errorf("%w: update record %d: %w", ErrWriteFailed, id, err)
	}
	return id, nil
}

// WriteCursor persists fields into the selected record. When the cursor sits
// on the "add new" row, a record is created.
func (w *Widget) WriteCursor(ctx context.Context, fields map[string]interface{}, opts *WriteOptions) (int, error) {
	id, err := w.cursorTarget()
	if err != nil {
		return 0, err
	}
	return w.WriteRecord(ctx, id, fields, opts)
}

// WriteCursorField writes a single role of the selected record.
func (w *Widget) WriteCursorField(ctx context.Context, role string, value interface{}, opts *WriteOptions) (int, error) {
	id, col, err := w.cursorColumn(role)
	if err != nil {
		return 0, err
	}
	return w.WriteRecord(ctx, id, map[string]interface{}{col: value}, opts)
}

// DefaultWriteDelay asks a Schedule call to wait Config.WriteDelay. Any
// negative delay does the same.
const DefaultWriteDelay time.Duration = -1

// ScheduleWriteRecord debounces a write: a pending write for the same id is
// dropped and the timer restarts. A zero delay runs the write on the next
// scheduler tick and a negative one uses Config.WriteDelay.
func (w *Widget) ScheduleWriteRecord(id int, fields map[string]interface{}, delay time.Duration) error {
	fields = copyFields(fields)
	return w.ScheduleRecordOperation(id, func(ctx context.Context, id int) error {
		_, err := w.WriteRecord(ctx, id, fields, nil)
		return err
	}, delay)
}

// ScheduleWriteCursor debounces a write into the selected record.
func (w *Widget) ScheduleWriteCursor(fields map[string]interface{}, delay time.Duration) error {
	id, err := w.cursorTarget()
	if err != nil {
		return err
	}
	return w.ScheduleWriteRecord(id, fields, delay)
}

// ScheduleWriteCursorField debounces a write of a single role of the selected
// record. The role is resolved immediately.
func (w *Widget) ScheduleWriteCursorField(role string, value interface{}, delay time.Duration) error {
	id, col, err := w.cursorColumn(role)
	if err != nil {
		return err
	}
	return w.ScheduleWriteRecord(id, map[string]interface{}{col: value}, delay)
}

// ScheduleRecordOperation debounces an arbitrary operation bound to a record.
func (w *Widget) ScheduleRecordOperation(id int, fn func(ctx context.Context, id int) error, delay time.Duration) error {
	if id != NewRecordID && id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRecordID, id)
	}
	if delay < 0 {
		delay = w.config.WriteDelay
	}
	w.logger.Debug("schedule record operation", slog.Int("id", id), slog.Duration("delay", delay))
	w.writes.Schedule(id, delay, func(ctx context.Context) error {
		return fn(ctx, id)
	})
	return nil
}

// RunScheduledWritesNow runs the pending operations of the given records, or
// of every record when no id is given.
func (w *Widget) RunScheduledWritesNow(ctx context.Context, ids ...int) error {
	w.logger.Debug("run scheduled writes now", slog.Any("ids", ids))
	return w.writes.RunNow(ctx, ids...)
}

// CancelScheduledWrite drops the pending operation of a record.
func (w *Widget) CancelScheduledWrite(id int) bool {
	return w.writes.Cancel(id)
}

// PendingWrites returns the ids with a pending operation.
func (w *Widget) PendingWrites() []int {
	return w.writes.Pending()
}

func (w *Widget) scheduledWriteFailed(id int, err error) {
	w.logger.Error("scheduled write failed", slog.Int("id", id), slog.String("error", err.Error()))
	if w.config.OnWriteError != nil {
		w.config.OnWriteError(id, err)
	}
}

// MoveCursor asks the host to select another record. The host reports the
// move back through its record callback.
func (w *Widget) MoveCursor(ctx context.Context, id int) error {
	mover, ok := w.host.(CursorMover)
	if !ok {
		return ErrNoCursorMover
	}
	if id != NewRecordID && id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRecordID, id)
	}
	if id == w.CursorID() {
		return nil
	}
	return mover.SetCursorPos(ctx, id)
}

// GetOption reads a widget option stored in the host document.
func (w *Widget) GetOption(ctx context.Context, key string) (interface{}, error) {
	return w.host.GetOption(ctx, key)
}

// SetOption stores a widget option in the host document.
func (w *Widget) SetOption(ctx context.Context, key string, value interface{}) error {
	w.logger.Debug("set option", slog.String("key", key))
	return w.host.SetOption(ctx, key, value)
}

// SetOptions replaces all widget options stored in the host document.
func (w *Widget) SetOptions(ctx context.Context, options Options) error {
	w.logger.Debug("set options", slog.Int("count", len(options)))
	return w.host.SetOptions(ctx, options)
}

func (w *Widget) cursorTarget() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cursor == nil {
		return 0, ErrNoCursor
	}
	if w.cursor.IsNew() {
		return NewRecordID, nil
	}
	return w.cursor.ID, nil
}

func (w *Widget) cursorColumn(role string) (int, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cursor == nil {
		return 0, "", ErrNoCursor
	}
	col, ok := w.mapping.Resolve(role, w.sampleLocked())
	if !ok {
		return 0, "", fmt.Errorf("%w: %s", ErrNotMapped, role)
	}
	if w.cursor.IsNew() {
		return NewRecordID, col, nil
	}
	return w.cursor.ID, col, nil
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
