package emulator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/ideamans/go-sheetwidget"
)

// Host is an in-process spreadsheet host. It keeps a table in a Store, backs
// it with a Backend and talks to a widget through the same raw callbacks a
// real host uses, including the redundant deliveries and write echoes.
type Host struct {
	config  Config
	backend Backend
	store   *Store
	logger  *slog.Logger
	clock   clock.Clock

	// writeMu serializes writes with backend syncs.
	writeMu sync.Mutex

	mu          sync.Mutex
	closed      bool
	loaded      bool
	payload     *sheetwidget.ReadyPayload
	cursor      int
	mapping     sheetwidget.ColumnMapping
	filter      Filter
	options     sheetwidget.Options
	interaction sheetwidget.InteractionOptions
	visible     bool

	onRecord     func(*sheetwidget.Record, sheetwidget.ColumnMapping)
	onRecords    func([]*sheetwidget.Record, sheetwidget.ColumnMapping)
	onNewRecord  func(sheetwidget.ColumnMapping)
	onOptions    func(sheetwidget.Options, sheetwidget.InteractionOptions)
	onVisibility func(bool)

	syncManager *SyncManager
}

var (
	_ sheetwidget.Host               = (*Host)(nil)
	_ sheetwidget.CursorMover        = (*Host)(nil)
	_ sheetwidget.VisibilityNotifier = (*Host)(nil)
)

// New creates an emulated host over the given backend. Call Load to read
// the table.
func New(backend Backend, config *Config) *Host {
	if config == nil {
		config = &Config{}
	}
	cfg := config.withDefaults()

	interaction := sheetwidget.InteractionOptions{}
	for k, v := range cfg.Interaction {
		interaction[k] = v
	}

	h := &Host{
		config:      cfg,
		backend:     backend,
		store:       NewStore(),
		logger:      cfg.Logger.With(slog.String("component", "emulator")),
		clock:       cfg.Clock,
		mapping:     sheetwidget.ColumnMapping{},
		options:     sheetwidget.Options{},
		interaction: interaction,
		visible:     true,
	}

	if cfg.SyncInterval > 0 {
		h.syncManager = NewSyncManager(h, cfg.SyncInterval)
		h.syncManager.Start()
	}
	return h
}

// Store returns the table behind the host.
func (h *Host) Store() *Store {
	return h.store
}

// Load reads the table and the stored widget options from the backend,
// selects the first visible record and delivers everything to the widget.
func (h *Host) Load(ctx context.Context) error {
	records, schema, err := h.loadFromBackend(ctx)
	if err != nil {
		return err
	}
	h.store.Load(records, schema)

	if err := h.loadOptions(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.loaded = true
	h.fixCursorLocked()
	h.mu.Unlock()

	h.logger.Debug("loaded", slog.Int("records", len(records)), slog.Int("columns", len(schema)))
	h.deliverAll()
	return nil
}

// Reload reads the backend again after an external change. Local edits that
// are not synced yet are kept.
func (h *Host) Reload(ctx context.Context) error {
	records, schema, err := h.loadFromBackend(ctx)
	if err != nil {
		return err
	}
	h.store.Refresh(records, schema)

	if err := h.loadOptions(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.loaded = true
	h.fixCursorLocked()
	h.mu.Unlock()

	h.logger.Debug("reloaded", slog.Int("records", h.store.Size()))
	h.deliverAll()
	return nil
}

// loadFromBackend loads data from the backend with retry logic
func (h *Host) loadFromBackend(ctx context.Context) ([]*sheetwidget.Record, []string, error) {
	var records []*sheetwidget.Record
	var schema []string
	err := h.retry(ctx, "load", func() error {
		var err error
		records, schema, err = h.backend.Load(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return records, schema, nil
}

func (h *Host) loadOptions(ctx context.Context) error {
	store, ok := h.backend.(OptionStore)
	if !ok {
		return nil
	}
	var options sheetwidget.Options
	err := h.retry(ctx, "load options", func() error {
		var err error
		options, err = store.LoadOptions(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if options == nil {
		options = sheetwidget.Options{}
	}

	h.mu.Lock()
	h.options = options
	h.mu.Unlock()
	return nil
}

// retry runs fn until it succeeds, backing off exponentially between
// attempts.
func (h *Host) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for i := 0; i <= h.config.MaxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == h.config.MaxRetries {
			break
		}

		backoff := h.config.backoff(i)
		h.logger.Warn("backend call failed, retrying",
			slog.String("call", what), slog.Int("attempt", i+1), slog.Duration("backoff", backoff), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.clock.After(backoff):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", what, h.config.MaxRetries, err)
}

// Sync writes pending edits to the backend.
func (h *Host) Sync(ctx context.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return h.saveToBackend(ctx)
}

// saveToBackend saves pending edits with retry logic
func (h *Host) saveToBackend(ctx context.Context) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if !h.store.HasChanges() {
		return nil
	}

	var save func() error
	switch h.config.Strategy {
	case SyncFull:
		records, schema := h.store.All(), h.store.Schema()
		save = func() error { return h.backend.Save(ctx, records, schema) }
	default:
		ops := h.store.Changes()
		save = func() error { return h.backend.BatchUpdate(ctx, ops) }
	}

	if err := h.retry(ctx, "save", save); err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	h.store.ClearDirty()
	h.logger.Debug("synced")
	return nil
}

// Close stops the periodic sync and writes pending edits one last time.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	syncManager := h.syncManager
	h.syncManager = nil
	h.mu.Unlock()

	if syncManager != nil {
		syncManager.Stop()
	}
	if err := h.saveToBackend(ctx); err != nil {
		return fmt.Errorf("failed to sync on close: %w", err)
	}
	return nil
}

// Ready receives the widget's configuration handshake and delivers the
// current state, like a host does once the widget frame is configured.
func (h *Host) Ready(ctx context.Context, payload sheetwidget.ReadyPayload) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	p := payload
	p.Columns = append([]sheetwidget.ColumnSpec(nil), payload.Columns...)
	h.payload = &p
	h.interaction["accessLevel"] = string(payload.RequiredAccess)
	loaded := h.loaded
	h.mu.Unlock()

	h.logger.Debug("widget ready", slog.String("access", string(payload.RequiredAccess)), slog.Int("columns", len(payload.Columns)))
	if loaded {
		h.deliverAll()
	}
	return nil
}

// Configured returns the handshake the widget sent, if any.
func (h *Host) Configured() (sheetwidget.ReadyPayload, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.payload == nil {
		return sheetwidget.ReadyPayload{}, false
	}
	return *h.payload, true
}

func (h *Host) OnRecord(fn func(*sheetwidget.Record, sheetwidget.ColumnMapping)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecord = fn
}

func (h *Host) OnRecords(fn func([]*sheetwidget.Record, sheetwidget.ColumnMapping)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRecords = fn
}

func (h *Host) OnNewRecord(fn func(sheetwidget.ColumnMapping)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNewRecord = fn
}

func (h *Host) OnOptions(fn func(sheetwidget.Options, sheetwidget.InteractionOptions)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOptions = fn
}

func (h *Host) OnVisibilityChange(fn func(visible bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onVisibility = fn
}

// checkWrite fails when the host is closed or the widget did not ask for
// full access.
func (h *Host) checkWrite() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.payload != nil && h.payload.RequiredAccess != sheetwidget.AccessFull {
		return fmt.Errorf("%w: widget has %q access", ErrAccessDenied, h.payload.RequiredAccess)
	}
	return nil
}

// Create adds a record and echoes the new collection. The cursor stays.
func (h *Host) Create(ctx context.Context, fields map[string]interface{}, opts *sheetwidget.WriteOptions) (int, error) {
	if err := h.checkWrite(); err != nil {
		return 0, err
	}

	h.writeMu.Lock()
	record := h.store.Create(prepareFields(fields, opts))
	h.writeMu.Unlock()

	h.logger.Debug("record created", slog.Int("id", record.ID))
	h.deliverRecords()
	return record.ID, nil
}

// Update changes fields of a record and echoes the collection, and the
// cursor when the selected record changed.
func (h *Host) Update(ctx context.Context, id int, fields map[string]interface{}, opts *sheetwidget.WriteOptions) error {
	if err := h.checkWrite(); err != nil {
		return err
	}

	h.writeMu.Lock()
	err := h.store.Update(id, prepareFields(fields, opts))
	h.writeMu.Unlock()
	if err != nil {
		return err
	}

	h.logger.Debug("record updated", slog.Int("id", id), slog.Int("fields", len(fields)))
	h.deliverRecords()

	h.mu.Lock()
	selected := h.cursor == id
	h.mu.Unlock()
	if selected {
		h.deliverCursor()
	}
	return nil
}

// Delete removes a record, as a user deleting a row would. A selected
// record moves the cursor to the first visible one.
func (h *Host) Delete(ctx context.Context, id int) error {
	h.writeMu.Lock()
	err := h.store.Delete(id)
	h.writeMu.Unlock()
	if err != nil {
		return err
	}

	h.mu.Lock()
	selected := h.cursor == id
	h.fixCursorLocked()
	h.mu.Unlock()

	h.deliverRecords()
	if selected {
		h.deliverCursor()
	}
	return nil
}

func (h *Host) GetOption(ctx context.Context, key string) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.options[key]
	if !ok {
		return nil, nil
	}
	return sheetwidget.CloneValue(v), nil
}

func (h *Host) SetOption(ctx context.Context, key string, value interface{}) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	options := cloneOptions(h.options)
	options[key] = sheetwidget.CloneValue(value)
	h.mu.Unlock()

	return h.storeOptions(ctx, options)
}

func (h *Host) SetOptions(ctx context.Context, options sheetwidget.Options) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return h.storeOptions(ctx, cloneOptions(options))
}

// storeOptions persists options when the backend can, then echoes them.
func (h *Host) storeOptions(ctx context.Context, options sheetwidget.Options) error {
	if store, ok := h.backend.(OptionStore); ok {
		err := h.retry(ctx, "save options", func() error {
			return store.SaveOptions(ctx, options)
		})
		if err != nil {
			return err
		}
	}

	h.mu.Lock()
	h.options = options
	h.mu.Unlock()

	h.logger.Debug("options stored", slog.Int("count", len(options)))
	h.deliverOptions()
	return nil
}

// SetCursorPos selects a record on behalf of the widget.
func (h *Host) SetCursorPos(ctx context.Context, id int) error {
	if id == sheetwidget.NewRecordID {
		h.SelectNew()
		return nil
	}
	return h.Select(id)
}

// Select moves the cursor to a visible record. The record is delivered even
// when it was already selected.
func (h *Host) Select(id int) error {
	if _, err := h.store.Get(id); err != nil {
		return err
	}
	h.mu.Lock()
	if !h.filter.Matches(h.mustGet(id)) {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d is filtered out", ErrRecordNotFound, id)
	}
	h.cursor = id
	h.mu.Unlock()

	h.deliverCursor()
	return nil
}

// SelectNew moves the cursor to the "add new" row.
func (h *Host) SelectNew() {
	h.mu.Lock()
	h.cursor = sheetwidget.NewRecordID
	h.mu.Unlock()

	h.deliverCursor()
}

// Cursor returns the selected record id, NewRecordID or 0.
func (h *Host) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// SetMapping changes the column mapping, as a user editing the widget's
// column settings would, and delivers the data again.
func (h *Host) SetMapping(mapping sheetwidget.ColumnMapping) {
	h.mu.Lock()
	h.mapping = mapping.Clone()
	if h.mapping == nil {
		h.mapping = sheetwidget.ColumnMapping{}
	}
	h.mu.Unlock()

	h.deliverRecords()
	h.deliverCursor()
}

// Mapping returns the current column mapping.
func (h *Host) Mapping() sheetwidget.ColumnMapping {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mapping.Clone()
}

// SetFilter changes which records the widget's section shows.
func (h *Host) SetFilter(filter Filter) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}

	h.mu.Lock()
	h.filter = filter
	prev := h.cursor
	h.fixCursorLocked()
	moved := prev != h.cursor
	h.mu.Unlock()

	h.deliverRecords()
	if moved {
		h.deliverCursor()
	}
	return nil
}

// Records returns the records visible to the widget.
func (h *Host) Records() []*sheetwidget.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ApplyFilter(h.store.All(), h.filter)
}

// Options returns the stored widget options.
func (h *Host) Options() sheetwidget.Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneOptions(h.options)
}

// OpenOptionsEditor emulates the user opening the widget's options panel.
// It reports whether the widget registered an editor.
func (h *Host) OpenOptionsEditor() bool {
	h.mu.Lock()
	var fn func()
	if h.payload != nil {
		fn = h.payload.OnEditOptions
	}
	h.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// SetVisible hides or shows the widget's frame.
func (h *Host) SetVisible(visible bool) {
	h.mu.Lock()
	changed := h.visible != visible
	h.visible = visible
	fn := h.onVisibility
	h.mu.Unlock()

	if changed && fn != nil {
		fn(visible)
	}
}

// fixCursorLocked keeps the cursor on a visible record, falling back to the
// first one. The "add new" row is always visible.
func (h *Host) fixCursorLocked() {
	if h.cursor == sheetwidget.NewRecordID {
		return
	}
	visible := ApplyFilter(h.store.All(), h.filter)
	for _, r := range visible {
		if r.ID == h.cursor {
			return
		}
	}
	if len(visible) > 0 {
		h.cursor = visible[0].ID
	} else {
		h.cursor = 0
	}
}

func (h *Host) mustGet(id int) *sheetwidget.Record {
	r, _ := h.store.Get(id)
	return r
}

func (h *Host) deliverAll() {
	h.deliverOptions()
	h.deliverRecords()
	h.deliverCursor()
}

func (h *Host) deliverRecords() {
	h.mu.Lock()
	fn := h.onRecords
	if fn == nil || !h.loaded {
		h.mu.Unlock()
		return
	}
	records := ApplyFilter(h.store.All(), h.filter)
	mapping := h.mapping.Clone()
	h.mu.Unlock()

	fn(records, mapping)
}

func (h *Host) deliverCursor() {
	h.mu.Lock()
	if !h.loaded {
		h.mu.Unlock()
		return
	}
	cursor := h.cursor
	mapping := h.mapping.Clone()
	onRecord, onNewRecord := h.onRecord, h.onNewRecord
	h.mu.Unlock()

	switch {
	case cursor == sheetwidget.NewRecordID:
		if onNewRecord != nil {
			onNewRecord(mapping)
		}
	case cursor > 0:
		record, err := h.store.Get(cursor)
		if err == nil && onRecord != nil {
			onRecord(record, mapping)
		}
	}
}

func (h *Host) deliverOptions() {
	h.mu.Lock()
	fn := h.onOptions
	if fn == nil || !h.loaded {
		h.mu.Unlock()
		return
	}
	options := cloneOptions(h.options)
	interaction := sheetwidget.InteractionOptions(cloneOptions(sheetwidget.Options(h.interaction)))
	h.mu.Unlock()

	fn(options, interaction)
}

func cloneOptions(o sheetwidget.Options) sheetwidget.Options {
	out := make(sheetwidget.Options, len(o))
	for k, v := range o {
		out[k] = sheetwidget.CloneValue(v)
	}
	return out
}

// prepareFields drops the id column and, with ParseStrings, turns strings
// into the numbers or booleans they spell.
func prepareFields(fields map[string]interface{}, opts *sheetwidget.WriteOptions) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		if s, ok := v.(string); ok && opts != nil && opts.ParseStrings {
			v = parseCellString(s)
		}
		out[k] = sheetwidget.CloneValue(v)
	}
	return out
}

// parseCellString converts user input to a cell value
func parseCellString(val string) interface{} {
	if i, err := strconv.ParseInt(val, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	if val == "true" || val == "TRUE" {
		return true
	}
	if val == "false" || val == "FALSE" {
		return false
	}
	return val
}
