package sheetwidget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
)

// State is the lifecycle state of a Widget.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingSnapshots
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingSnapshots:
		return "awaiting-snapshots"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Message names a raw host callback.
type Message string

const (
	MessageRecord    Message = "onRecord"
	MessageRecords   Message = "onRecords"
	MessageNewRecord Message = "onNewRecord"
	MessageOptions   Message = "onOptions"
)

// Widget turns the host's raw, redundant callback stream into de-duplicated
// application events and owns the write path back to the host.
type Widget struct {
	config Config
	host   Host
	logger *slog.Logger
	clock  clock.Clock

	mu          sync.Mutex
	state       State
	initialized map[Category]bool
	skips       map[Message]int

	cursor, prevCursor           *Record
	records, prevRecords         []*Record
	mapping, prevMapping         ColumnMapping
	options, prevOptions         Options
	interaction, prevInteraction InteractionOptions

	handlersMu sync.RWMutex
	handlers   map[EventType][]Handler

	// queue holds events in callback arrival order. Only one goroutine
	// drains it at a time.
	queueMu  sync.Mutex
	queue    []Event
	draining bool

	writes *Scheduler[int]
}

// New creates a Widget for the given host. Register handlers, then call
// Start to connect to the host.
func New(host Host, config *Config) (*Widget, error) {
	if host == nil {
		return nil, fmt.Errorf("host is required")
	}
	if config == nil {
		config = &Config{}
	}
	cfg := config.withDefaults()
	for _, c := range cfg.Required {
		switch c {
		case CategoryCursor, CategoryRecords, CategoryMappings, CategoryOptions:
		default:
			return nil, fmt.Errorf("unknown snapshot category %q", c)
		}
	}

	w := &Widget{
		config:      cfg,
		host:        host,
		logger:      cfg.Logger.With(slog.String("widget", cfg.Name)),
		clock:       cfg.Clock,
		state:       StateUninitialized,
		initialized: make(map[Category]bool),
		skips: map[Message]int{
			MessageRecord:    0,
			MessageRecords:   0,
			MessageNewRecord: 0,
			MessageOptions:   0,
		},
		handlers: make(map[EventType][]Handler),
	}
	w.writes = NewScheduler[int](context.Background(), cfg.Clock, w.scheduledWriteFailed)
	return w, nil
}

// Start registers the widget's callbacks with the host and performs the
// configuration handshake. Calling Start twice is a no-op.
func (w *Widget) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateUninitialized {
		w.mu.Unlock()
		return nil
	}
	w.state = StateAwaitingSnapshots
	w.mu.Unlock()

	w.host.OnRecord(w.handleRecord)
	w.host.OnRecords(w.handleRecords)
	w.host.OnNewRecord(w.handleNewRecord)
	w.host.OnOptions(w.handleOptions)
	if vn, ok := w.host.(VisibilityNotifier); ok {
		vn.OnVisibilityChange(w.handleVisibility)
	}

	if w.config.SkipReadyMessage {
		return nil
	}
	payload := ReadyPayload{
		RequiredAccess: w.config.RequiredAccess,
		Columns:        append([]ColumnSpec(nil), w.config.Columns...),
		AllowSelectBy:  w.config.AllowSelectBy,
		OnEditOptions:  w.handleEditOptions,
	}
	if err := w.host.Ready(ctx, payload); err != nil {
		return fmt.Errorf("ready handshake: %w", err)
	}
	w.logger.Debug("handshake sent", slog.String("access", string(payload.RequiredAccess)), slog.Int("columns", len(payload.Columns)))
	return nil
}

// Close runs pending scheduled writes and stops the scheduler.
func (w *Widget) Close(ctx context.Context) error {
	err := w.writes.RunNow(ctx)
	w.writes.Stop()
	return err
}

// SkipMessage discards the next n raw callbacks of the given kind. Use it
// before a write whose echo should not be processed.
func (w *Widget) SkipMessage(msg Message, n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.skips[msg]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg)
	}
	if n > 0 {
		w.skips[msg] += n
	}
	return nil
}

// PendingSkips returns how many callbacks of the given kind will be skipped.
func (w *Widget) PendingSkips(msg Message) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skips[msg]
}

// consumeSkip must be called with mu held.
func (w *Widget) consumeSkip(msg Message) bool {
	if w.skips[msg] > 0 {
		w.skips[msg]--
		w.logger.Debug("skipped host message", slog.String("message", string(msg)), slog.Int("remaining", w.skips[msg]))
		return true
	}
	return false
}

func (w *Widget) handleRecord(record *Record, mapping ColumnMapping) {
	w.logger.Debug("host message", slog.String("message", string(MessageRecord)), slog.Int("id", recordID(record)))

	w.mu.Lock()
	if w.consumeSkip(MessageRecord) {
		w.mu.Unlock()
		return
	}
	var events []Event
	events = w.updateMappings(mapping, events)
	events = w.updateCursor(record, events)
	events = w.finish(events)
	w.enqueue(events)
	w.mu.Unlock()

	w.drain()
}

func (w *Widget) handleNewRecord(mapping ColumnMapping) {
	w.logger.Debug("host message", slog.String("message", string(MessageNewRecord)))

	w.mu.Lock()
	if w.consumeSkip(MessageNewRecord) {
		w.mu.Unlock()
		return
	}
	var events []Event
	events = w.updateMappings(mapping, events)
	events = w.updateCursor(NewRecord(), events)
	events = w.finish(events)
	w.enqueue(events)
	w.mu.Unlock()

	w.drain()
}

func (w *Widget) handleRecords(records []*Record, mapping ColumnMapping) {
	w.logger.Debug("host message", slog.String("message", string(MessageRecords)), slog.Int("count", len(records)))

	w.mu.Lock()
	if w.consumeSkip(MessageRecords) {
		w.mu.Unlock()
		return
	}
	var events []Event
	events = w.updateMappings(mapping, events)
	events = w.updateRecords(records, events)
	events = w.finish(events)
	w.enqueue(events)
	w.mu.Unlock()

	w.drain()
}

func (w *Widget) handleOptions(options Options, interaction InteractionOptions) {
	w.logger.Debug("host message", slog.String("message", string(MessageOptions)))

	w.mu.Lock()
	if w.consumeSkip(MessageOptions) {
		w.mu.Unlock()
		return
	}
	var events []Event
	events = w.updateOptions(options, interaction, events)
	events = w.finish(events)
	w.enqueue(events)
	w.mu.Unlock()

	w.drain()
}

func (w *Widget) handleEditOptions() {
	w.logger.Debug("options editor requested")

	w.mu.Lock()
	w.enqueue([]Event{newEvent(EventOptionsEditorRequested, w.clock.Now(), w.snapshotLocked())})
	w.mu.Unlock()

	w.drain()
}

func (w *Widget) handleVisibility(visible bool) {
	t := EventWidgetShown
	if !visible {
		t = EventWidgetHidden
	}
	w.logger.Debug("visibility changed", slog.Bool("visible", visible))

	w.mu.Lock()
	ev := newEvent(t, w.clock.Now(), w.snapshotLocked())
	w.mu.Unlock()

	if !visible && w.config.FlushOnHide {
		if err := w.RunScheduledWritesNow(context.Background()); err != nil {
			w.logger.Error("flush on hide", slog.String("error", err.Error()))
		}
	}
	w.mu.Lock()
	w.enqueue([]Event{ev})
	w.mu.Unlock()
	w.drain()
}

// The update helpers must be called with mu held. They append an event only
// once the widget is ready and only when the category materially changed.

func (w *Widget) updateMappings(mapping ColumnMapping, events []Event) []Event {
	if mapping == nil {
		mapping = ColumnMapping{}
	}
	w.initialized[CategoryMappings] = true
	w.prevMapping, w.mapping = w.mapping, mapping.Clone()

	if w.state == StateReady && !w.prevMapping.Equal(w.mapping) {
		ev := Event{Type: EventMappingsChanged}
		ev.MappingDelta = CompareDicts(mappingAsDict(w.prevMapping), mappingAsDict(w.mapping))
		events = append(events, ev)
	}
	return events
}

func (w *Widget) updateCursor(record *Record, events []Event) []Event {
	w.initialized[CategoryCursor] = true
	w.prevCursor, w.cursor = w.cursor, record

	if w.state == StateReady && recordID(w.prevCursor) != recordID(w.cursor) {
		if w.cursor != nil && w.cursor.ID == NewRecordID {
			events = append(events, Event{Type: EventCursorMovedToNew})
		} else {
			events = append(events, Event{Type: EventCursorMoved})
		}
	}
	return events
}

func (w *Widget) updateRecords(records []*Record, events []Event) []Event {
	if records == nil {
		records = []*Record{}
	}
	w.initialized[CategoryRecords] = true
	w.prevRecords, w.records = w.records, records

	// The cursor snapshot follows the row it points at.
	if w.cursor != nil && !w.cursor.IsNew() {
		if fresh := FindRecord(records, w.cursor.ID); fresh != nil {
			w.cursor = fresh
		}
	}

	if w.state == StateReady {
		if delta := CompareRecordCollections(w.prevRecords, w.records); delta.HasAnyChanges() {
			events = append(events, Event{Type: EventRecordsModified, Delta: delta})
		}
	}
	return events
}

func (w *Widget) updateOptions(options Options, interaction InteractionOptions, events []Event) []Event {
	if options == nil {
		options = Options{}
	}
	if interaction == nil {
		interaction = InteractionOptions{}
	}
	w.initialized[CategoryOptions] = true
	w.prevOptions, w.options = w.options, Options(cloneOptions(options))
	w.prevInteraction, w.interaction = w.interaction, InteractionOptions(cloneOptions(interaction))

	if w.state != StateReady {
		return events
	}
	if !DictsEqual(w.prevOptions, w.options) {
		events = append(events, Event{Type: EventOptionsChanged, OptionsDelta: CompareDicts(w.prevOptions, w.options)})
	}
	if !DictsEqual(w.prevInteraction, w.interaction) {
		events = append(events, Event{Type: EventInteractionOptionsChanged, OptionsDelta: CompareDicts(w.prevInteraction, w.interaction)})
	}
	return events
}

// finish promotes the widget to ready when every required category has been
// delivered and stamps the collected events. Must be called with mu held.
func (w *Widget) finish(events []Event) []Event {
	if w.state == StateAwaitingSnapshots && w.allRequiredInitialized() {
		w.state = StateReady
		w.logger.Debug("ready", slog.Int("cursor", recordID(w.cursor)), slog.Int("records", len(w.records)))
		events = append(events, Event{Type: EventReady})
	}
	if len(events) == 0 {
		return nil
	}

	now := w.clock.Now()
	state := w.snapshotLocked()
	for i := range events {
		delta, mappingDelta, optionsDelta := events[i].Delta, events[i].MappingDelta, events[i].OptionsDelta
		events[i] = newEvent(events[i].Type, now, state)
		events[i].Delta, events[i].MappingDelta, events[i].OptionsDelta = delta, mappingDelta, optionsDelta
	}
	return events
}

func (w *Widget) allRequiredInitialized() bool {
	for _, c := range w.config.Required {
		if !w.initialized[c] {
			return false
		}
	}
	return true
}

// enqueue appends events to the dispatch queue. Must be called with mu held
// so that the queue order is the order in which callbacks were applied.
func (w *Widget) enqueue(events []Event) {
	if len(events) == 0 {
		return
	}
	w.queueMu.Lock()
	w.queue = append(w.queue, events...)
	w.queueMu.Unlock()
}

// drain runs queued events until the queue is empty. When another goroutine,
// or a handler further up this stack, is already draining, the events are
// left to it and drain returns at once.
func (w *Widget) drain() {
	w.queueMu.Lock()
	if w.draining {
		w.queueMu.Unlock()
		return
	}
	w.draining = true
	for len(w.queue) > 0 {
		ev := w.queue[0]
		w.queue[0] = Event{}
		w.queue = w.queue[1:]
		w.queueMu.Unlock()

		w.dispatch(ev)

		w.queueMu.Lock()
	}
	w.queue = nil
	w.draining = false
	w.queueMu.Unlock()
}

func (w *Widget) dispatch(ev Event) {
	w.handlersMu.RLock()
	handlers := append([]Handler(nil), w.handlers[ev.Type]...)
	w.handlersMu.RUnlock()

	w.logger.Debug("dispatch", slog.String("event", string(ev.Type)), slog.Int("handlers", len(handlers)))
	for _, h := range handlers {
		w.callHandler(h, ev)
	}
}

func (w *Widget) callHandler(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event handler panicked", slog.String("event", string(ev.Type)), slog.Any("panic", r))
		}
	}()
	h(ev)
}

// On registers a handler for an event type.
func (w *Widget) On(t EventType, h Handler) {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	w.handlers[t] = append(w.handlers[t], h)
}

func (w *Widget) OnReady(h Handler)                  { w.On(EventReady, h) }
func (w *Widget) OnCursorMoved(h Handler)            { w.On(EventCursorMoved, h) }
func (w *Widget) OnCursorMovedToNew(h Handler)       { w.On(EventCursorMovedToNew, h) }
func (w *Widget) OnRecordsModified(h Handler)        { w.On(EventRecordsModified, h) }
func (w *Widget) OnMappingsChanged(h Handler)        { w.On(EventMappingsChanged, h) }
func (w *Widget) OnOptionsChanged(h Handler)         { w.On(EventOptionsChanged, h) }
func (w *Widget) OnOptionsEditorRequested(h Handler) { w.On(EventOptionsEditorRequested, h) }
func (w *Widget) OnWidgetHidden(h Handler)           { w.On(EventWidgetHidden, h) }
func (w *Widget) OnWidgetShown(h Handler)            { w.On(EventWidgetShown, h) }

// OnReadyOrCursorMoved registers h for both the ready event and cursor moves,
// the usual entry point of widgets that render the selected record.
func (w *Widget) OnReadyOrCursorMoved(h Handler) {
	w.On(EventReady, h)
	w.On(EventCursorMoved, h)
}

// State returns the lifecycle state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsReady reports whether the ready event has been dispatched.
func (w *Widget) IsReady() bool {
	return w.State() == StateReady
}

// Snapshot returns a copy of the current and previous snapshots.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Widget) snapshotLocked() Snapshot {
	return Snapshot{
		Cursor:                 w.cursor.Clone(),
		PrevCursor:             w.prevCursor.Clone(),
		Records:                CloneRecords(w.records),
		PrevRecords:            CloneRecords(w.prevRecords),
		Mapping:                w.mapping.Clone(),
		PrevMapping:            w.prevMapping.Clone(),
		Options:                Options(cloneOptions(w.options)),
		PrevOptions:            Options(cloneOptions(w.prevOptions)),
		InteractionOptions:     InteractionOptions(cloneOptions(w.interaction)),
		PrevInteractionOptions: InteractionOptions(cloneOptions(w.prevInteraction)),
	}
}

// Cursor returns a copy of the selected record, or nil.
func (w *Widget) Cursor() *Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor.Clone()
}

// CursorID returns the id of the selected record, NewRecordID for the "add
// new" row, or 0 when nothing is selected.
func (w *Widget) CursorID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return recordID(w.cursor)
}

// PrevCursorID returns the id of the previously selected record.
func (w *Widget) PrevCursorID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return recordID(w.prevCursor)
}

// Records returns a copy of the current record collection.
func (w *Widget) Records() []*Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return CloneRecords(w.records)
}

// Mapping returns a copy of the current column mapping.
func (w *Widget) Mapping() ColumnMapping {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mapping.Clone()
}

// Options returns a copy of the current widget options.
func (w *Widget) Options() Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Options(cloneOptions(w.options))
}

// sampleLocked returns the record mappings are validated against: the
// cursor, or the first record when the cursor is unset or new.
func (w *Widget) sampleLocked() *Record {
	if w.cursor != nil && !w.cursor.IsNew() {
		return w.cursor
	}
	if len(w.records) > 0 {
		return w.records[0]
	}
	return nil
}

// HasMapping reports whether a role is mapped to a column the live data
// actually carries.
func (w *Widget) HasMapping(role string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.mapping.Resolve(role, w.sampleLocked())
	return ok
}

// GetRecordField reads a role from a record through the current mapping.
func (w *Widget) GetRecordField(record *Record, role string) (interface{}, error) {
	w.mu.Lock()
	mapping := w.mapping
	w.mu.Unlock()

	f := GetField(record, mapping, role)
	if !f.Mapped {
		return nil, fmt.Errorf("%w: %s", ErrNotMapped, role)
	}
	return f.Value, nil
}

// GetCursorField reads a role from the selected record.
func (w *Widget) GetCursorField(role string) (interface{}, error) {
	w.mu.Lock()
	cursor := w.cursor
	w.mu.Unlock()

	if cursor == nil {
		return nil, ErrNoCursor
	}
	return w.GetRecordField(cursor, role)
}

// MappedRecord returns a copy of record keyed by role.
func (w *Widget) MappedRecord(record *Record) *Record {
	w.mu.Lock()
	mapping := w.mapping
	w.mu.Unlock()
	return MapRecord(record, mapping)
}

// ValidateMapping checks the configured columns against the current mapping
// and live data.
func (w *Widget) ValidateMapping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ValidateMapping(w.mapping, w.config.Columns, w.sampleLocked())
}

func recordID(r *Record) int {
	if r == nil {
		return 0
	}
	return r.ID
}
