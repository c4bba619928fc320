package sheetwidget

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an application event dispatched by a Widget.
type EventType string

const (
	EventReady                     EventType = "ready"
	EventCursorMoved               EventType = "cursorMoved"
	EventCursorMovedToNew          EventType = "cursorMovedToNew"
	EventRecordsModified           EventType = "recordsModified"
	EventMappingsChanged           EventType = "mappingsChanged"
	EventOptionsChanged            EventType = "optionsChanged"
	EventInteractionOptionsChanged EventType = "interactionOptionsChanged"
	EventOptionsEditorRequested    EventType = "optionsEditorRequested"
	EventWidgetHidden              EventType = "widgetHidden"
	EventWidgetShown               EventType = "widgetShown"
)

// Snapshot is a read-only copy of the adapter state at the time an event was
// dispatched. Prev fields hold the values before the last update of their
// category.
type Snapshot struct {
	Cursor      *Record
	PrevCursor  *Record
	Records     []*Record
	PrevRecords []*Record
	Mapping     ColumnMapping
	PrevMapping ColumnMapping
	Options     Options
	PrevOptions Options

	InteractionOptions     InteractionOptions
	PrevInteractionOptions InteractionOptions
}

// Event is dispatched to handlers registered with Widget.On.
type Event struct {
	ID    string
	Type  EventType
	Time  time.Time
	State Snapshot
	// Delta is set for EventRecordsModified.
	Delta *RecordsDelta
	// MappingDelta is set for EventMappingsChanged.
	MappingDelta *FieldDelta
	// OptionsDelta is set for EventOptionsChanged and EventInteractionOptionsChanged.
	OptionsDelta *FieldDelta
}

// Handler receives widget events.
type Handler func(Event)

func newEvent(t EventType, now time.Time, state Snapshot) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  t,
		Time:  now,
		State: state,
	}
}

func cloneOptions(o map[string]interface{}) map[string]interface{} {
	if o == nil {
		return nil
	}
	out := make(map[string]interface{}, len(o))
	for k, v := range o {
		out[k] = CloneValue(v)
	}
	return out
}

func mappingAsDict(m ColumnMapping) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for role, col := range m {
		out[role] = col
	}
	return out
}
