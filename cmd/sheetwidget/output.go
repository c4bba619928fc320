package main

import (
	"io"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ideamans/go-sheetwidget"
)

// yamlWriter writes one YAML document per call. It is safe for concurrent use.
type yamlWriter struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

func newYAMLWriter(w io.Writer) *yamlWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &yamlWriter{enc: enc}
}

func (y *yamlWriter) write(doc interface{}) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.enc.Encode(doc)
}

func (y *yamlWriter) close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.enc.Close()
}

type recordDoc struct {
	ID     int                    `yaml:"id"`
	Values map[string]interface{} `yaml:"values"`
	Fields map[string]interface{} `yaml:"fields,omitempty"`
}

type changeDoc struct {
	Old interface{} `yaml:"old"`
	New interface{} `yaml:"new"`
}

type fieldDeltaDoc struct {
	Added   map[string]interface{} `yaml:"added,omitempty"`
	Changed map[string]changeDoc   `yaml:"changed,omitempty"`
	Removed map[string]interface{} `yaml:"removed,omitempty"`
}

type recordsDeltaDoc struct {
	Added   map[int]map[string]interface{} `yaml:"added,omitempty"`
	Changed map[int]fieldDeltaDoc          `yaml:"changed,omitempty"`
	Removed map[int]map[string]interface{} `yaml:"removed,omitempty"`
}

type eventDoc struct {
	ID      string                 `yaml:"id"`
	Type    sheetwidget.EventType  `yaml:"type"`
	Time    time.Time              `yaml:"time"`
	Cursor  *recordDoc             `yaml:"cursor,omitempty"`
	Records []int                  `yaml:"records,omitempty"`
	Mapping map[string]string      `yaml:"mapping,omitempty"`
	Options map[string]interface{} `yaml:"options,omitempty"`
	Delta   *recordsDeltaDoc       `yaml:"delta,omitempty"`
	Field   *fieldDeltaDoc         `yaml:"field_delta,omitempty"`
	Visible *bool                  `yaml:"visible,omitempty"`
}

func newRecordDoc(r *sheetwidget.Record, mapping sheetwidget.ColumnMapping) *recordDoc {
	if r == nil {
		return nil
	}
	doc := &recordDoc{ID: r.ID, Values: r.Values}
	if len(mapping) > 0 && !r.IsNew() {
		doc.Fields = make(map[string]interface{}, len(mapping))
		for role := range mapping {
			if v := sheetwidget.GetField(r, mapping, role); v.Mapped {
				doc.Fields[role] = v.Value
			}
		}
	}
	return doc
}

func newFieldDeltaDoc(d *sheetwidget.FieldDelta) *fieldDeltaDoc {
	if !d.HasAnyChanges() {
		return nil
	}
	doc := &fieldDeltaDoc{Added: d.Added, Removed: d.Removed}
	if len(d.Changed) > 0 {
		doc.Changed = make(map[string]changeDoc, len(d.Changed))
		for k, c := range d.Changed {
			doc.Changed[k] = changeDoc{Old: c.Old, New: c.New}
		}
	}
	return doc
}

func newRecordsDeltaDoc(d *sheetwidget.RecordsDelta) *recordsDeltaDoc {
	doc := &recordsDeltaDoc{}
	if d == nil {
		return doc
	}
	if len(d.Added) > 0 {
		doc.Added = make(map[int]map[string]interface{}, len(d.Added))
		for id, r := range d.Added {
			doc.Added[id] = r.Values
		}
	}
	if len(d.Changed) > 0 {
		doc.Changed = make(map[int]fieldDeltaDoc, len(d.Changed))
		for id, fd := range d.Changed {
			if fdd := newFieldDeltaDoc(fd); fdd != nil {
				doc.Changed[id] = *fdd
			}
		}
	}
	if len(d.Removed) > 0 {
		doc.Removed = make(map[int]map[string]interface{}, len(d.Removed))
		for id, r := range d.Removed {
			doc.Removed[id] = r.Values
		}
	}
	return doc
}

func newEventDoc(ev sheetwidget.Event) eventDoc {
	doc := eventDoc{
		ID:     ev.ID,
		Type:   ev.Type,
		Time:   ev.Time,
		Cursor: newRecordDoc(ev.State.Cursor, ev.State.Mapping),
	}

	switch ev.Type {
	case sheetwidget.EventReady:
		doc.Records = recordIDs(ev.State.Records)
		doc.Mapping = ev.State.Mapping
		doc.Options = ev.State.Options
	case sheetwidget.EventRecordsModified:
		doc.Records = recordIDs(ev.State.Records)
		doc.Delta = newRecordsDeltaDoc(ev.Delta)
	case sheetwidget.EventMappingsChanged:
		doc.Mapping = ev.State.Mapping
		doc.Field = newFieldDeltaDoc(ev.MappingDelta)
	case sheetwidget.EventOptionsChanged:
		doc.Options = ev.State.Options
		doc.Field = newFieldDeltaDoc(ev.OptionsDelta)
	case sheetwidget.EventInteractionOptionsChanged:
		doc.Options = ev.State.InteractionOptions
		doc.Field = newFieldDeltaDoc(ev.OptionsDelta)
	case sheetwidget.EventWidgetHidden, sheetwidget.EventWidgetShown:
		visible := ev.Type == sheetwidget.EventWidgetShown
		doc.Visible = &visible
	}
	return doc
}

func recordIDs(records []*sheetwidget.Record) []int {
	ids := make([]int, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	sort.Ints(ids)
	return ids
}
