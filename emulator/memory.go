package emulator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ideamans/go-sheetwidget"
)

// MemoryBackend keeps the table in memory. It is used by tests and demos,
// and can be told to fail to exercise retries.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[int]*sheetwidget.Record
	schema  []string
	options sheetwidget.Options

	// FailNext makes the next n backend calls fail with Err.
	FailNext int
	Err      error

	Loads, Saves, Batches int
}

var (
	_ Backend     = (*MemoryBackend)(nil)
	_ OptionStore = (*MemoryBackend)(nil)
)

// NewMemoryBackend creates a backend holding the given records.
func NewMemoryBackend(records []*sheetwidget.Record, schema []string) *MemoryBackend {
	b := &MemoryBackend{
		records: make(map[int]*sheetwidget.Record),
		schema:  append([]string(nil), schema...),
		options: sheetwidget.Options{},
	}
	for _, r := range records {
		b.records[r.ID] = r.Clone()
	}
	return b
}

func (b *MemoryBackend) fail() error {
	if b.FailNext <= 0 {
		return nil
	}
	b.FailNext--
	if b.Err != nil {
		return b.Err
	}
	return fmt.Errorf("memory backend: injected failure")
}

func (b *MemoryBackend) Load(ctx context.Context) ([]*sheetwidget.Record, []string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Loads++
	if err := b.fail(); err != nil {
		return nil, nil, err
	}
	return b.sortedLocked(), append([]string(nil), b.schema...), nil
}

func (b *MemoryBackend) Save(ctx context.Context, records []*sheetwidget.Record, schema []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Saves++
	if err := b.fail(); err != nil {
		return err
	}
	b.records = make(map[int]*sheetwidget.Record, len(records))
	for _, r := range records {
		b.records[r.ID] = r.Clone()
	}
	b.schema = append([]string(nil), schema...)
	return nil
}

func (b *MemoryBackend) BatchUpdate(ctx context.Context, operations []Operation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Batches++
	if err := b.fail(); err != nil {
		return err
	}
	for _, op := range operations {
		if op.Record == nil {
			continue
		}
		switch op.Type {
		case OpAdd, OpUpdate:
			b.records[op.Record.ID] = op.Record.Clone()
			b.schema = MergeSchemas(op.Record.Columns(), b.schema)
		case OpDelete:
			delete(b.records, op.Record.ID)
		}
	}
	return nil
}

func (b *MemoryBackend) LoadOptions(ctx context.Context) (sheetwidget.Options, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneOptions(b.options), nil
}

func (b *MemoryBackend) SaveOptions(ctx context.Context, options sheetwidget.Options) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(); err != nil {
		return err
	}
	b.options = cloneOptions(options)
	return nil
}

// Records returns what the backend currently holds, sorted by id.
func (b *MemoryBackend) Records() []*sheetwidget.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sortedLocked()
}

// Put stores a record directly, as an external edit would.
func (b *MemoryBackend) Put(record *sheetwidget.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[record.ID] = record.Clone()
}

func (b *MemoryBackend) sortedLocked() []*sheetwidget.Record {
	out := make([]*sheetwidget.Record, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
