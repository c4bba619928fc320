package emulator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ideamans/go-sheetwidget"
)

// Store manages the in-memory table of an emulated host, keyed by record id
type Store struct {
	mu      sync.RWMutex
	data    map[int]*sheetwidget.Record
	dirty   map[int]bool                // changed since the last sync
	added   map[int]bool                // created since the last sync
	deleted map[int]*sheetwidget.Record // removed since the last sync
	schema  []string                    // column order, without "id"
}

// NewStore creates a new Store instance
func NewStore() *Store {
	return &Store{
		data:    make(map[int]*sheetwidget.Record),
		dirty:   make(map[int]bool),
		added:   make(map[int]bool),
		deleted: make(map[int]*sheetwidget.Record),
		schema:  []string{},
	}
}

// Get retrieves a record by id
func (s *Store) Get(id int) (*sheetwidget.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.data[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	return record.Clone(), nil
}

// Set stores or replaces a record
func (s *Store) Set(record *sheetwidget.Record) error {
	if record == nil || record.ID <= 0 {
		return fmt.Errorf("%w: record needs a positive id", sheetwidget.ErrInvalidRecordID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[record.ID]; !exists {
		s.added[record.ID] = true
	}
	s.data[record.ID] = record.Clone()
	s.dirty[record.ID] = true
	delete(s.deleted, record.ID)
	s.updateSchema(record)
	return nil
}

// Create adds a record with the next free id and returns a copy of it
func (s *Store) Create(values map[string]interface{}) *sheetwidget.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &sheetwidget.Record{ID: s.nextIDLocked(), Values: make(map[string]interface{}, len(values))}
	for k, v := range values {
		if v != nil {
			record.Values[k] = v
		}
	}
	s.data[record.ID] = record
	s.dirty[record.ID] = true
	s.added[record.ID] = true
	s.updateSchema(record)
	return record.Clone()
}

// Append adds a record with its own id (fails if the id already exists)
func (s *Store) Append(record *sheetwidget.Record) error {
	if record == nil || record.ID <= 0 {
		return fmt.Errorf("%w: record needs a positive id", sheetwidget.ErrInvalidRecordID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[record.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, record.ID)
	}
	s.data[record.ID] = record.Clone()
	s.dirty[record.ID] = true
	s.added[record.ID] = true
	delete(s.deleted, record.ID)
	s.updateSchema(record)
	return nil
}

// Update partially updates a record. A nil value clears the cell.
func (s *Store) Update(id int, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.data[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	updated := record.Clone()
	if updated.Values == nil {
		updated.Values = make(map[string]interface{})
	}
	for k, v := range updates {
		if v == nil {
			delete(updated.Values, k)
		} else {
			updated.Values[k] = v
		}
	}

	s.data[id] = updated
	s.dirty[id] = true
	s.updateSchema(updated)
	return nil
}

// Delete removes a record
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.data[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}

	delete(s.data, id)
	delete(s.dirty, id)
	if s.added[id] {
		// Never reached the backend.
		delete(s.added, id)
	} else {
		s.deleted[id] = record
	}
	return nil
}

// Query returns the records matching the filter, sorted by id
func (s *Store) Query(filter Filter) ([]*sheetwidget.Record, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	return ApplyFilter(s.All(), filter), nil
}

// All returns copies of all records sorted by id
func (s *Store) All() []*sheetwidget.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*sheetwidget.Record, 0, len(s.data))
	for _, record := range s.data {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records
}

// Changes returns the operations that bring the backend up to date: adds,
// then updates, then deletes, each sorted by id.
func (s *Store) Changes() []Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var adds, updates, deletes []Operation
	for _, id := range sortedIDs(s.dirty) {
		op := Operation{Type: OpUpdate, Record: s.data[id].Clone()}
		if s.added[id] {
			op.Type = OpAdd
			adds = append(adds, op)
		} else {
			updates = append(updates, op)
		}
	}
	deletedIDs := make([]int, 0, len(s.deleted))
	for id := range s.deleted {
		deletedIDs = append(deletedIDs, id)
	}
	sort.Ints(deletedIDs)
	for _, id := range deletedIDs {
		deletes = append(deletes, Operation{Type: OpDelete, Record: s.deleted[id].Clone()})
	}

	ops := make([]Operation, 0, len(adds)+len(updates)+len(deletes))
	ops = append(ops, adds...)
	ops = append(ops, updates...)
	return append(ops, deletes...)
}

// HasChanges reports whether anything is waiting to be synced
func (s *Store) HasChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty) > 0 || len(s.deleted) > 0
}

// DirtyIDs returns ids of modified records
func (s *Store) DirtyIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.dirty)
}

// ClearDirty marks all records as synced
func (s *Store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = make(map[int]bool)
	s.added = make(map[int]bool)
	s.deleted = make(map[int]*sheetwidget.Record)
}

// Schema returns the current column order
func (s *Store) Schema() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema := make([]string, len(s.schema))
	copy(schema, s.schema)
	return schema
}

// SetSchema sets the column order
func (s *Store) SetSchema(schema []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schema = make([]string, 0, len(schema))
	for _, col := range schema {
		if col != "id" {
			s.schema = append(s.schema, col)
		}
	}
}

// Load replaces all data with the provided records
func (s *Store) Load(records []*sheetwidget.Record, schema []string) {
	s.mu.Lock()
	s.data = make(map[int]*sheetwidget.Record)
	s.dirty = make(map[int]bool)
	s.added = make(map[int]bool)
	s.deleted = make(map[int]*sheetwidget.Record)
	for _, record := range records {
		if record != nil {
			s.data[record.ID] = record.Clone()
		}
	}
	s.mu.Unlock()

	s.SetSchema(schema)
}

// Refresh replaces the synced records with the provided ones. Records with
// unsynced local edits, and local deletions, win over the fresh data.
func (s *Store) Refresh(records []*sheetwidget.Record, schema []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make(map[int]*sheetwidget.Record, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		if _, gone := s.deleted[record.ID]; gone {
			continue
		}
		data[record.ID] = record.Clone()
	}
	for id := range s.dirty {
		data[id] = s.data[id]
	}
	s.data = data

	s.schema = MergeSchemas(s.schema, schema)
	for _, record := range data {
		s.updateSchema(record)
	}
}

// Size returns the number of records
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// NextID returns the id the next created record gets
func (s *Store) NextID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() int {
	maxID := 0
	for id := range s.data {
		if id > maxID {
			maxID = id
		}
	}
	for id := range s.deleted {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// Clear removes all data
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[int]*sheetwidget.Record)
	s.dirty = make(map[int]bool)
	s.added = make(map[int]bool)
	s.deleted = make(map[int]*sheetwidget.Record)
	s.schema = []string{}
}

// updateSchema appends columns of the record that are not known yet
func (s *Store) updateSchema(record *sheetwidget.Record) {
	existing := make(map[string]bool, len(s.schema))
	for _, col := range s.schema {
		existing[col] = true
	}

	for _, col := range record.Columns() {
		if !existing[col] && col != "id" {
			s.schema = append(s.schema, col)
			existing[col] = true
		}
	}
}

func sortedIDs(set map[int]bool) []int {
	ids := make([]int, 0, len(set))
	for id, ok := range set {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// MergeSchemas merges the current column order with the backend's, keeping
// the backend order first and appending local-only columns.
func MergeSchemas(current, backend []string) []string {
	result := make([]string, 0, len(current)+len(backend))
	seen := make(map[string]bool)

	for _, col := range backend {
		if col != "id" && !seen[col] {
			result = append(result, col)
			seen[col] = true
		}
	}
	for _, col := range current {
		if col != "id" && !seen[col] {
			result = append(result, col)
			seen[col] = true
		}
	}
	return result
}
