package emulator

import (
	"context"

	"github.com/ideamans/go-sheetwidget"
)

// OperationType represents the type of operation
type OperationType int

const (
	OpAdd OperationType = iota
	OpUpdate
	OpDelete
)

func (t OperationType) String() string {
	switch t {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation represents a single record change sent to a backend
type Operation struct {
	Type   OperationType
	Record *sheetwidget.Record
}

// Backend persists the table behind an emulated host
type Backend interface {
	// Load retrieves all records and the column order
	Load(ctx context.Context) ([]*sheetwidget.Record, []string, error)

	// Save replaces all data with the provided records
	Save(ctx context.Context, records []*sheetwidget.Record, schema []string) error

	// BatchUpdate applies record changes in a single request
	BatchUpdate(ctx context.Context, operations []Operation) error
}

// OptionStore is implemented by backends that can keep widget options next
// to the table.
type OptionStore interface {
	LoadOptions(ctx context.Context) (sheetwidget.Options, error)
	SaveOptions(ctx context.Context, options sheetwidget.Options) error
}
