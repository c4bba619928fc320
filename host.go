package sheetwidget

import "context"

// Access is the access level a widget asks the host for.
type Access string

const (
	AccessNone      Access = "none"
	AccessReadTable Access = "read table"
	AccessFull      Access = "full"
)

// ColumnSpec declares one logical column role the user can map.
type ColumnSpec struct {
	Name          string `json:"name" yaml:"name" mapstructure:"name"`
	Title         string `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`
	Type          string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"` // Text, Int, Bool, Any, "Text,Choice"...
	Description   string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Optional      bool   `json:"optional,omitempty" yaml:"optional,omitempty" mapstructure:"optional"`
	StrictType    bool   `json:"strictType,omitempty" yaml:"strict_type,omitempty" mapstructure:"strict_type"`
	AllowMultiple bool   `json:"allowMultiple,omitempty" yaml:"allow_multiple,omitempty" mapstructure:"allow_multiple"`
}

// ReadyPayload is the configuration handshake sent to the host.
type ReadyPayload struct {
	RequiredAccess Access
	Columns        []ColumnSpec
	AllowSelectBy  bool
	// OnEditOptions is called by the host when the user opens the widget's
	// configuration UI.
	OnEditOptions func()
}

// Options is the widget-local configuration stored in the host document.
type Options map[string]interface{}

// InteractionOptions describes how the host lets the user interact with the
// widget (access level, theme...).
type InteractionOptions map[string]interface{}

// WriteOptions are passed through to the host's create/update primitives.
type WriteOptions struct {
	// ParseStrings asks the host to parse string values into the column type.
	ParseStrings bool
}

// Host is the spreadsheet application embedding the widget. Callbacks may be
// invoked many times with identical snapshots.
type Host interface {
	// Ready performs the configuration handshake.
	Ready(ctx context.Context, payload ReadyPayload) error

	OnRecord(fn func(record *Record, mapping ColumnMapping))
	OnRecords(fn func(records []*Record, mapping ColumnMapping))
	OnNewRecord(fn func(mapping ColumnMapping))
	OnOptions(fn func(options Options, interaction InteractionOptions))

	// Create adds a record and returns its id.
	Create(ctx context.Context, fields map[string]interface{}, opts *WriteOptions) (int, error)
	// Update changes fields of an existing record.
	Update(ctx context.Context, id int, fields map[string]interface{}, opts *WriteOptions) error

	GetOption(ctx context.Context, key string) (interface{}, error)
	SetOption(ctx context.Context, key string, value interface{}) error
	SetOptions(ctx context.Context, options Options) error
}

// CursorMover is implemented by hosts that let the widget move the cursor.
type CursorMover interface {
	SetCursorPos(ctx context.Context, id int) error
}

// VisibilityNotifier is implemented by hosts that report when the widget's
// frame is hidden or shown.
type VisibilityNotifier interface {
	OnVisibilityChange(fn func(visible bool))
}
