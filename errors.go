package sheetwidget

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotReady        = errors.New("widget is not ready")
	ErrUnknownMessage  = errors.New("unknown host message")
	ErrInvalidRecordID = errors.New("invalid record id")
	ErrNoCursor        = errors.New("no record selected")
	ErrNotMapped       = errors.New("column is not mapped")
	ErrUnmappedColumns = errors.New("required columns are not mapped")
	ErrWriteFailed     = errors.New("write failed")
	ErrNoCursorMover   = errors.New("host cannot move the cursor")
)

// ConfigError reports a column mapping the widget cannot work with. Missing
// lists required roles the user has not mapped; Dangling lists roles mapped
// to a column the live record does not carry.
type ConfigError struct {
	Missing  []string
	Dangling []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("unmapped: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Dangling) > 0 {
		parts = append(parts, fmt.Sprintf("mapped to missing columns: %s", strings.Join(e.Dangling, ", ")))
	}
	return fmt.Sprintf("%s (%s)", ErrUnmappedColumns.Error(), strings.Join(parts, "; "))
}

// Is lets errors.Is match ConfigError against ErrUnmappedColumns.
func (e *ConfigError) Is(target error) bool {
	return target == ErrUnmappedColumns
}
