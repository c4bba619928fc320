package excel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/emulator"
)

// idColumn is the header of the column holding record ids.
const idColumn = "id"

// Backend implements emulator.Backend and emulator.OptionStore for an Excel file.
//
// The table sheet has a header row. A column named "id" carries record ids;
// when it is missing the data row number is used instead. Options are kept
// as a JSON object in cell A1 of the options sheet.
type Backend struct {
	config *Config
	mu     sync.RWMutex

	// modification time of the file after our last write, used by Watch
	lastWrite time.Time
}

var (
	_ emulator.Backend     = (*Backend)(nil)
	_ emulator.OptionStore = (*Backend)(nil)
)

// New creates a new Excel backend with the given configuration
func New(config *Config) (*Backend, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Create a copy of config to avoid external modifications
	configCopy := *config
	if configCopy.OptionsSheet == "" {
		configCopy.OptionsSheet = DefaultOptionsSheet
	}
	if configCopy.Logger == nil {
		configCopy.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := configCopy.Validate(); err != nil {
		return nil, err
	}

	return &Backend{
		config: &configCopy,
	}, nil
}

// Load retrieves all records and schema from the Excel file
func (b *Backend) Load(ctx context.Context) ([]*sheetwidget.Record, []string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loadLocked(ctx)
}

func (b *Backend) loadLocked(ctx context.Context) ([]*sheetwidget.Record, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := excelize.OpenFile(b.config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return empty data
			return []*sheetwidget.Record{}, []string{}, nil
		}
		return nil, nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheetIndex, err := f.GetSheetIndex(b.config.SheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sheet index: %w", err)
	}
	if sheetIndex == -1 {
		return []*sheetwidget.Record{}, []string{}, nil
	}

	rows, err := f.GetRows(b.config.SheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return []*sheetwidget.Record{}, []string{}, nil
	}

	// First row is the header
	header := rows[0]
	idIndex := -1
	schema := make([]string, 0, len(header))
	for j, col := range header {
		switch {
		case col == idColumn:
			idIndex = j
		case col != "":
			schema = append(schema, col)
		}
	}

	records := make([]*sheetwidget.Record, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}

		id := i
		if idIndex >= 0 {
			if idIndex >= len(row) || row[idIndex] == "" {
				continue // a row without id is not a record
			}
			id, err = strconv.Atoi(strings.TrimSpace(row[idIndex]))
			if err != nil || id <= 0 {
				return nil, nil, fmt.Errorf("row %d: %w: %q", i+1, ErrInvalidID, row[idIndex])
			}
		}

		record := &sheetwidget.Record{ID: id, Values: make(map[string]interface{})}
		for j, value := range row {
			if j == idIndex || j >= len(header) || header[j] == "" || value == "" {
				continue
			}
			record.Values[header[j]] = parseCell(value)
		}
		records = append(records, record)
	}

	return records, schema, nil
}

// Save replaces all data in the table sheet with the provided records
func (b *Backend) Save(ctx context.Context, records []*sheetwidget.Record, schema []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveLocked(ctx, records, schema)
}

func (b *Backend) saveLocked(ctx context.Context, records []*sheetwidget.Record, schema []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, created, err := b.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ensureSheet(f, b.config.SheetName, created); err != nil {
		return err
	}
	if err := clearSheet(f, b.config.SheetName); err != nil {
		return err
	}

	columns := make([]string, 0, len(schema))
	for _, col := range schema {
		if col != "" && col != idColumn {
			columns = append(columns, col)
		}
	}

	header := make([]interface{}, 0, len(columns)+1)
	header = append(header, idColumn)
	for _, col := range columns {
		header = append(header, col)
	}
	if err := f.SetSheetRow(b.config.SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	sorted := append([]*sheetwidget.Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for i, record := range sorted {
		rowValues := make([]interface{}, 0, len(columns)+1)
		rowValues = append(rowValues, record.ID)
		for _, col := range columns {
			rowValues = append(rowValues, cellValue(record.Values[col]))
		}

		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(b.config.SheetName, cell, &rowValues); err != nil {
			return fmt.Errorf("failed to write record %d: %w", record.ID, err)
		}
	}

	return b.write(f)
}

// BatchUpdate applies the operations to the file in one load/save cycle
func (b *Backend) BatchUpdate(ctx context.Context, operations []emulator.Operation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, schema, err := b.loadLocked(ctx)
	if err != nil {
		return fmt.Errorf("failed to load data for batch update: %w", err)
	}

	recordMap := make(map[int]*sheetwidget.Record, len(records))
	for _, record := range records {
		recordMap[record.ID] = record
	}

	for _, op := range operations {
		if op.Record == nil || op.Record.ID <= 0 {
			continue
		}
		switch op.Type {
		case emulator.OpAdd, emulator.OpUpdate:
			// Operations carry the full record
			recordMap[op.Record.ID] = op.Record
			schema = emulator.MergeSchemas(op.Record.Columns(), schema)
		case emulator.OpDelete:
			delete(recordMap, op.Record.ID)
		}
	}

	newRecords := make([]*sheetwidget.Record, 0, len(recordMap))
	for _, record := range recordMap {
		newRecords = append(newRecords, record)
	}

	return b.saveLocked(ctx, newRecords, schema)
}

// LoadOptions reads the options stored in the options sheet
func (b *Backend) LoadOptions(ctx context.Context) (sheetwidget.Options, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(b.config.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return sheetwidget.Options{}, nil
		}
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	index, err := f.GetSheetIndex(b.config.OptionsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet index: %w", err)
	}
	if index == -1 {
		return sheetwidget.Options{}, nil
	}

	raw, err := f.GetCellValue(b.config.OptionsSheet, "A1")
	if err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}
	options, err := sheetwidget.ParseOptionsJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("options sheet %q: %w", b.config.OptionsSheet, err)
	}
	return options, nil
}

// SaveOptions writes the options into the options sheet
func (b *Backend) SaveOptions(ctx context.Context, options sheetwidget.Options) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := sheetwidget.FormatOptionsJSON(options)
	if err != nil {
		return err
	}

	f, created, err := b.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ensureSheet(f, b.config.OptionsSheet, created); err != nil {
		return err
	}
	if err := f.SetCellStr(b.config.OptionsSheet, "A1", raw); err != nil {
		return fmt.Errorf("failed to write options: %w", err)
	}
	return b.write(f)
}

// open opens the file, or starts a new workbook when it doesn't exist yet.
func (b *Backend) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(b.config.FilePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("failed to stat Excel file: %w", err)
		}
		dir := filepath.Dir(b.config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, false, fmt.Errorf("failed to create directory: %w", err)
		}
		return excelize.NewFile(), true, nil
	}

	f, err := excelize.OpenFile(b.config.FilePath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return f, false, nil
}

func (b *Backend) write(f *excelize.File) error {
	if err := f.SaveAs(b.config.FilePath); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}
	if info, err := os.Stat(b.config.FilePath); err == nil {
		b.lastWrite = info.ModTime()
	}
	return nil
}

// ensureSheet creates the sheet when missing. In a new workbook the default
// sheet is replaced.
func ensureSheet(f *excelize.File, name string, created bool) error {
	index, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("failed to get sheet index: %w", err)
	}
	if index != -1 {
		return nil
	}

	defaultSheet := f.GetSheetName(0)
	index, err = f.NewSheet(name)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if created && defaultSheet != name {
		_ = f.DeleteSheet(defaultSheet) // Ignore error - not critical
	}
	return nil
}

// clearSheet removes every row, bottom up.
func clearSheet(f *excelize.File, sheet string) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to get rows: %w", err)
	}
	for i := len(rows); i >= 1; i-- {
		if err := f.RemoveRow(sheet, i); err != nil {
			return fmt.Errorf("failed to clear row %d: %w", i, err)
		}
	}
	return nil
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseCell converts a cell string to a record value
func parseCell(value string) interface{} {
	// Try to parse as number first
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		// Check if it's an integer
		if intVal := int64(floatVal); float64(intVal) == floatVal {
			return intVal
		}
		return floatVal
	}
	switch value {
	case "true", "TRUE":
		return true
	case "false", "FALSE":
		return false
	}
	return value
}

// cellValue converts a record value to something excelize can write.
// Lists are written comma separated.
func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]interface{}:
		raw, err := sheetwidget.FormatOptionsJSON(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return raw
	default:
		return val
	}
}
