package googlesheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ideamans/go-sheetwidget"
	"github.com/ideamans/go-sheetwidget/emulator"
)

// idColumn is the header of the column holding record ids.
const idColumn = "id"

// Backend implements emulator.Backend and emulator.OptionStore for a sheet
// of a Google spreadsheet.
//
// The first row is the header. A column named "id" carries record ids; when
// it is missing the data row number is used instead. Options are kept as a
// JSON object in cell A1 of the options sheet, which is created on first use.
type Backend struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	optionsSheet  string
}

var (
	_ emulator.Backend     = (*Backend)(nil)
	_ emulator.OptionStore = (*Backend)(nil)
)

// NewBackend creates a new Google Sheets backend with provided options
func NewBackend(ctx context.Context, config Config, opts ...option.ClientOption) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.OptionsSheet == "" {
		config.OptionsSheet = DefaultOptionsSheet
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Backend{
		service:       service,
		spreadsheetID: config.SpreadsheetID,
		sheetName:     config.SheetName,
		optionsSheet:  config.OptionsSheet,
	}, nil
}

// Load retrieves all records and schema from the sheet
func (b *Backend) Load(ctx context.Context) ([]*sheetwidget.Record, []string, error) {
	resp, err := b.service.Spreadsheets.Values.Get(b.spreadsheetID, a1(b.sheetName, "A:ZZ")).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sheet data: %w", err)
	}

	if len(resp.Values) == 0 {
		return []*sheetwidget.Record{}, []string{}, nil
	}

	// First row is the header
	header := make([]string, len(resp.Values[0]))
	idIndex := -1
	schema := make([]string, 0, len(header))
	for j, cell := range resp.Values[0] {
		col, _ := cell.(string)
		header[j] = col
		switch {
		case col == idColumn:
			idIndex = j
		case col != "":
			schema = append(schema, col)
		}
	}

	records := make([]*sheetwidget.Record, 0, len(resp.Values)-1)
	for i := 1; i < len(resp.Values); i++ {
		row := resp.Values[i]
		if isBlankRow(row) {
			continue
		}

		id := i
		if idIndex >= 0 {
			if idIndex >= len(row) || isBlank(row[idIndex]) {
				continue // a row without id is not a record
			}
			id, err = parseID(row[idIndex])
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}

		record := &sheetwidget.Record{ID: id, Values: make(map[string]interface{})}
		for j := 0; j < len(row) && j < len(header); j++ {
			if j == idIndex || header[j] == "" || isBlank(row[j]) {
				continue
			}
			record.Values[header[j]] = convertCellValue(row[j])
		}
		records = append(records, record)
	}

	return records, schema, nil
}

// Save replaces all data in the sheet with the provided records
func (b *Backend) Save(ctx context.Context, records []*sheetwidget.Record, schema []string) error {
	sortedRecords := make([]*sheetwidget.Record, len(records))
	copy(sortedRecords, records)
	sort.Slice(sortedRecords, func(i, j int) bool {
		return sortedRecords[i].ID < sortedRecords[j].ID
	})

	columns := make([]string, 0, len(schema))
	for _, col := range schema {
		if col != "" && col != idColumn {
			columns = append(columns, col)
		}
	}

	values := make([][]interface{}, 0, len(sortedRecords)+1)

	header := make([]interface{}, 0, len(columns)+1)
	header = append(header, idColumn)
	for _, col := range columns {
		header = append(header, col)
	}
	values = append(values, header)

	for _, record := range sortedRecords {
		row := make([]interface{}, 0, len(columns)+1)
		row = append(row, convertToSheetValue(record.ID))
		for _, col := range columns {
			row = append(row, convertToSheetValue(record.Values[col]))
		}
		values = append(values, row)
	}

	// Clear the entire sheet first
	_, err := b.service.Spreadsheets.Values.Clear(b.spreadsheetID, a1(b.sheetName, "A:ZZ"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	vr := &sheets.ValueRange{Values: values}
	_, err = b.service.Spreadsheets.Values.Update(b.spreadsheetID, a1(b.sheetName, "A1"), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}

	return nil
}

// BatchUpdate applies the operations in one load/save cycle.
// The Values API has no row-level upsert by id, so the sheet is rewritten.
func (b *Backend) BatchUpdate(ctx context.Context, operations []emulator.Operation) error {
	records, schema, err := b.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load data for batch update: %w", err)
	}

	recordMap := make(map[int]*sheetwidget.Record, len(records))
	for _, r := range records {
		recordMap[r.ID] = r
	}

	for _, op := range operations {
		if op.Record == nil || op.Record.ID <= 0 {
			continue
		}
		switch op.Type {
		case emulator.OpAdd, emulator.OpUpdate:
			recordMap[op.Record.ID] = op.Record
			schema = emulator.MergeSchemas(op.Record.Columns(), schema)
		case emulator.OpDelete:
			delete(recordMap, op.Record.ID)
		}
	}

	newRecords := make([]*sheetwidget.Record, 0, len(recordMap))
	for _, r := range recordMap {
		newRecords = append(newRecords, r)
	}

	return b.Save(ctx, newRecords, schema)
}

// LoadOptions reads the options JSON. A missing options sheet means no options.
func (b *Backend) LoadOptions(ctx context.Context) (sheetwidget.Options, error) {
	resp, err := b.service.Spreadsheets.Values.Get(b.spreadsheetID, a1(b.optionsSheet, "A1")).Context(ctx).Do()
	if err != nil {
		if isMissingSheet(err) {
			return sheetwidget.Options{}, nil
		}
		return nil, fmt.Errorf("failed to get options: %w", err)
	}

	raw := ""
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		raw = fmt.Sprint(resp.Values[0][0])
	}
	options, err := sheetwidget.ParseOptionsJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("options sheet %q: %w", b.optionsSheet, err)
	}
	return options, nil
}

// SaveOptions writes the options JSON, adding the options sheet when needed.
func (b *Backend) SaveOptions(ctx context.Context, options sheetwidget.Options) error {
	raw, err := sheetwidget.FormatOptionsJSON(options)
	if err != nil {
		return err
	}

	write := func() error {
		vr := &sheets.ValueRange{Values: [][]interface{}{{raw}}}
		_, err := b.service.Spreadsheets.Values.Update(b.spreadsheetID, a1(b.optionsSheet, "A1"), vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	}

	err = write()
	if err != nil && isMissingSheet(err) {
		if err := b.addSheet(ctx, b.optionsSheet); err != nil {
			return err
		}
		err = write()
	}
	if err != nil {
		return fmt.Errorf("failed to update options: %w", err)
	}
	return nil
}

func (b *Backend) addSheet(ctx context.Context, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := b.service.Spreadsheets.BatchUpdate(b.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to add sheet %q: %w", title, err)
	}
	return nil
}

// isMissingSheet reports whether the API rejected a range because its sheet
// does not exist.
func isMissingSheet(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
}

// a1 builds an A1 range, quoting the sheet name when it needs it.
func a1(sheet, cells string) string {
	for _, r := range sheet {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
		}
	}
	return sheet + "!" + cells
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isBlankRow(row []interface{}) bool {
	for _, v := range row {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

func parseID(v interface{}) (int, error) {
	switch id := convertCellValue(v).(type) {
	case int64:
		if id > 0 {
			return int(id), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidID, v)
}

// convertCellValue converts a Google Sheets cell value to Go type
func convertCellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		// Try to parse as number
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		// Try to parse as bool
		if val == "true" || val == "TRUE" {
			return true
		}
		if val == "false" || val == "FALSE" {
			return false
		}
		return val
	case float64:
		// Check if it's actually an integer
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// convertToSheetValue converts a record value to a Google Sheets cell value.
// Lists are written comma separated.
func convertToSheetValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(convertToSheetValue(item))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]interface{}:
		raw, err := sheetwidget.FormatOptionsJSON(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return raw
	default:
		return fmt.Sprintf("%v", val)
	}
}
