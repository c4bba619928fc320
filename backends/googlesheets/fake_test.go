package googlesheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const testSpreadsheet = "test-id"

// fakeSheets is an in-memory stand-in for the Sheets v4 values API. Every
// write replaces the sheet's contents from A1.
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]interface{}
	calls  []string

	// failures makes the next n requests answer 503.
	failures int
}

func newFakeSheets(t *testing.T, sheetsByName map[string][][]interface{}) (*fakeSheets, *httptest.Server) {
	t.Helper()
	f := &fakeSheets{sheets: map[string][][]interface{}{}}
	for name, rows := range sheetsByName {
		f.sheets[name] = rows
	}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func newTestBackend(t *testing.T, server *httptest.Server) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Config{
		SpreadsheetID: testSpreadsheet,
		SheetName:     "TestSheet",
	}, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	return b
}

func (f *fakeSheets) rows(sheet string) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sheets[sheet]
}

func (f *fakeSheets) hasSheet(sheet string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sheets[sheet]
	return ok
}

func (f *fakeSheets) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSheets) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.failures > 0 {
		f.failures--
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"code": 503, "message": "Service Unavailable"}}`))
		return
	}

	base := "/v4/spreadsheets/" + testSpreadsheet
	switch {
	case r.URL.Path == base+":batchUpdate" && r.Method == http.MethodPost:
		var req sheets.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, sub := range req.Requests {
			if sub.AddSheet != nil {
				f.sheets[sub.AddSheet.Properties.Title] = nil
				f.calls = append(f.calls, "addSheet "+sub.AddSheet.Properties.Title)
			}
		}
		w.Write([]byte(`{"spreadsheetId": "test-id", "replies": [{}]}`))
		return

	case strings.HasPrefix(r.URL.Path, base+"/values/"):
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	rng := strings.TrimPrefix(r.URL.Path, base+"/values/")
	isClear := strings.HasSuffix(rng, ":clear")
	rng = strings.TrimSuffix(rng, ":clear")
	sheet, cells, _ := strings.Cut(rng, "!")
	sheet = strings.ReplaceAll(strings.Trim(sheet, "'"), "''", "'")

	rows, ok := f.sheets[sheet]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "Unable to parse range: ` + rng + `", "status": "INVALID_ARGUMENT"}}`))
		return
	}

	switch {
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "get "+rng)
		if cells == "A1" && len(rows) > 0 && len(rows[0]) > 0 {
			rows = [][]interface{}{{rows[0][0]}}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"range": rng, "values": rows})

	case r.Method == http.MethodPost && isClear:
		f.calls = append(f.calls, "clear "+rng)
		f.sheets[sheet] = nil
		w.Write([]byte(`{}`))

	case r.Method == http.MethodPut:
		f.calls = append(f.calls, "update "+rng)
		var vr sheets.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.sheets[sheet] = vr.Values
		w.Write([]byte(`{"updatedCells": 1}`))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
