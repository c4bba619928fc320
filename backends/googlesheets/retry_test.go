package googlesheets

import (
	"context"
	"testing"

	"github.com/ideamans/go-sheetwidget/emulator"
)

func TestBackend_LoadWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCount int
	}{
		{name: "success on first try", failures: 0, wantCount: 2},
		{name: "success after one retry", failures: 1, wantCount: 2},
		{name: "success after two retries", failures: 2, wantCount: 2},
		{name: "retries exhausted", failures: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, server := newFakeSheets(t, map[string][][]interface{}{
				"TestSheet": {{"id", "name"}, {"1", "John"}, {"2", "Jane"}},
			})
			fake.failures = tt.failures
			backend := newTestBackend(t, server)

			host := emulator.New(backend, &emulator.Config{MaxRetries: 3, RetryInterval: 1})
			defer host.Close(context.Background())

			err := host.Load(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(host.Records()) != tt.wantCount {
				t.Errorf("got %d records, want %d", len(host.Records()), tt.wantCount)
			}
		})
	}
}

func TestBackend_SyncWithRetry(t *testing.T) {
	fake, server := newFakeSheets(t, map[string][][]interface{}{
		"TestSheet": {{"id", "name"}, {"1", "John"}},
	})
	backend := newTestBackend(t, server)
	ctx := context.Background()

	host := emulator.New(backend, &emulator.Config{MaxRetries: 3, RetryInterval: 1})
	if err := host.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := host.Store().Update(1, map[string]interface{}{"name": "Johnny"}); err != nil {
		t.Fatal(err)
	}

	fake.mu.Lock()
	fake.failures = 2
	fake.mu.Unlock()

	if err := host.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	rows := fake.rows("TestSheet")
	if len(rows) != 2 || rows[1][1] != "Johnny" {
		t.Errorf("sheet = %v", rows)
	}
}
