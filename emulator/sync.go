package emulator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SyncManager manages periodic synchronization
type SyncManager struct {
	host      *Host
	interval  time.Duration
	ticker    *clock.Ticker
	done      chan struct{}
	syncMutex sync.Mutex
	wg        sync.WaitGroup
}

// NewSyncManager creates a new sync manager
func NewSyncManager(host *Host, interval time.Duration) *SyncManager {
	return &SyncManager{
		host:     host,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the periodic sync process
func (sm *SyncManager) Start() {
	sm.ticker = sm.host.clock.Ticker(sm.interval)
	sm.wg.Add(1)

	go func() {
		defer sm.wg.Done()

		for {
			select {
			case <-sm.ticker.C:
				sm.performSync()
			case <-sm.done:
				return
			}
		}
	}()
}

// performSync executes synchronization with exclusive control
func (sm *SyncManager) performSync() {
	// Skip this cycle if the previous sync is still running
	if !sm.syncMutex.TryLock() {
		return
	}
	defer sm.syncMutex.Unlock()

	if !sm.host.store.HasChanges() {
		return
	}
	if err := sm.host.saveToBackend(context.Background()); err != nil {
		sm.host.logger.Error("periodic sync failed", slog.String("error", err.Error()))
	}
}

// Stop stops the sync manager and waits for ongoing sync
func (sm *SyncManager) Stop() {
	if sm.ticker != nil {
		sm.ticker.Stop()
	}
	close(sm.done)
	sm.wg.Wait()

	sm.syncMutex.Lock()
	sm.syncMutex.Unlock()
}
