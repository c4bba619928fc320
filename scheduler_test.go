package sheetwidget_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/go-sheetwidget"
)

type runLog struct {
	mu   sync.Mutex
	runs []string
}

func (l *runLog) op(name string) sheetwidget.Operation {
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.runs = append(l.runs, name)
		return nil
	}
}

func (l *runLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.runs...)
}

func TestScheduler_Debounce(t *testing.T) {
	mock := clock.NewMock()
	s := sheetwidget.NewScheduler[int](context.Background(), mock, nil)
	var log runLog

	s.Schedule(5, 500*time.Millisecond, log.op("first"))
	mock.Add(200 * time.Millisecond)
	s.Schedule(5, 500*time.Millisecond, log.op("second"))
	assert.Equal(t, 1, s.Len())

	mock.Add(400 * time.Millisecond)
	assert.Empty(t, log.get(), "restarted timer must not fire yet")

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(log.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"second"}, log.get())
	assert.Equal(t, 0, s.Len())

	mock.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, log.get(), 1)
}

func TestScheduler_IndependentKeys(t *testing.T) {
	mock := clock.NewMock()
	s := sheetwidget.NewScheduler[int](context.Background(), mock, nil)
	var log runLog

	s.Schedule(1, 100*time.Millisecond, log.op("one"))
	s.Schedule(2, 300*time.Millisecond, log.op("two"))
	assert.Equal(t, []int{1, 2}, s.Pending())

	due, ok := s.Due(2)
	require.True(t, ok)
	assert.Equal(t, mock.Now().Add(300*time.Millisecond), due)

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(log.get()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, s.Pending())

	mock.Add(200 * time.Millisecond)
	require.Eventually(t, func() bool { return len(log.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, log.get())
}

func TestScheduler_Cancel(t *testing.T) {
	mock := clock.NewMock()
	s := sheetwidget.NewScheduler[string](context.Background(), mock, nil)
	var log runLog

	s.Schedule("a", time.Second, log.op("a"))
	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))

	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, log.get())
	_, ok := s.Due("a")
	assert.False(t, ok)
}

func TestScheduler_RunNow(t *testing.T) {
	mock := clock.NewMock()
	s := sheetwidget.NewScheduler[int](context.Background(), mock, nil)
	var log runLog
	boom := errors.New("boom")

	s.Schedule(3, time.Second, log.op("three"))
	s.Schedule(1, time.Second, log.op("one"))
	s.Schedule(2, time.Second, func(ctx context.Context) error { return boom })

	require.NoError(t, s.RunNow(context.Background(), 1))
	assert.Equal(t, []string{"one"}, log.get())
	assert.Equal(t, []int{3, 2}, s.Pending())

	err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"one", "three"}, log.get())
	assert.Zero(t, s.Len())

	// Timers of flushed operations never fire.
	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, log.get(), 2)
}

func TestScheduler_OnError(t *testing.T) {
	mock := clock.NewMock()
	failures := make(chan int, 1)
	s := sheetwidget.NewScheduler[int](context.Background(), mock, func(key int, err error) {
		failures <- key
	})

	s.Schedule(7, time.Millisecond, func(ctx context.Context) error { return errors.New("rejected") })
	mock.Add(time.Millisecond)

	select {
	case key := <-failures:
		assert.Equal(t, 7, key)
	case <-time.After(time.Second):
		t.Fatal("onError was not called")
	}
}

func TestScheduler_Stop(t *testing.T) {
	mock := clock.NewMock()
	s := sheetwidget.NewScheduler[int](context.Background(), mock, nil)
	var log runLog

	s.Schedule(1, time.Second, log.op("one"))
	s.Stop()
	s.Schedule(2, time.Second, log.op("two"))
	assert.Zero(t, s.Len())

	mock.Add(2 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, log.get())
}
