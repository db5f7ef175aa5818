package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	m, err := NewManager(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(m.Stop)
	return m
}

// blockingWork returns a work function that signals on started and blocks
// until release is closed or the task context is cancelled.
func blockingWork(started chan<- string, release <-chan struct{}, id string) WorkFunc {
	return func(ctx context.Context) (any, error) {
		if started != nil {
			started <- id
		}
		select {
		case <-release:
			return id, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		status, snap := m.GetTaskStatus(id)
		if status == want {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s (last: %s)", id, want, status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNewManagerRequiresDefaultLimit(t *testing.T) {
	t.Parallel()

	_, err := NewManager(ManagerConfig{
		ConcurrencyLimits: map[Category]int{CategoryTranscription: 2},
	}, testLogger())
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAddTaskRejectsNilWork(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	_, err := m.AddTask(nil, CategoryDefault, "")
	assert.ErrorIs(t, err, ErrNilWork)
}

func TestAddTaskRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	work := func(ctx context.Context) (any, error) { return nil, nil }

	id, err := m.AddTask(work, CategoryDefault, "dup")
	require.NoError(t, err)
	require.Equal(t, "dup", id)

	_, err = m.AddTask(work, CategoryDefault, "dup")
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestConcurrencyCeilingPerCategory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{
		CategoryTranscription: 2,
		CategoryDefault:       5,
	}
	m := newTestManager(t, cfg)

	started := make(chan string, 8)
	release := make(chan struct{})
	defer close(release)

	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, id := range ids {
		_, err := m.AddTask(blockingWork(started, release, id), CategoryTranscription, id)
		require.NoError(t, err)
	}

	// Exactly two tasks start; the rest stay queued.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("expected two tasks to start")
		}
	}
	select {
	case id := <-started:
		t.Fatalf("task %s started beyond the concurrency limit", id)
	case <-time.After(50 * time.Millisecond):
	}

	qs, err := m.QueueStatus(CategoryTranscription)
	require.NoError(t, err)
	assert.Equal(t, CategoryStatus{Running: 2, Queued: 3, Limit: 2}, qs)
}

func TestFIFOOrderWithinCategory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{
		CategoryDefault: 1,
	}
	m := newTestManager(t, cfg)

	started := make(chan string, 4)
	releases := map[string]chan struct{}{}
	for _, id := range []string{"a", "b", "c", "d"} {
		releases[id] = make(chan struct{})
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := m.AddTask(blockingWork(started, releases[id], id), CategoryDefault, id)
		require.NoError(t, err)
	}

	var order []string
	for i := 0; i < 4; i++ {
		select {
		case id := <-started:
			order = append(order, id)
			close(releases[id])
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 4 tasks started", i)
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestQueuePositionsRenumberOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{CategoryDefault: 1}
	m := newTestManager(t, cfg)

	started := make(chan string, 1)
	release := make(chan struct{})
	defer close(release)

	_, err := m.AddTask(blockingWork(started, release, "running"), CategoryDefault, "running")
	require.NoError(t, err)
	<-started

	queued := []string{"q1", "q2", "q3", "q4"}
	for _, id := range queued {
		_, err := m.AddTask(blockingWork(nil, release, id), CategoryDefault, id)
		require.NoError(t, err)
	}

	for i, id := range queued {
		_, snap := m.GetTaskStatus(id)
		require.NotNil(t, snap.QueuePosition)
		assert.Equal(t, i+1, *snap.QueuePosition, "initial position of %s", id)
	}

	// Cancelling the second entry shifts everything behind it up by one.
	require.True(t, m.CancelTask("q2"))

	status, snap := m.GetTaskStatus("q2")
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "task was cancelled while in queue", snap.Error)
	assert.Nil(t, snap.QueuePosition)

	wantPos := map[string]int{"q1": 1, "q3": 2, "q4": 3}
	for id, want := range wantPos {
		_, snap := m.GetTaskStatus(id)
		require.NotNil(t, snap.QueuePosition, "position of %s", id)
		assert.Equal(t, want, *snap.QueuePosition, "position of %s", id)
	}
}

func TestCompletionFreesSlotForNextQueued(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{CategoryDefault: 1}
	m := newTestManager(t, cfg)

	started := make(chan string, 2)
	firstRelease := make(chan struct{})
	secondRelease := make(chan struct{})
	defer close(secondRelease)

	_, err := m.AddTask(blockingWork(started, firstRelease, "first"), CategoryDefault, "first")
	require.NoError(t, err)
	_, err = m.AddTask(blockingWork(started, secondRelease, "second"), CategoryDefault, "second")
	require.NoError(t, err)

	require.Equal(t, "first", <-started)
	close(firstRelease)

	select {
	case id := <-started:
		assert.Equal(t, "second", id)
	case <-time.After(time.Second):
		t.Fatal("queued task did not start after slot freed")
	}

	snap := waitForStatus(t, m, "first", StatusCompleted)
	assert.Equal(t, "first", snap.Result)
	assert.NotNil(t, snap.CompletedAt)
}

func TestCancelRunningTaskFreesSlot(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{CategoryDefault: 1}
	m := newTestManager(t, cfg)

	started := make(chan string, 2)
	release := make(chan struct{})
	defer close(release)

	_, err := m.AddTask(blockingWork(started, release, "victim"), CategoryDefault, "victim")
	require.NoError(t, err)
	_, err = m.AddTask(blockingWork(started, release, "next"), CategoryDefault, "next")
	require.NoError(t, err)

	require.Equal(t, "victim", <-started)
	require.True(t, m.CancelTask("victim"))

	status, snap := m.GetTaskStatus("victim")
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "task was cancelled", snap.Error)
	assert.NotNil(t, snap.CompletedAt)

	select {
	case id := <-started:
		assert.Equal(t, "next", id)
	case <-time.After(time.Second):
		t.Fatal("queued task did not start after running task was cancelled")
	}
}

func TestCancelUnknownOrTerminalTask(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())

	assert.False(t, m.CancelTask("missing"))

	id, err := m.AddTask(func(ctx context.Context) (any, error) { return 42, nil }, CategoryDefault, "")
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)
	assert.False(t, m.CancelTask(id))
}

func TestGetTaskStatusUnknownID(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	status, snap := m.GetTaskStatus("nope")
	assert.Equal(t, StatusNotFound, status)
	assert.Nil(t, snap)
}

func TestFailedTaskRecordsError(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	id, err := m.AddTask(func(ctx context.Context) (any, error) {
		return nil, errors.New("provider exploded")
	}, CategoryReport, "")
	require.NoError(t, err)

	snap := waitForStatus(t, m, id, StatusFailed)
	assert.Equal(t, "provider exploded", snap.Error)
	assert.Equal(t, CategoryReport, snap.TaskType)
}

func TestPanickingWorkBecomesFailure(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	id, err := m.AddTask(func(ctx context.Context) (any, error) {
		panic("boom")
	}, CategoryDefault, "")
	require.NoError(t, err)

	snap := waitForStatus(t, m, id, StatusFailed)
	assert.Contains(t, snap.Error, "boom")
}

func TestUnknownCategoryFallsBackToDefaultLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{CategoryDefault: 1}
	m := newTestManager(t, cfg)

	started := make(chan string, 2)
	release := make(chan struct{})
	defer close(release)

	other := Category("housekeeping")
	_, err := m.AddTask(blockingWork(started, release, "h1"), other, "h1")
	require.NoError(t, err)
	_, err = m.AddTask(blockingWork(started, release, "h2"), other, "h2")
	require.NoError(t, err)

	require.Equal(t, "h1", <-started)
	select {
	case <-started:
		t.Fatal("second task started past the default limit")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.QueueStatus(other)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRetentionSweepPurgesTerminalTasks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retention = 20 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	m := newTestManager(t, cfg)

	id, err := m.AddTask(func(ctx context.Context) (any, error) { return "ok", nil }, CategoryDefault, "")
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)
	waitForStatus(t, m, id, StatusNotFound)
}

func TestRetentionSweepKeepsActiveTasks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retention = time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond
	m := newTestManager(t, cfg)

	started := make(chan string, 1)
	release := make(chan struct{})
	defer close(release)

	id, err := m.AddTask(blockingWork(started, release, "live"), CategoryDefault, "live")
	require.NoError(t, err)
	<-started

	time.Sleep(30 * time.Millisecond)
	status, _ := m.GetTaskStatus(id)
	assert.Equal(t, StatusRunning, status)
}

func TestCancelAllFailsQueuedAndRunning(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ConcurrencyLimits = map[Category]int{CategoryDefault: 1}
	m := newTestManager(t, cfg)

	started := make(chan string, 1)
	release := make(chan struct{})
	defer close(release)

	_, err := m.AddTask(blockingWork(started, release, "r"), CategoryDefault, "r")
	require.NoError(t, err)
	_, err = m.AddTask(blockingWork(nil, release, "q"), CategoryDefault, "q")
	require.NoError(t, err)
	<-started

	m.CancelAll()

	for _, id := range []string{"r", "q"} {
		status, snap := m.GetTaskStatus(id)
		assert.Equal(t, StatusFailed, status, id)
		assert.Contains(t, snap.Error, "cancelled during shutdown", id)
	}
}

func TestQueueStatusAllCoversConfiguredCategories(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())
	all := m.QueueStatusAll()

	require.Len(t, all, 3)
	assert.Equal(t, CategoryStatus{Limit: 2}, all[CategoryTranscription])
	assert.Equal(t, CategoryStatus{Limit: 3}, all[CategoryReport])
	assert.Equal(t, CategoryStatus{Limit: 5}, all[CategoryDefault])
}

func TestAddTaskNeverBlocksOnWork(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, testConfig())

	var wg sync.WaitGroup
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AddTask(blockingWork(nil, release, ""), CategoryDefault, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), time.Second)
}
