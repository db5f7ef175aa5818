package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Common errors returned by the Manager.
var (
	ErrNilWork       = errors.New("work function is nil")
	ErrDuplicateTask = errors.New("task id already exists")
	ErrUnknownType   = errors.New("unknown task type")
)

// ManagerConfig holds configuration for the task manager.
type ManagerConfig struct {
	// ConcurrencyLimits maps each category to the number of tasks allowed
	// to run at once. It must contain an entry for CategoryDefault, which
	// is used for any category without an explicit limit.
	ConcurrencyLimits map[Category]int

	// Retention defines how long completed/failed tasks remain queryable
	// before the sweep removes them.
	Retention time.Duration

	// PollInterval is the drain loop's fallback tick. Completion events
	// nudge the drain loop directly, so this only bounds worst-case queue
	// latency when a nudge is missed.
	PollInterval time.Duration

	// SweepInterval defines how often the retention sweep runs.
	SweepInterval time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with the same limits the
// service ships with.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConcurrencyLimits: map[Category]int{
			CategoryTranscription: 2,
			CategoryReport:        3,
			CategoryDefault:       5,
		},
		Retention:     5 * time.Minute,
		PollInterval:  time.Second,
		SweepInterval: 5 * time.Minute,
	}
}

// CategoryStatus reports queue pressure for one category.
type CategoryStatus struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Limit   int `json:"limit"`
}

// Manager admits tasks into named categories, each with its own concurrency
// ceiling and FIFO wait queue, and drains queues as slots free up. All state
// is in-memory and owned by a single Manager instance; nothing survives a
// restart.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	queues  map[Category][]string
	running map[Category]map[string]struct{}

	cfg    ManagerConfig
	logger *slog.Logger

	// completions carries the category of every finished task so the
	// drain loop reacts immediately instead of waiting for the next tick.
	completions chan Category

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
}

// NewManager creates a Manager. Start must be called before queued tasks are
// drained; tasks admitted below the concurrency limit run regardless.
func NewManager(cfg ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if len(cfg.ConcurrencyLimits) == 0 {
		cfg.ConcurrencyLimits = DefaultManagerConfig().ConcurrencyLimits
	}
	if _, ok := cfg.ConcurrencyLimits[CategoryDefault]; !ok {
		return nil, fmt.Errorf("%w: concurrency limits must include %q", ErrUnknownType, CategoryDefault)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultManagerConfig().Retention
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultManagerConfig().PollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultManagerConfig().SweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tasks:       make(map[string]*Task),
		queues:      make(map[Category][]string),
		running:     make(map[Category]map[string]struct{}),
		cfg:         cfg,
		logger:      logger,
		completions: make(chan Category, 64),
		ctx:         ctx,
		cancelFunc:  cancel,
	}, nil
}

// Start launches the background drain and retention loops.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("task manager already started")
	}
	m.started = true

	m.wg.Add(2)
	go m.drainLoop()
	go m.sweepLoop()
	return nil
}

// Stop cancels all outstanding work and waits for the background loops and
// every running task to finish. Used only at process shutdown.
func (m *Manager) Stop() {
	m.CancelAll()
	m.cancelFunc()
	m.wg.Wait()
}

// limitFor returns the configured limit for a category, falling back to the
// default limit for categories without an explicit entry.
func (m *Manager) limitFor(category Category) int {
	if limit, ok := m.cfg.ConcurrencyLimits[category]; ok {
		return limit
	}
	return m.cfg.ConcurrencyLimits[CategoryDefault]
}

// AddTask admits a new task. If the category has a free concurrency slot the
// task starts immediately; otherwise it joins the category's FIFO queue. The
// returned id is valid in both cases and this call never blocks on task
// completion.
func (m *Manager) AddTask(work WorkFunc, category Category, id string) (string, error) {
	if work == nil {
		return "", ErrNilWork
	}
	if category == "" {
		category = CategoryDefault
	}

	t := newTask(id, category, work)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, t.id)
	}
	m.tasks[t.id] = t

	if len(m.running[category]) < m.limitFor(category) {
		m.startLocked(t)
	} else {
		m.queues[category] = append(m.queues[category], t.id)
		t.queuePos = len(m.queues[category])
		m.logger.Info("task queued",
			"task_id", t.id,
			"task_type", category,
			"queue_position", t.queuePos)
	}

	return t.id, nil
}

// startLocked moves a task into the running set and launches its work
// function. Callers must hold the mutex.
func (m *Manager) startLocked(t *Task) {
	t.status = StatusPending
	t.queuePos = 0

	if m.running[t.category] == nil {
		m.running[t.category] = make(map[string]struct{})
	}
	m.running[t.category][t.id] = struct{}{}

	ctx, cancel := context.WithCancel(m.ctx)
	t.cancel = cancel

	m.wg.Add(1)
	go m.run(ctx, t)

	m.logger.Info("task started", "task_id", t.id, "task_type", t.category)
}

// run executes a task's work function and records the terminal transition.
// completedAt is always set, even when the work function is cancelled.
func (m *Manager) run(ctx context.Context, t *Task) {
	defer m.wg.Done()

	m.mu.Lock()
	t.status = StatusRunning
	t.startedAt = time.Now().UTC()
	m.mu.Unlock()

	result, err := invoke(ctx, t.work)

	m.mu.Lock()
	if err != nil {
		t.status = StatusFailed
		if ctx.Err() != nil && t.cancelReason != "" {
			t.errMsg = t.cancelReason
		} else {
			t.errMsg = err.Error()
		}
		m.logger.Error("task failed", "task_id", t.id, "task_type", t.category, "error", t.errMsg)
	} else {
		t.status = StatusCompleted
		t.result = result
	}
	t.completedAt = time.Now().UTC()
	delete(m.running[t.category], t.id)
	m.mu.Unlock()

	close(t.done)

	// Nudge the drain loop; if the buffer is full the poll tick catches up.
	select {
	case m.completions <- t.category:
	default:
	}
}

// invoke runs a work function, converting panics into errors so a single
// misbehaving task cannot take down the drain loop.
func invoke(ctx context.Context, work WorkFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work function panicked: %v", r)
		}
	}()
	return work(ctx)
}

// GetTaskStatus returns the task's status and snapshot, or
// (StatusNotFound, nil) if the id is unknown or already purged.
func (m *Manager) GetTaskStatus(id string) (Status, *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return StatusNotFound, nil
	}
	return t.status, t.snapshotLocked()
}

// QueueStatus reports running/queued counts and the limit for one category.
func (m *Manager) QueueStatus(category Category) (CategoryStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cfg.ConcurrencyLimits[category]; !ok {
		return CategoryStatus{}, fmt.Errorf("%w: %s", ErrUnknownType, category)
	}
	return m.queueStatusLocked(category), nil
}

// QueueStatusAll reports queue pressure for every configured category.
func (m *Manager) QueueStatusAll() map[Category]CategoryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Category]CategoryStatus, len(m.cfg.ConcurrencyLimits))
	for category := range m.cfg.ConcurrencyLimits {
		out[category] = m.queueStatusLocked(category)
	}
	return out
}

func (m *Manager) queueStatusLocked(category Category) CategoryStatus {
	return CategoryStatus{
		Running: len(m.running[category]),
		Queued:  len(m.queues[category]),
		Limit:   m.limitFor(category),
	}
}

// CancelTask cancels a queued or running task. Cancelling a queued task is
// immediate; cancelling a running task signals the work function's context
// and waits until the slot is actually freed. Returns false if the task is
// unknown or already terminal.
func (m *Manager) CancelTask(id string) bool {
	return m.cancelTask(id, "task was cancelled")
}

func (m *Manager) cancelTask(id, reason string) bool {
	m.mu.Lock()

	t, ok := m.tasks[id]
	if !ok || t.terminal() {
		m.mu.Unlock()
		return false
	}

	if t.status == StatusQueued {
		m.removeFromQueueLocked(t)
		t.status = StatusFailed
		t.errMsg = reason + " while in queue"
		t.completedAt = time.Now().UTC()
		close(t.done)
		m.mu.Unlock()
		m.logger.Info("queued task cancelled", "task_id", id)
		return true
	}

	// Running (or pending): signal cancellation and wait for the work
	// function to acknowledge. The terminal transition happens in run.
	t.cancelReason = reason
	cancel := t.cancel
	m.mu.Unlock()

	cancel()
	<-t.done
	m.logger.Info("running task cancelled", "task_id", id)
	return true
}

// removeFromQueueLocked drops a task from its category queue and renumbers
// the remaining entries in the same step, so no two tasks ever share a
// position. Callers must hold the mutex.
func (m *Manager) removeFromQueueLocked(t *Task) {
	queue := m.queues[t.category]
	for i, queuedID := range queue {
		if queuedID == t.id {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	m.queues[t.category] = queue
	m.renumberLocked(t.category)
	t.queuePos = 0
}

// renumberLocked recomputes the 1-based queue position of every task left in
// a category's queue. Callers must hold the mutex.
func (m *Manager) renumberLocked(category Category) {
	for i, id := range m.queues[category] {
		if queued, ok := m.tasks[id]; ok {
			queued.queuePos = i + 1
		}
	}
}

// CancelAll empties every queue and cancels every running task. Used only at
// process shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()

	now := time.Now().UTC()
	for category, queue := range m.queues {
		for _, id := range queue {
			if t, ok := m.tasks[id]; ok && t.status == StatusQueued {
				t.status = StatusFailed
				t.errMsg = "task was cancelled during shutdown"
				t.completedAt = now
				t.queuePos = 0
				close(t.done)
			}
		}
		m.queues[category] = nil
	}

	var runningIDs []string
	for _, ids := range m.running {
		for id := range ids {
			runningIDs = append(runningIDs, id)
		}
	}
	m.mu.Unlock()

	for _, id := range runningIDs {
		m.cancelTask(id, "task was cancelled during shutdown")
	}

	m.logger.Info("all tasks cancelled", "running_count", len(runningIDs))
}

// drainLoop starts queued tasks whenever capacity frees up. It reacts to
// completion events immediately and falls back to a fixed-interval poll.
func (m *Manager) drainLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case category := <-m.completions:
			m.drainCategory(category)
		case <-ticker.C:
			for category := range m.cfg.ConcurrencyLimits {
				m.drainCategory(category)
			}
			// Queues can exist for categories running on the default
			// limit; drain those too.
			m.mu.Lock()
			extra := make([]Category, 0)
			for category := range m.queues {
				if _, ok := m.cfg.ConcurrencyLimits[category]; !ok {
					extra = append(extra, category)
				}
			}
			m.mu.Unlock()
			for _, category := range extra {
				m.drainCategory(category)
			}
		}
	}
}

// drainCategory pops queued tasks into free slots in FIFO order. Tasks that
// left the queued state while waiting (cancelled concurrently) are skipped.
func (m *Manager) drainCategory(category Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := m.limitFor(category)
	for len(m.running[category]) < limit && len(m.queues[category]) > 0 {
		id := m.queues[category][0]
		m.queues[category] = m.queues[category][1:]
		m.renumberLocked(category)

		t, ok := m.tasks[id]
		if !ok || t.status != StatusQueued {
			continue
		}
		m.startLocked(t)
	}
}

// sweepLoop purges terminal tasks once they age past the retention window.
// Status queries for purged ids return StatusNotFound.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-m.cfg.Retention)
	removed := 0
	for id, t := range m.tasks {
		if t.terminal() && t.completedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("purged old tasks", "count", removed)
	}
}
