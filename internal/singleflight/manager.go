// Package singleflight admits at most one active task per user key, so a
// user's rapid double-submission never produces two overlapping conversation
// turns, while distinct users run fully in parallel.
package singleflight

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNilWork is returned when QueueTask is called without a work function.
var ErrNilWork = errors.New("work function is nil")

// WorkFunc is one user task. The context is cancelled when the user's task is
// cancelled or the manager shuts down.
type WorkFunc func(ctx context.Context) error

// State describes the admission decision for a submitted task.
type State string

const (
	// StateStarted means the task is running now.
	StateStarted State = "started"
	// StateQueued means another task is active and this one joined the
	// user's FIFO queue.
	StateQueued State = "queued"
	// StateRejected means another task is active and queuing is disabled;
	// callers are expected to offer the user a cancel action.
	StateRejected State = "rejected"
)

// Outcome is the result of a QueueTask call.
type Outcome struct {
	State State
	// QueuePosition is the 1-based position in the user's queue, only set
	// when State is StateQueued.
	QueuePosition int
}

// CancelPrompt correlates a user-facing "cancel previous task?" prompt with
// the request message that triggered it, so a later callback can update both.
type CancelPrompt struct {
	PromptMessageID  int64
	RequestMessageID int64
}

type flight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type queuedWork struct {
	work WorkFunc
}

// Manager runs at most one task per user key. Depending on configuration a
// second submission either waits in the user's FIFO queue or is rejected so
// the caller can offer cancellation. All state is in-memory.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*flight
	queues  map[string][]queuedWork
	prompts map[string]CancelPrompt

	queuingEnabled bool
	logger         *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a Manager. queuingEnabled selects between FIFO queuing
// and reject-with-cancel-offer for duplicate submissions.
func NewManager(queuingEnabled bool, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		active:         make(map[string]*flight),
		queues:         make(map[string][]queuedWork),
		prompts:        make(map[string]CancelPrompt),
		queuingEnabled: queuingEnabled,
		logger:         logger,
		ctx:            ctx,
		cancelFunc:     cancel,
	}
}

// QueueTask submits work for a user key. It never blocks on the work itself:
// the task either starts as a goroutine, joins the user's queue, or is
// rejected, and the outcome is returned immediately.
func (m *Manager) QueueTask(userKey string, work WorkFunc) (Outcome, error) {
	if work == nil {
		return Outcome{}, ErrNilWork
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.active[userKey]; busy {
		if !m.queuingEnabled {
			m.logger.Info("task rejected, user busy", "user", userKey)
			return Outcome{State: StateRejected}, nil
		}
		m.queues[userKey] = append(m.queues[userKey], queuedWork{work: work})
		pos := len(m.queues[userKey])
		m.logger.Info("task queued for user", "user", userKey, "queue_position", pos)
		return Outcome{State: StateQueued, QueuePosition: pos}, nil
	}

	m.startLocked(userKey, work)
	return Outcome{State: StateStarted}, nil
}

// startLocked registers a flight for the user and launches the work. A fresh
// start invalidates any stale cancel prompt. Callers must hold the mutex.
func (m *Manager) startLocked(userKey string, work WorkFunc) {
	ctx, cancel := context.WithCancel(m.ctx)
	f := &flight{cancel: cancel, done: make(chan struct{})}
	m.active[userKey] = f
	delete(m.prompts, userKey)

	m.wg.Add(1)
	go m.run(ctx, userKey, f, work)

	m.logger.Info("task started for user", "user", userKey)
}

func (m *Manager) run(ctx context.Context, userKey string, f *flight, work WorkFunc) {
	defer m.wg.Done()

	if err := work(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("user task failed", "user", userKey, "error", err)
	}

	m.mu.Lock()
	if m.active[userKey] == f {
		delete(m.active, userKey)
		if queue := m.queues[userKey]; len(queue) > 0 {
			next := queue[0]
			if len(queue) == 1 {
				delete(m.queues, userKey)
			} else {
				m.queues[userKey] = queue[1:]
			}
			m.startLocked(userKey, next.work)
		}
	}
	m.mu.Unlock()

	close(f.done)
}

// IsTaskRunning reports whether a task is currently active for the user.
func (m *Manager) IsTaskRunning(userKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.active[userKey]
	return busy
}

// QueueDepth reports how many tasks are waiting behind the user's active one.
func (m *Manager) QueueDepth(userKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[userKey])
}

// CancelUserTask cancels the user's active task and waits until it has
// actually stopped. Returns false if nothing is active for the user. A task
// queued behind the cancelled one starts as soon as the slot frees.
func (m *Manager) CancelUserTask(userKey string) bool {
	m.mu.Lock()
	f, busy := m.active[userKey]
	m.mu.Unlock()
	if !busy {
		return false
	}

	f.cancel()
	<-f.done
	m.logger.Info("user task cancelled", "user", userKey)
	return true
}

// SetCancelPrompt records the prompt/request message pair shown to the user
// after a rejected submission, so a later cancel callback can update both.
func (m *Manager) SetCancelPrompt(userKey string, prompt CancelPrompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[userKey] = prompt
}

// CancelPromptFor returns the recorded prompt correlation for the user, if
// one exists and has not been invalidated by a newer task start.
func (m *Manager) CancelPromptFor(userKey string) (CancelPrompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[userKey]
	return p, ok
}

// ClearCancelPrompt drops the user's prompt correlation.
func (m *Manager) ClearCancelPrompt(userKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prompts, userKey)
}

// CancelAll clears every queue and prompt correlation, cancels every active
// task, and waits for them to stop. Used only at process shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	m.queues = make(map[string][]queuedWork)
	m.prompts = make(map[string]CancelPrompt)
	flights := make([]*flight, 0, len(m.active))
	for _, f := range m.active {
		flights = append(flights, f)
	}
	m.mu.Unlock()

	m.cancelFunc()
	for _, f := range flights {
		<-f.done
	}
	m.wg.Wait()

	m.logger.Info("all user tasks cancelled", "count", len(flights))
}
