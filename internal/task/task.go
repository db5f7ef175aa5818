package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task.
type Status string

// Possible task status values. StatusNotFound is only ever returned from
// lookups; it is never stored on a task.
const (
	StatusQueued    Status = "queued"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// Category partitions tasks for independent concurrency limits.
type Category string

// Known task categories. CategoryDefault is the mandatory fallback for
// anything not explicitly configured.
const (
	CategoryTranscription Category = "transcription"
	CategoryReport        Category = "report"
	CategoryDefault       Category = "default"
)

// WorkFunc is the unit of work captured at admission time. It receives a
// context that is cancelled when the task is cancelled or the manager shuts
// down, and returns a JSON-serializable result or an error.
type WorkFunc func(ctx context.Context) (any, error)

// Task is one admitted unit of asynchronous work. All fields are owned by the
// Manager; callers only ever see Snapshot copies.
type Task struct {
	id       string
	category Category
	status   Status
	work     WorkFunc

	result any
	errMsg string

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	// queuePos is the 1-based position in the category's wait queue,
	// zero while running or terminal.
	queuePos int

	cancel       context.CancelFunc
	cancelReason string
	done         chan struct{}
}

func newTask(id string, category Category, work WorkFunc) *Task {
	if id == "" {
		id = uuid.New().String()
	}
	return &Task{
		id:        id,
		category:  category,
		status:    StatusQueued,
		work:      work,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// Snapshot is an immutable view of a task, safe to hand to callers and to
// serialize in API responses.
type Snapshot struct {
	TaskID        string   `json:"task_id"`
	Status        Status   `json:"status"`
	TaskType      Category `json:"task_type"`
	Result        any      `json:"result,omitempty"`
	Error         string   `json:"error,omitempty"`
	QueuePosition *int     `json:"queue_position"`
	CreatedAt     string   `json:"created_at"`
	StartedAt     *string  `json:"started_at"`
	CompletedAt   *string  `json:"completed_at"`
}

// snapshotLocked builds a Snapshot. Callers must hold the manager mutex.
func (t *Task) snapshotLocked() *Snapshot {
	s := &Snapshot{
		TaskID:    t.id,
		Status:    t.status,
		TaskType:  t.category,
		Result:    t.result,
		Error:     t.errMsg,
		CreatedAt: t.createdAt.Format(time.RFC3339Nano),
	}
	if t.queuePos > 0 {
		pos := t.queuePos
		s.QueuePosition = &pos
	}
	if !t.startedAt.IsZero() {
		v := t.startedAt.Format(time.RFC3339Nano)
		s.StartedAt = &v
	}
	if !t.completedAt.IsZero() {
		v := t.completedAt.Format(time.RFC3339Nano)
		s.CompletedAt = &v
	}
	return s
}

func (t *Task) terminal() bool {
	return t.status == StatusCompleted || t.status == StatusFailed
}
