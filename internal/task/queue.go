package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Queue holds upload tasks in insertion order and persists every mutation.
// Callers always receive copies; edits go through the Queue methods.
type Queue struct {
	mu    sync.RWMutex
	tasks map[string]*VideoTask
	order []string
	store Store
	now   func() time.Time
}

// NewQueue creates an in-memory queue without persistence, suitable for tests
func NewQueue() *Queue {
	return NewQueueWithOptions(Options{})
}

// NewQueueWithOptions creates a queue writing through to opts.Store when set
func NewQueueWithOptions(opts Options) *Queue {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{
		tasks: make(map[string]*VideoTask),
		store: opts.Store,
		now:   now,
	}
}

// AddTask validates the input and stores a new pending task
func (q *Queue) AddTask(ctx context.Context, in CreateInput) (*VideoTask, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := ValidateCreate(in); err != nil {
		return nil, err
	}
	now := q.now()
	newTask := &VideoTask{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Description:   in.Description,
		Tags:          cleanList(in.Tags),
		Visibility:    in.Visibility,
		ScheduledTime: in.ScheduledTime.UTC(),
		SourceURL:     in.SourceURL,
		ThumbnailURL:  in.ThumbnailURL,
		AutoChapters:  in.AutoChapters,
		AIDescription: in.AIDescription,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.PlaylistIDs != nil {
		newTask.PlaylistIDs = cleanList(in.PlaylistIDs)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.persist(ctx, newTask); err != nil {
		return nil, err
	}
	q.tasks[newTask.ID] = newTask
	q.order = append(q.order, newTask.ID)
	return newTask.Clone(), nil
}

// GetQueue returns every task in insertion order
func (q *Queue) GetQueue() []*VideoTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*VideoTask, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.tasks[id].Clone())
	}
	return out
}

// GetTask returns a task by ID
func (q *Queue) GetTask(taskID string) (*VideoTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	foundTask, ok := q.tasks[taskID]
	if !ok {
		return nil, false
	}
	return foundTask.Clone(), true
}

// UpdateTask merges the non-nil fields of u into the task.
func (q *Queue) UpdateTask(ctx context.Context, taskID string, u Update) (*VideoTask, error) {
	if err := ValidateUpdate(u); err != nil {
		return nil, err
	}
	return q.mutate(ctx, taskID, func(t *VideoTask) error {
		u.apply(t)
		if u.Tags != nil {
			t.Tags = cleanList(t.Tags)
		}
		return nil
	})
}

// RescheduleTask moves the task to a new scheduled time. Status is left alone,
// so a failed task stays failed.
func (q *Queue) RescheduleTask(ctx context.Context, taskID string, when time.Time) (*VideoTask, error) {
	if when.IsZero() {
		return nil, NewValidationError("scheduledTime", "is required")
	}
	return q.mutate(ctx, taskID, func(t *VideoTask) error {
		t.ScheduledTime = when.UTC()
		return nil
	})
}

// RemoveTask deletes the task. Deleting an unknown id returns ErrTaskNotFound.
func (q *Queue) RemoveTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[taskID]; !ok {
		return ErrTaskNotFound
	}
	if q.store != nil {
		if err := q.store.DeleteTask(ctx, taskID); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
	}
	delete(q.tasks, taskID)
	for i, id := range q.order {
		if id == taskID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// DueTasks returns pending tasks scheduled at or before now, earliest first.
// Tasks sharing a schedule keep their insertion order.
func (q *Queue) DueTasks(now time.Time) []*VideoTask {
	q.mu.RLock()
	due := make([]*VideoTask, 0)
	for _, id := range q.order {
		if t := q.tasks[id]; t.Due(now) {
			due = append(due, t.Clone())
		}
	}
	q.mu.RUnlock()
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].ScheduledTime.Before(due[j].ScheduledTime)
	})
	return due
}

// Transition moves a task along pending -> uploading -> uploaded|failed.
// errMsg is stored only for StatusFailed.
func (q *Queue) Transition(ctx context.Context, taskID string, to Status, errMsg string) (*VideoTask, error) {
	return q.mutate(ctx, taskID, func(t *VideoTask) error {
		if !canTransition(t.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
		}
		t.Status = to
		t.Error = ""
		if to == StatusFailed {
			t.Error = errMsg
		}
		return nil
	})
}

// Counts returns the number of tasks per status.
func (q *Queue) Counts() map[Status]int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	counts := make(map[Status]int, 4)
	for _, t := range q.tasks {
		counts[t.Status]++
	}
	return counts
}

func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusUploading
	case StatusUploading:
		return to == StatusUploaded || to == StatusFailed
	default:
		return false
	}
}

// mutate applies fn to a copy of the task, persists it and swaps it in.
func (q *Queue) mutate(ctx context.Context, taskID string, fn func(t *VideoTask) error) (*VideoTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = q.now()
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}
	if err := q.persist(ctx, next); err != nil {
		return nil, err
	}
	q.tasks[taskID] = next
	return next.Clone(), nil
}

// persist writes the task through the store; caller holds q.mu.
func (q *Queue) persist(ctx context.Context, t *VideoTask) error {
	if q.store == nil {
		return nil
	}
	if err := q.store.SaveTask(ctx, t); err != nil {
		log.Warn().Str("task_id", t.ID).Err(err).Msg("persist task failed")
		return fmt.Errorf("persist task: %w", err)
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
