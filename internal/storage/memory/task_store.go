package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

// TaskStore is the process-scoped in-memory task registry. One runner
// goroutine owns the mutations for a given task; lookups may happen
// concurrently from API readers and always return copies.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]scrape.Task
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]scrape.Task),
	}
}

// Create registers a new task in pending status.
func (s *TaskStore) Create(_ context.Context, task scrape.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return errors.New("task already exists")
	}
	task.Results = cloneRecords(task.Results)
	s.tasks[task.ID] = task
	return nil
}

// Get fetches a copy of a task by ID.
func (s *TaskStore) Get(_ context.Context, taskID string) (scrape.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return scrape.Task{}, scrape.ErrTaskNotFound
	}
	task.Results = cloneRecords(task.Results)
	return task, nil
}

// MarkRunning moves a pending task to running.
func (s *TaskStore) MarkRunning(_ context.Context, taskID string) error {
	return s.mutate(taskID, func(task *scrape.Task) error {
		if task.Status != scrape.TaskStatusPending {
			return fmt.Errorf("cannot start task in status %q", task.Status)
		}
		task.Status = scrape.TaskStatusRunning
		return nil
	})
}

// AddPlannedPages accumulates the planned page count as listing types finish
// planning; TotalPages ends up as the sum across listing types.
func (s *TaskStore) AddPlannedPages(_ context.Context, taskID string, pages int) error {
	return s.mutate(taskID, func(task *scrape.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("task already %s", task.Status)
		}
		task.TotalPages += pages
		return nil
	})
}

// AppendResults appends records and advances the progress counter to the new
// total record count. Appends to terminal tasks are rejected: the result
// sequence freezes once the task completes or fails.
func (s *TaskStore) AppendResults(_ context.Context, taskID string, records []scrape.ResultRecord) error {
	return s.mutate(taskID, func(task *scrape.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("task already %s", task.Status)
		}
		task.Results = append(task.Results, records...)
		task.Progress = len(task.Results)
		return nil
	})
}

// Complete moves a running task to completed and records the timestamp.
func (s *TaskStore) Complete(_ context.Context, taskID string, at time.Time) error {
	return s.mutate(taskID, func(task *scrape.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("task already %s", task.Status)
		}
		task.Status = scrape.TaskStatusCompleted
		task.Progress = len(task.Results)
		task.CompletedAt = pointerTime(at)
		return nil
	})
}

// Fail moves a task to failed with the error message recorded verbatim.
func (s *TaskStore) Fail(_ context.Context, taskID string, message string, at time.Time) error {
	return s.mutate(taskID, func(task *scrape.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("task already %s", task.Status)
		}
		task.Status = scrape.TaskStatusFailed
		task.ErrorMessage = message
		task.CompletedAt = pointerTime(at)
		return nil
	})
}

func (s *TaskStore) mutate(taskID string, fn func(*scrape.Task) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return scrape.ErrTaskNotFound
	}
	if err := fn(&task); err != nil {
		return err
	}
	s.tasks[taskID] = task
	return nil
}

func cloneRecords(records []scrape.ResultRecord) []scrape.ResultRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]scrape.ResultRecord, len(records))
	copy(out, records)
	return out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
