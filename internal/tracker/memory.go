package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/payment-switch/internal/domain"
)

// MemoryRepository is the in-memory task store for tests and local runs.
type MemoryRepository struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*Task)}
}

func (r *MemoryRepository) Enqueue(_ context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	stored := *task
	stored.Status = domain.TrackerPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.tasks[task.ID] = &stored
	return nil
}

func (r *MemoryRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Task
	for _, task := range r.tasks {
		if task.Status == domain.TrackerPending && !task.ScheduledAt.After(now) {
			due = append(due, *task)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for _, task := range due {
		r.tasks[task.ID].Status = domain.TrackerClaimed
		r.tasks[task.ID].UpdatedAt = now
	}
	return due, nil
}

func (r *MemoryRepository) Complete(_ context.Context, taskID string) error {
	return r.setStatus(taskID, domain.TrackerCompletedByTracker)
}

func (r *MemoryRepository) Reschedule(_ context.Context, taskID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil
	}
	task.Status = domain.TrackerPending
	task.RetryCount++
	task.ScheduledAt = at
	task.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) Exhaust(_ context.Context, taskID string) error {
	return r.setStatus(taskID, domain.TrackerRetriesExceeded)
}

func (r *MemoryRepository) setStatus(taskID string, status domain.TrackerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[taskID]; ok {
		task.Status = status
		task.UpdatedAt = time.Now()
	}
	return nil
}

// Get returns a snapshot of one task; tests use it to observe state.
func (r *MemoryRepository) Get(taskID string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// All returns a snapshot of every task.
func (r *MemoryRepository) All() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, *task)
	}
	return out
}
