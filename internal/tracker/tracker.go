// Package tracker runs asynchronous payment-sync follow-ups. Operations
// enqueue a task when a connector leaves an attempt in a progressing
// status; the worker claims due tasks (each task by at most one claimer),
// drives a sync, and either completes the task or reschedules it strictly
// forward until the retry budget runs out.
package tracker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/payment-switch/internal/domain"
)

// Task is one scheduled follow-up row.
type Task struct {
	ID          string
	MerchantID  string
	IntentID    string
	AttemptID   string
	Status      domain.TrackerStatus
	RetryCount  int
	ScheduledAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository is the task store. Claiming must hand each due task to at
// most one claimer even with concurrent workers.
type Repository interface {
	Enqueue(ctx context.Context, task *Task) error
	// ClaimDue returns up to limit tasks scheduled at or before now,
	// marking them claimed so no other worker sees them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
	// Complete sets the terminal business status completed_by_tracker.
	Complete(ctx context.Context, taskID string) error
	// Reschedule releases a claimed task with an incremented retry count
	// and a strictly later due time.
	Reschedule(ctx context.Context, taskID string, at time.Time) error
	// Exhaust sets the terminal business status retries_exceeded.
	Exhaust(ctx context.Context, taskID string) error
}

// Syncer drives one payment sync; the operation engine implements it.
type Syncer interface {
	Sync(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
}

// Worker claims and executes due tasks on an interval.
type Worker struct {
	repo       Repository
	syncer     Syncer
	interval   time.Duration
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

// NewWorker creates a worker with the given claim interval.
func NewWorker(repo Repository, syncer Syncer, interval time.Duration) *Worker {
	if repo == nil {
		panic("repository cannot be nil")
	}
	if syncer == nil {
		panic("syncer cannot be nil")
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{
		repo:       repo,
		syncer:     syncer,
		interval:   interval,
		batchSize:  50,
		maxRetries: 5,
		backoff:    30 * time.Second,
	}
}

// ScheduleSync enqueues a follow-up sync. It satisfies the operation
// engine's scheduler contract.
func (w *Worker) ScheduleSync(ctx context.Context, merchantID, intentID, attemptID string, at time.Time) error {
	return w.repo.Enqueue(ctx, &Task{
		ID:          "trk_" + uuid.NewString(),
		MerchantID:  merchantID,
		IntentID:    intentID,
		AttemptID:   attemptID,
		Status:      domain.TrackerPending,
		ScheduledAt: at,
	})
}

// Run claims and executes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick claims one batch of due tasks and executes them. Exported so tests
// and single-shot callers can drive the worker without the loop.
func (w *Worker) Tick(ctx context.Context) {
	tasks, err := w.repo.ClaimDue(ctx, time.Now(), w.batchSize)
	if err != nil {
		log.Printf("tracker: claiming due tasks: %v", err)
		return
	}
	for _, task := range tasks {
		w.executeTask(ctx, task)
	}
}

func (w *Worker) executeTask(ctx context.Context, task Task) {
	intent, err := w.syncer.Sync(ctx, task.IntentID)
	if err == nil && intent.Status.Terminal() {
		if err := w.repo.Complete(ctx, task.ID); err != nil {
			log.Printf("tracker: completing task %s: %v", task.ID, err)
		}
		return
	}
	if err != nil {
		log.Printf("tracker: sync for intent %s: %v", task.IntentID, err)
	}

	if task.RetryCount+1 >= w.maxRetries {
		if err := w.repo.Exhaust(ctx, task.ID); err != nil {
			log.Printf("tracker: exhausting task %s: %v", task.ID, err)
		}
		return
	}
	// Scheduling only ever moves forward; the backoff grows with the
	// retry count.
	next := time.Now().Add(w.backoff * time.Duration(task.RetryCount+1))
	if err := w.repo.Reschedule(ctx, task.ID, next); err != nil {
		log.Printf("tracker: rescheduling task %s: %v", task.ID, err)
	}
}
