package tracker

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/yourorg/payment-switch/internal/domain"
)

// PostgresRepository stores tracker tasks in Postgres. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never hand the same task
// to two claimers.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresRepository{db: db}
}

// Open connects to Postgres and returns the repository.
func Open(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return NewPostgresRepository(db), nil
}

func (r *PostgresRepository) Enqueue(ctx context.Context, task *Task) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tracker_tasks (id, merchant_id, intent_id, attempt_id, status, retry_count, scheduled_at, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		task.ID, task.MerchantID, task.IntentID, task.AttemptID,
		string(domain.TrackerPending), task.RetryCount, task.ScheduledAt, now)
	return err
}

func (r *PostgresRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, merchant_id, intent_id, attempt_id, retry_count, scheduled_at
         FROM tracker_tasks
         WHERE status = $1 AND scheduled_at <= $2
         ORDER BY scheduled_at
         FOR UPDATE SKIP LOCKED
         LIMIT $3`,
		string(domain.TrackerPending), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task := Task{Status: domain.TrackerPending}
		if err = rows.Scan(&task.ID, &task.MerchantID, &task.IntentID, &task.AttemptID, &task.RetryCount, &task.ScheduledAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if _, err = tx.ExecContext(ctx,
			`UPDATE tracker_tasks SET status = $1, updated_at = $2 WHERE id = $3`,
			string(domain.TrackerClaimed), now, task.ID); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracker_tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		string(domain.TrackerCompletedByTracker), time.Now(), taskID)
	return err
}

func (r *PostgresRepository) Reschedule(ctx context.Context, taskID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracker_tasks SET status = $1, retry_count = retry_count + 1, scheduled_at = $2, updated_at = $3 WHERE id = $4`,
		string(domain.TrackerPending), at, time.Now(), taskID)
	return err
}

func (r *PostgresRepository) Exhaust(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tracker_tasks SET status = $1, updated_at = $2 WHERE id = $3`,
		string(domain.TrackerRetriesExceeded), time.Now(), taskID)
	return err
}

// Close releases the database handle.
func (r *PostgresRepository) Close() error { return r.db.Close() }
