package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/domain"
)

func TestPostgresEnqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`INSERT INTO tracker_tasks`).
		WithArgs("trk_1", "merchant_1", "pay_1", "att_1", "pending", 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Enqueue(context.Background(), &Task{
		ID:          "trk_1",
		MerchantID:  "merchant_1",
		IntentID:    "pay_1",
		AttemptID:   "att_1",
		ScheduledAt: time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "merchant_id", "intent_id", "attempt_id", "retry_count", "scheduled_at"}).
		AddRow("trk_1", "merchant_1", "pay_1", "att_1", 0, now.Add(-time.Minute)).
		AddRow("trk_2", "merchant_1", "pay_2", "att_2", 2, now.Add(-time.Second))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, merchant_id, intent_id, attempt_id, retry_count, scheduled_at`).
		WithArgs("pending", sqlmock.AnyArg(), 50).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE tracker_tasks SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("claimed", sqlmock.AnyArg(), "trk_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE tracker_tasks SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("claimed", sqlmock.AnyArg(), "trk_2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tasks, err := repo.ClaimDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "trk_1", tasks[0].ID)
	assert.Equal(t, 2, tasks[1].RetryCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresComplete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`UPDATE tracker_tasks SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(string(domain.TrackerCompletedByTracker), sqlmock.AnyArg(), "trk_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Complete(context.Background(), "trk_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReschedule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	at := time.Now().Add(time.Minute)

	mock.ExpectExec(`UPDATE tracker_tasks SET status = \$1, retry_count = retry_count \+ 1, scheduled_at = \$2`).
		WithArgs("pending", at, sqlmock.AnyArg(), "trk_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Reschedule(context.Background(), "trk_1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExhaust(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`UPDATE tracker_tasks SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(string(domain.TrackerRetriesExceeded), sqlmock.AnyArg(), "trk_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Exhaust(context.Background(), "trk_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
