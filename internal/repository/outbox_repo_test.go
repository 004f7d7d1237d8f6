package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

func TestOutboxRepository_AdvisoryLockUsesOneConnection(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(int64(7001)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(int64(7001)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	acquired, err := repo.TryAcquireOutboxLock(context.Background(), 7001)
	require.NoError(t, err)
	assert.True(t, acquired)

	// already held by this repository, no second round trip
	acquired, err = repo.TryAcquireOutboxLock(context.Background(), 7001)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, repo.ReleaseOutboxLock(context.Background(), 7001))
	require.NoError(t, repo.ReleaseOutboxLock(context.Background(), 7001))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_LockHeldElsewhere(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(int64(7001)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := repo.TryAcquireOutboxLock(context.Background(), 7001)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_FetchAndMark(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox WHERE published = false ORDER BY id ASC LIMIT \$1 FOR UPDATE SKIP LOCKED`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "key", "payload", "created_at", "published", "published_at", "publish_attempts", "last_error"}).
			AddRow(1, models.EventTypeSizeReserved, "1", `{}`, now, false, nil, 0, nil).
			AddRow(2, models.EventTypeSizeReleased, "1", `{}`, now, false, nil, 1, "broker down"))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE outbox SET published = true`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE outbox SET publish_attempts = publish_attempts \+ 1`).
		WithArgs(int64(3), "timeout").
		WillReturnResult(sqlmock.NewResult(0, 1))

	events, err := repo.FetchOutboxBatchOrdered(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Nil(t, events[0].LastError)
	require.NotNil(t, events[1].LastError)
	assert.Equal(t, "broker down", *events[1].LastError)

	require.NoError(t, repo.MarkOutboxPublished(context.Background(), []int64{1, 2}))
	require.NoError(t, repo.MarkOutboxPublished(context.Background(), nil))
	require.NoError(t, repo.IncrementPublishAttempts(context.Background(), 3, "timeout"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_InsertEvent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec(`INSERT INTO outbox \(event_type, key, payload, created_at\)`).
		WithArgs(models.EventTypeSaleConfirmationFailed, "5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertEvent(context.Background(), &models.InventoryEvent{
		EventType: models.EventTypeSaleConfirmationFailed,
		ProductID: 5,
		Size:      "9",
		OrderID:   11,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
