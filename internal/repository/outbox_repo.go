package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// OutboxRepository handles outbox operations with advisory locking
type OutboxRepository struct {
	db *sqlx.DB

	// The advisory lock is session scoped, so it is taken and released on one
	// dedicated connection instead of whatever the pool hands out.
	mu       sync.Mutex
	lockConn *sqlx.Conn
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// TryAcquireOutboxLock attempts to acquire a PostgreSQL advisory lock.
// Returns true if the lock was acquired, false if another worker has it.
func (r *OutboxRepository) TryAcquireOutboxLock(ctx context.Context, lockKey int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockConn != nil {
		return true, nil
	}

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&acquired); err != nil {
		conn.Close()
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to acquire advisory lock")
		return false, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Close()
		log.Debug().Int64("lock_key", lockKey).Msg("Advisory lock already held by another worker")
		return false, nil
	}

	r.lockConn = conn
	log.Debug().Int64("lock_key", lockKey).Msg("Acquired outbox advisory lock")
	return true, nil
}

// ReleaseOutboxLock releases the PostgreSQL advisory lock and returns its connection to the pool
func (r *OutboxRepository) ReleaseOutboxLock(ctx context.Context, lockKey int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lockConn == nil {
		log.Warn().Int64("lock_key", lockKey).Msg("Advisory lock was not held when trying to release")
		return nil
	}

	conn := r.lockConn
	r.lockConn = nil
	defer conn.Close()

	var released bool
	if err := conn.QueryRowxContext(ctx, "SELECT pg_advisory_unlock($1)", lockKey).Scan(&released); err != nil {
		log.Error().Err(err).Int64("lock_key", lockKey).Msg("Failed to release advisory lock")
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}

	if !released {
		log.Warn().Int64("lock_key", lockKey).Msg("Advisory lock was not held by this session")
	}
	return nil
}

// FetchOutboxBatchOrdered fetches unpublished events in insertion order
func (r *OutboxRepository) FetchOutboxBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	query := `
		SELECT id, event_type, key, payload, created_at, published, published_at, publish_attempts, last_error
		FROM outbox
		WHERE published = false
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error().Err(err).Msg("Failed to rollback transaction")
		}
	}()

	var events []models.OutboxEvent
	if err := tx.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().Int("count", len(events)).Msg("Fetched outbox events for processing")
	return events, nil
}

// MarkOutboxPublished marks events as successfully published
func (r *OutboxRepository) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE outbox SET published = true, published_at = NOW() WHERE id = ANY($1)`

	result, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		log.Error().Err(err).Interface("ids", ids).Msg("Failed to mark outbox events as published")
		return fmt.Errorf("failed to mark outbox events as published: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	log.Debug().Int("count", len(ids)).Int64("rows_affected", rowsAffected).Msg("Marked outbox events as published")
	return nil
}

// IncrementPublishAttempts increments the publish attempts counter and records the error
func (r *OutboxRepository) IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error {
	query := `UPDATE outbox SET publish_attempts = publish_attempts + 1, last_error = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to increment publish attempts")
		return fmt.Errorf("failed to increment publish attempts: %w", err)
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected == 0 {
		log.Warn().Int64("id", id).Msg("No outbox event found to increment attempts")
	}
	return nil
}

// InsertEvent records an event that is not tied to an entity update
func (r *OutboxRepository) InsertEvent(ctx context.Context, event *models.InventoryEvent) error {
	return insertOutboxEvent(ctx, r.db, event)
}

// insertOutboxEvent writes the event through exec, which is a transaction when the
// event must commit together with an entity update.
func insertOutboxEvent(ctx context.Context, exec sqlx.ExecerContext, event *models.InventoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `INSERT INTO outbox (event_type, key, payload, created_at) VALUES ($1, $2, $3, NOW())`

	if _, err := exec.ExecContext(ctx, query, event.EventType, event.Key(), string(payload)); err != nil {
		log.Error().Err(err).
			Str("event_type", event.EventType).
			Str("key", event.Key()).
			Msg("Failed to insert outbox event")
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	log.Debug().Str("event_type", event.EventType).Str("key", event.Key()).Msg("Inserted outbox event")
	return nil
}
