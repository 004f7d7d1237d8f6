package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// messageWriter is the part of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher handles publishing messages to Kafka
type Publisher struct {
	eventsWriter messageWriter
	stateWriter  messageWriter
}

// OutboxConfig controls the outbox publisher loop
type OutboxConfig struct {
	LockKey      int64
	BatchSize    int
	PollInterval time.Duration
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string, eventsTopic, stateTopic string, maxAttempts int) *Publisher {
	// Hash balancer routes messages with the same key (product ID) to the same
	// partition so events of one product stay ordered.
	return &Publisher{
		eventsWriter: newWriter(brokers, eventsTopic, maxAttempts),
		stateWriter:  newWriter(brokers, stateTopic, maxAttempts),
	}
}

func newWriter(brokers []string, topic string, maxAttempts int) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,

		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
		MaxAttempts:  maxAttempts,
		WriteTimeout: 10 * time.Second,
	}
}

// PublishEvent publishes an inventory event to the events topic
func (p *Publisher) PublishEvent(ctx context.Context, event *models.InventoryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}

	if err := p.eventsWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Str("event_type", event.EventType).
			Str("key", event.Key()).
			Str("event_id", event.EventID).
			Msg("Failed to publish event")
		return models.NewSystemError(models.ErrorCodeEventingError, "kafka", "failed to publish event", err)
	}

	log.Debug().
		Str("event_type", event.EventType).
		Str("key", event.Key()).
		Str("event_id", event.EventID).
		Msg("Published event")

	return nil
}

// PublishState publishes a product's inventory snapshot to the state topic
func (p *Publisher) PublishState(ctx context.Context, state *models.InventoryState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(state.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(models.EventTypeInventoryState)},
		},
	}

	if err := p.stateWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).Int64("product_id", state.ProductID).Msg("Failed to publish state")
		return models.NewSystemError(models.ErrorCodeEventingError, "kafka", "failed to publish state", err)
	}

	log.Debug().
		Int64("product_id", state.ProductID).
		Int64("version", state.Version).
		Int("sizes", len(state.Sizes)).
		Bool("deleted", state.Deleted).
		Msg("Published state")

	return nil
}

// Close closes the Kafka writers
func (p *Publisher) Close() error {
	var errs []error

	if err := p.eventsWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close events writer: %w", err))
	}
	if err := p.stateWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close state writer: %w", err))
	}

	return errors.Join(errs...)
}

// RunOutboxPublisher drains the outbox until ctx is cancelled. Only the holder of the
// advisory lock publishes, which keeps per-product ordering across replicas.
func (p *Publisher) RunOutboxPublisher(ctx context.Context, outbox interfaces.OutboxRepository, cfg OutboxConfig) {
	log.Info().
		Int64("lock_key", cfg.LockKey).
		Int("batch_size", cfg.BatchSize).
		Dur("poll_interval", cfg.PollInterval).
		Msg("Starting outbox publisher")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping outbox publisher")
			return
		case <-ticker.C:
			if err := p.processOutboxBatch(ctx, outbox, cfg.LockKey, cfg.BatchSize); err != nil {
				log.Error().Err(err).Msg("Failed to process outbox batch")
			}
		}
	}
}

// processOutboxBatch processes a single batch of outbox events
func (p *Publisher) processOutboxBatch(ctx context.Context, outbox interfaces.OutboxRepository, lockKey int64, batchSize int) error {
	acquired, err := outbox.TryAcquireOutboxLock(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		log.Debug().Msg("Lock held by another worker, skipping batch")
		return nil
	}

	defer func() {
		if err := outbox.ReleaseOutboxLock(ctx, lockKey); err != nil {
			log.Error().Err(err).Msg("Failed to release outbox lock")
		}
	}()

	events, err := outbox.FetchOutboxBatchOrdered(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox batch: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	var (
		successfulIDs []int64
		failedKeys    = make(map[string]bool)
	)
	for _, event := range events {
		// Once a key fails, later events of the same key wait for the next batch
		if failedKeys[event.Key] {
			continue
		}

		if err := p.publishOutboxEvent(ctx, &event); err != nil {
			log.Error().
				Err(err).
				Int64("outbox_id", event.ID).
				Str("event_type", event.EventType).
				Str("key", event.Key).
				Msg("Failed to publish outbox event")

			failedKeys[event.Key] = true
			if incrementErr := outbox.IncrementPublishAttempts(ctx, event.ID, err.Error()); incrementErr != nil {
				log.Error().Err(incrementErr).Int64("outbox_id", event.ID).Msg("Failed to increment publish attempts")
			}
			continue
		}

		successfulIDs = append(successfulIDs, event.ID)
	}

	if len(successfulIDs) > 0 {
		if err := outbox.MarkOutboxPublished(ctx, successfulIDs); err != nil {
			return fmt.Errorf("failed to mark events as published: %w", err)
		}
		log.Info().
			Int("published_count", len(successfulIDs)).
			Int("total_count", len(events)).
			Msg("Outbox batch processed")
	}

	return nil
}

// publishOutboxEvent writes the stored payload as is, keyed like the stored event
func (p *Publisher) publishOutboxEvent(ctx context.Context, outboxEvent *models.OutboxEvent) error {
	message := kafka.Message{
		Key:   []byte(outboxEvent.Key),
		Value: []byte(outboxEvent.Payload),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(outboxEvent.EventType)},
		},
		Time: time.Now(),
	}

	writer := p.eventsWriter
	if outboxEvent.EventType == models.EventTypeInventoryState {
		writer = p.stateWriter
	}

	if err := writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

var _ interfaces.MessagePublisher = (*Publisher)(nil)
