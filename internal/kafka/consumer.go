package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

const maxHandlerRetries = 3

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic through a consumer group
type Consumer struct {
	reader       messageReader
	fetchBackoff time.Duration
}

// NewEventsConsumer creates a consumer of the inventory events topic
func NewEventsConsumer(brokers []string, consumerGroup, topic string) *Consumer {
	return newConsumer(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        consumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // commit synchronously, offsets move only after handling
		StartOffset:    kafka.FirstOffset,
		MaxWait:        time.Second,
	})
}

// NewStateConsumer creates a consumer of the inventory state topic
func NewStateConsumer(brokers []string, consumerGroup, topic string) *Consumer {
	return newConsumer(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        consumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})
}

func newConsumer(cfg kafka.ReaderConfig) *Consumer {
	topic := cfg.Topic
	cfg.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
		log.Error().Str("topic", topic).Msgf("Kafka reader error: "+msg, args...)
	})

	return &Consumer{
		reader:       kafka.NewReader(cfg),
		fetchBackoff: time.Second,
	}
}

// ConsumeEvents consumes inventory events and processes them with the provided handler
func (c *Consumer) ConsumeEvents(ctx context.Context, handler interfaces.EventHandler) error {
	log.Info().Msg("Starting to consume inventory events")

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Stopping event consumption")
				return nil
			}
			log.Error().Err(err).Msg("Failed to fetch event message")
			c.sleep(ctx)
			continue
		}

		var event models.InventoryEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			log.Error().Err(err).
				Str("topic", message.Topic).
				Int("partition", message.Partition).
				Int64("offset", message.Offset).
				Msg("Failed to unmarshal event, skipping")

			if commitErr := c.reader.CommitMessages(ctx, message); commitErr != nil {
				log.Error().Err(commitErr).Msg("Failed to commit invalid message")
			}
			continue
		}

		if !c.handleEvent(ctx, handler, &event) {
			log.Info().Msg("Stopping event consumption")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to commit event message")
		}
	}
}

// ConsumeState consumes state snapshots and processes them with the provided handler
func (c *Consumer) ConsumeState(ctx context.Context, handler interfaces.StateHandler) error {
	log.Info().Msg("Starting to consume inventory state updates")

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Stopping state consumption")
				return nil
			}
			log.Error().Err(err).Msg("Failed to fetch state message")
			c.sleep(ctx)
			continue
		}

		var state models.InventoryState
		if err := json.Unmarshal(message.Value, &state); err != nil {
			log.Error().Err(err).
				Str("topic", message.Topic).
				Int("partition", message.Partition).
				Int64("offset", message.Offset).
				Msg("Failed to unmarshal state, skipping")
		} else if err := handler.HandleState(ctx, &state); err != nil {
			// The next snapshot of the product supersedes this one
			log.Error().Err(err).Int64("product_id", state.ProductID).Msg("Failed to handle state update")
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			log.Error().Err(err).Msg("Failed to commit state message")
		}
	}
}

// handleEvent runs the handler until it succeeds or fails permanently. A transient
// failure holds the partition so later events of the product are not applied before
// it. Returns false when ctx is cancelled first.
func (c *Consumer) handleEvent(ctx context.Context, handler interfaces.EventHandler, event *models.InventoryEvent) bool {
	for {
		err := c.processEventWithRetry(ctx, handler, event, maxHandlerRetries)
		if err == nil {
			return true
		}
		if isNonRetryableError(err) {
			// committed so it does not block the partition
			log.Error().Err(err).
				Str("event_type", event.EventType).
				Int64("product_id", event.ProductID).
				Str("event_id", event.EventID).
				Msg("Dropping event that cannot be handled")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		log.Error().Err(err).
			Str("event_id", event.EventID).
			Int64("product_id", event.ProductID).
			Msg("Event handling keeps failing, holding partition")
		c.sleep(ctx)
	}
}

// processEventWithRetry processes an event with exponential backoff retry logic
func (c *Consumer) processEventWithRetry(ctx context.Context, handler interfaces.EventHandler, event *models.InventoryEvent, maxRetries int) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = handler.HandleEvent(ctx, event); err == nil {
			return nil
		}

		if isNonRetryableError(err) {
			log.Warn().Err(err).Str("event_id", event.EventID).Msg("Non-retryable error, skipping event")
			return err
		}

		if attempt < maxRetries {
			// 100ms, 200ms, 400ms
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			log.Warn().Err(err).
				Str("event_id", event.EventID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Event processing failed, retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("event processing failed after %d attempts: %w", maxRetries+1, err)
}

// isNonRetryableError reports errors that will fail the same way on every attempt
func isNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return models.IsValidationError(err) ||
		models.IsBusinessError(err) ||
		models.IsNotFoundError(err) ||
		models.HasErrorCode(err, models.ErrorCodeDecodeFailure)
}

func (c *Consumer) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.fetchBackoff):
	}
}

// Close closes the Kafka reader
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}

var _ interfaces.MessageConsumer = (*Consumer)(nil)
