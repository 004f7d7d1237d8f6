package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Josef-Cakes/IndustryE/internal/models"
	"github.com/Josef-Cakes/IndustryE/internal/repository"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failKeys map[string]bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		if w.failKeys[string(msg.Key)] {
			return errors.New("broker unavailable")
		}
		w.messages = append(w.messages, msg)
	}
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader hands out queued messages and cancels the context once drained
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) HandleEvent(ctx context.Context, event *models.InventoryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockStateHandler struct {
	mock.Mock
}

func (m *MockStateHandler) HandleState(ctx context.Context, state *models.InventoryState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func eventMessage(t *testing.T, offset int64, event models.InventoryEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(event.Key()), Value: data}
}

func TestPublisher_ProcessOutboxBatch(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	events := &fakeWriter{failKeys: map[string]bool{"2": true}}
	state := &fakeWriter{}
	publisher := &Publisher{eventsWriter: events, stateWriter: state}

	require.NoError(t, store.InsertEvent(ctx, &models.InventoryEvent{EventType: models.EventTypeSizeReserved, ProductID: 1}))
	require.NoError(t, store.InsertEvent(ctx, &models.InventoryEvent{EventType: models.EventTypeSizeReserved, ProductID: 2}))
	require.NoError(t, store.InsertEvent(ctx, &models.InventoryEvent{EventType: models.EventTypeSizeReleased, ProductID: 2}))
	require.NoError(t, store.InsertEvent(ctx, &models.InventoryEvent{EventType: models.EventTypeSaleConfirmed, ProductID: 1}))

	require.NoError(t, publisher.processOutboxBatch(ctx, store, 1, 10))

	require.Len(t, events.messages, 2)
	assert.Equal(t, "1", string(events.messages[0].Key))
	assert.Equal(t, "1", string(events.messages[1].Key))
	assert.Empty(t, state.messages)

	pending, err := store.FetchOutboxBatchOrdered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "both events of the failing key stay in the outbox")
	assert.Equal(t, 1, pending[0].PublishAttempts)
	assert.Equal(t, 0, pending[1].PublishAttempts)

	// broker recovers, the remaining events go out in order
	events.failKeys = nil
	require.NoError(t, publisher.processOutboxBatch(ctx, store, 1, 10))
	require.Len(t, events.messages, 4)
	assert.Contains(t, string(events.messages[2].Value), models.EventTypeSizeReserved)
	assert.Contains(t, string(events.messages[3].Value), models.EventTypeSizeReleased)
}

func TestPublisher_RunOutboxPublisherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := repository.NewMemoryStore()
	events := &fakeWriter{}
	publisher := &Publisher{eventsWriter: events, stateWriter: &fakeWriter{}}
	require.NoError(t, store.InsertEvent(ctx, &models.InventoryEvent{EventType: models.EventTypeQuantitySet, ProductID: 3}))

	done := make(chan struct{})
	go func() {
		publisher.RunOutboxPublisher(ctx, store, OutboxConfig{LockKey: 1, BatchSize: 10, PollInterval: 5 * time.Millisecond})
		close(done)
	}()

	assert.Eventually(t, func() bool {
		pending, _ := store.FetchOutboxBatchOrdered(context.Background(), 10)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("outbox publisher did not stop")
	}
}

func TestPublisher_PublishState(t *testing.T) {
	state := &fakeWriter{}
	publisher := &Publisher{eventsWriter: &fakeWriter{}, stateWriter: state}

	err := publisher.PublishState(context.Background(), &models.InventoryState{ProductID: 9, Version: 4})
	require.NoError(t, err)
	require.Len(t, state.messages, 1)
	assert.Equal(t, "9", string(state.messages[0].Key))

	failing := &Publisher{eventsWriter: &fakeWriter{failKeys: map[string]bool{"9": true}}, stateWriter: &fakeWriter{}}
	err = failing.PublishEvent(context.Background(), &models.InventoryEvent{ProductID: 9})
	assert.Equal(t, models.ErrorCodeEventingError, models.GetErrorCode(err))
}

func TestConsumer_ConsumeEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good := models.InventoryEvent{EventID: "e-1", EventType: models.EventTypeSizeReserved, ProductID: 1}
	rejected := models.InventoryEvent{EventID: "e-2", EventType: models.EventTypeSizeReserved, ProductID: 2}
	reader := &fakeReader{
		queue: []kafka.Message{
			eventMessage(t, 10, good),
			{Offset: 11, Value: []byte("{broken")},
			eventMessage(t, 12, rejected),
		},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, fetchBackoff: time.Millisecond}

	handler := new(MockEventHandler)
	handler.On("HandleEvent", mock.Anything, mock.MatchedBy(func(e *models.InventoryEvent) bool { return e.EventID == "e-1" })).
		Return(nil).Once()
	handler.On("HandleEvent", mock.Anything, mock.MatchedBy(func(e *models.InventoryEvent) bool { return e.EventID == "e-2" })).
		Return(models.NewNotFoundError(models.ResourceProduct, "2")).Once()

	err := consumer.ConsumeEvents(ctx, handler)

	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 12}, reader.committed)
	handler.AssertExpectations(t)
}

func TestConsumer_RetryableFailureHoldsPartition(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue: []kafka.Message{
			eventMessage(t, 20, models.InventoryEvent{EventID: "e-3", ProductID: 3}),
			eventMessage(t, 21, models.InventoryEvent{EventID: "e-4", ProductID: 3}),
		},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, fetchBackoff: time.Millisecond}

	var handled []string
	handler := new(MockEventHandler)
	handler.On("HandleEvent", mock.Anything, mock.Anything).
		Return(errors.New("database unavailable")).Times(maxHandlerRetries + 1)
	handler.On("HandleEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { handled = append(handled, args.Get(1).(*models.InventoryEvent).EventID) }).
		Return(nil)

	require.NoError(t, consumer.ConsumeEvents(ctx, handler))

	// e-4 is only handled once e-3 went through
	assert.Equal(t, []string{"e-3", "e-4"}, handled)
	assert.Equal(t, []int64{20, 21}, reader.committed)
	handler.AssertNumberOfCalls(t, "HandleEvent", maxHandlerRetries+3)
}

func TestConsumer_StopsWhileHoldingPartition(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reader := &fakeReader{
		queue:  []kafka.Message{eventMessage(t, 30, models.InventoryEvent{EventID: "e-5", ProductID: 5})},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, fetchBackoff: time.Millisecond}

	handler := new(MockEventHandler)
	handler.On("HandleEvent", mock.Anything, mock.Anything).Return(errors.New("database unavailable"))

	require.NoError(t, consumer.ConsumeEvents(ctx, handler))
	assert.Empty(t, reader.committed)
}

func TestConsumer_ConsumeState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	data, err := json.Marshal(models.InventoryState{ProductID: 5, Version: 2})
	require.NoError(t, err)
	reader := &fakeReader{
		queue:  []kafka.Message{{Offset: 1, Value: data}, {Offset: 2, Value: []byte("nope")}},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, fetchBackoff: time.Millisecond}

	handler := new(MockStateHandler)
	handler.On("HandleState", mock.Anything, mock.MatchedBy(func(s *models.InventoryState) bool { return s.ProductID == 5 })).
		Return(nil).Once()

	require.NoError(t, consumer.ConsumeState(ctx, handler))
	assert.Equal(t, []int64{1, 2}, reader.committed)
	handler.AssertExpectations(t)
}

func TestIsNonRetryableError(t *testing.T) {
	assert.False(t, isNonRetryableError(nil))
	assert.False(t, isNonRetryableError(errors.New("timeout")))
	assert.True(t, isNonRetryableError(models.NewValidationError("qty", "must be positive", 0)))
	assert.True(t, isNonRetryableError(models.NewBusinessError(models.ErrorCodeInsufficientStock, "short", nil)))
	assert.True(t, isNonRetryableError(models.NewSystemError(models.ErrorCodeDecodeFailure, "size_inventory", "bad", nil)))
	assert.False(t, isNonRetryableError(models.NewSystemError(models.ErrorCodeDatabaseError, "db", "down", nil)))
}
