package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

const testPrefix = "shop:test:"

func newTestCache(t *testing.T) (*CacheClient, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewCacheClientWithClient(db, time.Minute, testPrefix), mock
}

func sampleState() *models.InventoryState {
	return &models.InventoryState{
		ProductID: 42,
		Sizes: models.SizeInventory{
			"9":  {Quantity: 10, Reserved: 2},
			"10": {Quantity: 3},
		}.Views(),
		Version:   7,
		UpdatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCacheClient_GetInventoryState_Hit(t *testing.T) {
	cache, mock := newTestCache(t)
	state := sampleState()
	data, err := json.Marshal(state)
	require.NoError(t, err)

	mock.ExpectGet("shop:test:product:42:inventory").SetVal(string(data))

	cached, err := cache.GetInventoryState(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, state.Sizes, cached.Sizes)
	assert.Equal(t, int64(7), cached.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_GetInventoryState_Miss(t *testing.T) {
	cache, mock := newTestCache(t)

	mock.ExpectGet("shop:test:product:42:inventory").RedisNil()

	cached, err := cache.GetInventoryState(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_GetInventoryState_CorruptEntryEvicted(t *testing.T) {
	cache, mock := newTestCache(t)

	mock.ExpectGet("shop:test:product:42:inventory").SetVal("{not json")
	mock.ExpectDel("shop:test:product:42:inventory").SetVal(1)

	cached, err := cache.GetInventoryState(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, cached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_GetInventoryState_Error(t *testing.T) {
	cache, mock := newTestCache(t)

	mock.ExpectGet("shop:test:product:42:inventory").SetErr(errors.New("connection refused"))

	_, err := cache.GetInventoryState(context.Background(), 42)
	assert.Equal(t, models.ErrorCodeCacheError, models.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_UpdateInventoryFromState(t *testing.T) {
	cache, mock := newTestCache(t)
	state := sampleState()
	data, err := json.Marshal(state)
	require.NoError(t, err)

	mock.ExpectEvalSha(setIfNewer.Hash(), []string{"shop:test:product:42:inventory"}, string(data), int64(7), int64(60000)).SetVal(int64(1))
	mock.ExpectDel("shop:test:product:42:inventory").SetVal(1)

	require.NoError(t, cache.UpdateInventoryFromState(context.Background(), state))

	deleted := &models.InventoryState{ProductID: 42, Deleted: true}
	require.NoError(t, cache.UpdateInventoryFromState(context.Background(), deleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_SetInventoryState_OlderSnapshotSkipped(t *testing.T) {
	cache, mock := newTestCache(t)
	state := sampleState()
	state.Version = 3
	data, err := json.Marshal(state)
	require.NoError(t, err)

	// the script reports 0 when a newer version is already cached
	mock.ExpectEvalSha(setIfNewer.Hash(), []string{"shop:test:product:42:inventory"}, string(data), int64(3), int64(60000)).SetVal(int64(0))

	assert.NoError(t, cache.SetInventoryState(context.Background(), state))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_SetInventoryState_Error(t *testing.T) {
	cache, mock := newTestCache(t)
	state := sampleState()
	data, err := json.Marshal(state)
	require.NoError(t, err)

	mock.ExpectEvalSha(setIfNewer.Hash(), []string{"shop:test:product:42:inventory"}, string(data), int64(7), int64(60000)).
		SetErr(errors.New("connection refused"))

	err = cache.SetInventoryState(context.Background(), state)
	assert.Equal(t, models.ErrorCodeCacheError, models.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
