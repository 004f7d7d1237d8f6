package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("REDIS_ADDRS", "")
	t.Setenv("DATABASE_AUTO_MIGRATE", "")

	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "inventory.events", cfg.KafkaEventsTopicName)
	assert.Equal(t, "inventory.state", cfg.KafkaStateTopicName)
	assert.False(t, cfg.RedisClusterMode)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 10, cfg.DatabaseMaxConns)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
	assert.Len(t, cfg.InstanceID, 8)
	assert.True(t, cfg.DatabaseAutoMigrate)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("REDIS_ADDRS", "redis-1:6379; redis-2:6379,redis-3:6379")
	t.Setenv("LOW_STOCK_THRESHOLD", "2")
	t.Setenv("OUTBOX_POLL_INTERVAL", "2s")
	t.Setenv("OUTBOX_LOCK_KEY", "99")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_AUTO_MIGRATE", "")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"redis-1:6379", "redis-2:6379", "redis-3:6379"}, cfg.RedisAddrs)
	assert.True(t, cfg.RedisClusterMode)
	assert.Equal(t, 2, cfg.LowStockThreshold)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, int64(99), cfg.OutboxLockKey)
	assert.Equal(t, 25, cfg.DatabaseMaxConns)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTPAddr())
	assert.False(t, cfg.DatabaseAutoMigrate)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "lots")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{StorageDriver: "sqlite", KafkaBrokers: []string{"k:9092"}, OutboxBatchSize: 1}
	assert.Error(t, cfg.Validate())

	cfg.StorageDriver = StorageDriverPostgres
	assert.Error(t, cfg.Validate(), "postgres without DATABASE_URL")

	cfg.DatabaseURL = "postgres://localhost/db"
	assert.NoError(t, cfg.Validate())

	cfg.LowStockThreshold = -1
	assert.Error(t, cfg.Validate())
}
