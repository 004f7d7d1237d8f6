package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// setIfNewer writes the entry unless the cached one carries a higher version.
// KEYS[1] key, ARGV[1] payload, ARGV[2] version, ARGV[3] ttl in milliseconds.
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local ok, cached = pcall(cjson.decode, current)
	if ok and type(cached) == 'table' and tonumber(cached['version']) and tonumber(cached['version']) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// CacheClient caches the per-product size inventory views with cluster support
type CacheClient struct {
	client    redis.UniversalClient // Universal client supports both single and cluster
	ttl       time.Duration
	keyPrefix string
}

// Options configures the Redis connection
type Options struct {
	Addrs       []string
	Password    string
	ClusterMode bool
	MaxRetries  int
	PoolSize    int
	TTL         time.Duration
	KeyPrefix   string
}

// NewCacheClient creates a new Redis cache client
func NewCacheClient(opts Options) *CacheClient {
	var client redis.UniversalClient

	if opts.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:          opts.Addrs,
			Password:       opts.Password,
			MaxRetries:     opts.MaxRetries,
			PoolSize:       opts.PoolSize,
			MinIdleConns:   5,
			PoolTimeout:    30 * time.Second,
			MaxRedirects:   8,
			RouteByLatency: true,
		})
	} else {
		addr := "localhost:6379"
		if len(opts.Addrs) > 0 {
			addr = opts.Addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:       addr,
			Password:   opts.Password,
			DB:         0, // DB is not supported in cluster mode
			MaxRetries: opts.MaxRetries,
			PoolSize:   opts.PoolSize,
		})
	}

	return NewCacheClientWithClient(client, opts.TTL, opts.KeyPrefix)
}

// NewCacheClientWithClient wraps an existing client
func NewCacheClientWithClient(client redis.UniversalClient, ttl time.Duration, keyPrefix string) *CacheClient {
	return &CacheClient{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// GetInventoryState retrieves the cached inventory of a product, nil on a miss
func (c *CacheClient) GetInventoryState(ctx context.Context, productID int64) (*models.InventoryState, error) {
	key := c.inventoryKey(productID)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to get inventory from cache")
		return nil, models.NewSystemError(models.ErrorCodeCacheError, "redis", "failed to get inventory from cache", err)
	}

	var state models.InventoryState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		// A corrupt entry is treated as a miss and evicted
		log.Warn().Err(err).Int64("product_id", productID).Msg("Discarding unreadable cache entry")
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			log.Error().Err(delErr).Int64("product_id", productID).Msg("Failed to evict unreadable cache entry")
		}
		return nil, nil
	}

	log.Debug().Int64("product_id", productID).Msg("Cache hit for inventory")
	return &state, nil
}

// SetInventoryState stores the inventory views of a product. An entry with a higher
// version is kept, so a late write of an older snapshot is a no-op.
func (c *CacheClient) SetInventoryState(ctx context.Context, state *models.InventoryState) error {
	key := c.inventoryKey(state.ProductID)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory state: %w", err)
	}

	written, err := setIfNewer.Run(ctx, c.client, []string{key}, string(data), state.Version, c.ttl.Milliseconds()).Int64()
	if err != nil {
		log.Error().Err(err).Int64("product_id", state.ProductID).Msg("Failed to set inventory in cache")
		return models.NewSystemError(models.ErrorCodeCacheError, "redis", "failed to set inventory in cache", err)
	}

	if written == 0 {
		log.Debug().Int64("product_id", state.ProductID).Int64("version", state.Version).Msg("Skipped stale inventory snapshot")
		return nil
	}
	log.Debug().Int64("product_id", state.ProductID).Int64("version", state.Version).Msg("Cached inventory")
	return nil
}

// DeleteInventoryState removes the cached inventory of a product
func (c *CacheClient) DeleteInventoryState(ctx context.Context, productID int64) error {
	if err := c.client.Del(ctx, c.inventoryKey(productID)).Err(); err != nil {
		log.Error().Err(err).Int64("product_id", productID).Msg("Failed to delete inventory from cache")
		return models.NewSystemError(models.ErrorCodeCacheError, "redis", "failed to delete inventory from cache", err)
	}

	log.Debug().Int64("product_id", productID).Msg("Deleted inventory from cache")
	return nil
}

// UpdateInventoryFromState applies a state message from Kafka
func (c *CacheClient) UpdateInventoryFromState(ctx context.Context, state *models.InventoryState) error {
	if state.Deleted {
		return c.DeleteInventoryState(ctx, state.ProductID)
	}
	return c.SetInventoryState(ctx, state)
}

// Ping checks if Redis is available
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.client.Close()
}

func (c *CacheClient) inventoryKey(productID int64) string {
	return fmt.Sprintf("%sproduct:%d:inventory", c.keyPrefix, productID)
}
