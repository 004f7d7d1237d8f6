package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Josef-Cakes/IndustryE/internal/api"
	"github.com/Josef-Cakes/IndustryE/internal/config"
	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/kafka"
	redisCache "github.com/Josef-Cakes/IndustryE/internal/redis"
	"github.com/Josef-Cakes/IndustryE/internal/repository"
	"github.com/Josef-Cakes/IndustryE/internal/service"
	"github.com/Josef-Cakes/IndustryE/migrations"
)

// stores groups the repositories of the selected storage driver
type stores struct {
	products interfaces.ProductRepository
	orders   interfaces.OrderRepository
	outbox   interfaces.OutboxRepository
	alerts   interfaces.OutboxWriter
}

// setupLogging configures structured logging
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// initializeDatabase sets up and tests the database connection
func initializeDatabase(cfg *config.Config) *sqlx.DB {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	log.Info().Int("max_conns", cfg.DatabaseMaxConns).Msg("Database connection established")

	if cfg.DatabaseAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrations.Apply(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}
	return db
}

// initializeStores picks the repositories for STORAGE_DRIVER
func initializeStores(cfg *config.Config) (stores, func()) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		store := repository.NewMemoryStore()
		return stores{products: store, orders: store, outbox: store, alerts: store}, func() {}
	}

	db := initializeDatabase(cfg)
	outbox := repository.NewOutboxRepository(db)
	return stores{
			products: repository.NewProductRepository(db),
			orders:   repository.NewOrderRepository(db),
			outbox:   outbox,
			alerts:   outbox,
		}, func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
}

// initializeCache sets up Redis cache with cluster support
func initializeCache(cfg *config.Config) *redisCache.CacheClient {
	cache := redisCache.NewCacheClient(redisCache.Options{
		Addrs:       cfg.RedisAddrs,
		Password:    cfg.RedisPassword,
		ClusterMode: cfg.RedisClusterMode,
		MaxRetries:  cfg.RedisMaxRetries,
		PoolSize:    cfg.RedisPoolSize,
		TTL:         cfg.RedisTTL,
		KeyPrefix:   cfg.RedisKeyPrefix,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Strs("addrs", cfg.RedisAddrs).Bool("cluster", cfg.RedisClusterMode).Msg("Redis connection established")

	return cache
}

// createServices wires the inventory, order and catalog services
func createServices(repos stores, cache interfaces.CacheRepository, cfg *config.Config) (*service.InventoryService, *service.OrderService, *service.CatalogService) {
	serviceConfig := service.ServiceConfig{
		CacheTimeout:        cfg.CacheTimeout,
		InvalidationTimeout: cfg.InvalidationTimeout,
		LowStockThreshold:   cfg.LowStockThreshold,
	}

	log.Info().
		Dur("cache_timeout", serviceConfig.CacheTimeout).
		Dur("invalidation_timeout", serviceConfig.InvalidationTimeout).
		Int("low_stock_threshold", serviceConfig.LowStockThreshold).
		Msg("Service configuration loaded")

	inventoryService, err := service.NewInventoryService(repos.products, cache, serviceConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create inventory service")
	}

	catalogService := service.NewCatalogService(repos.products, cache, serviceConfig)
	orderService := service.NewOrderService(repos.orders, inventoryService, repos.alerts, catalogService)
	return inventoryService, orderService, catalogService
}

// startHTTPServer starts the HTTP server
func startHTTPServer(cfg *config.Config, handler *api.StorefrontHandler) *http.Server {
	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      handler.SetupStorefrontRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("address", server.Addr).Msg("Storefront HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	return server
}

// startOutboxWorker starts the outbox publisher with advisory locks
func startOutboxWorker(ctx context.Context, cfg *config.Config, outbox interfaces.OutboxRepository, publisher *kafka.Publisher) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		publisher.RunOutboxPublisher(ctx, outbox, kafka.OutboxConfig{
			LockKey:      cfg.OutboxLockKey,
			BatchSize:    cfg.OutboxBatchSize,
			PollInterval: cfg.OutboxPollInterval,
		})
		log.Warn().Msg("Outbox publisher stopped")
	}()

	return done
}

// gracefulShutdown waits for a signal, then stops the server and the background workers
func gracefulShutdown(server *http.Server, stopWorkers context.CancelFunc, workersDone <-chan struct{}) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Storefront Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-ctx.Done():
		log.Warn().Msg("Outbox publisher did not stop in time")
	}

	log.Info().Msg("Storefront Service stopped")
}

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)
	log.Info().Str("instance_id", cfg.InstanceID).Str("environment", cfg.Environment).Msg("Starting Storefront Service...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	repos, closeStores := initializeStores(cfg)
	defer closeStores()

	cache := initializeCache(cfg)
	defer cache.Close()

	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopicName, cfg.KafkaStateTopicName, cfg.KafkaRetries)
	defer publisher.Close()

	inventoryService, orderService, catalogService := createServices(repos, cache, cfg)
	server := startHTTPServer(cfg, api.NewStorefrontHandler(inventoryService, orderService, catalogService))

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := startOutboxWorker(workerCtx, cfg, repos.outbox, publisher)

	gracefulShutdown(server, stopWorkers, workersDone)
}
