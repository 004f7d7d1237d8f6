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
	"github.com/Josef-Cakes/IndustryE/internal/kafka"
	redisCache "github.com/Josef-Cakes/IndustryE/internal/redis"
	"github.com/Josef-Cakes/IndustryE/internal/repository"
	"github.com/Josef-Cakes/IndustryE/internal/service"
)

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

	log.Info().Msg("Database connection established")
	return db
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

	log.Info().Msg("Redis connection established")
	return cache
}

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)
	log.Info().Str("instance_id", cfg.InstanceID).Msg("Starting Reader Service...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.StorageDriver != config.StorageDriverPostgres {
		// the read path falls back to the shared database on a cache miss
		log.Fatal().Str("storage_driver", cfg.StorageDriver).Msg("Reader Service requires the postgres storage driver")
	}

	db := initializeDatabase(cfg)
	defer db.Close()

	cache := initializeCache(cfg)
	defer cache.Close()

	inventoryService, err := service.NewInventoryService(repository.NewProductRepository(db), cache, service.ServiceConfig{
		CacheTimeout:        cfg.CacheTimeout,
		InvalidationTimeout: cfg.InvalidationTimeout,
		LowStockThreshold:   cfg.LowStockThreshold,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create inventory service")
	}
	readerService := service.NewReaderService(inventoryService, cache)

	consumer := kafka.NewStateConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup+"-reader", cfg.KafkaStateTopicName)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.ConsumeState(ctx, readerService); err != nil {
			log.Error().Err(err).Msg("State consumer stopped with error")
		}
	}()

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      api.NewReaderHandler(readerService).SetupReaderRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", server.Addr).Msg("Reader Service HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Reader Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancel()
	<-consumerDone

	log.Info().Msg("Reader Service stopped")
}
