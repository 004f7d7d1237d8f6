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

func main() {
	cfg := config.LoadConfig()
	setupLogging(cfg)
	log.Info().Str("instance_id", cfg.InstanceID).Msg("Starting Processor Service...")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.StorageDriver != config.StorageDriverPostgres {
		log.Fatal().Str("storage_driver", cfg.StorageDriver).Msg("Processor Service requires the postgres storage driver")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DatabaseMaxConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	log.Info().Msg("Database connection established")

	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaEventsTopicName, cfg.KafkaStateTopicName, cfg.KafkaRetries)
	defer publisher.Close()

	consumer := kafka.NewEventsConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaEventsTopicName)
	defer consumer.Close()

	projector := service.NewStateProjector(repository.NewProductRepository(db), publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		log.Info().Str("topic", cfg.KafkaEventsTopicName).Str("group", cfg.KafkaConsumerGroup).Msg("Projecting inventory events")
		if err := consumer.ConsumeEvents(ctx, projector); err != nil {
			log.Error().Err(err).Msg("Event consumer stopped with error")
		}
	}()

	server := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      api.NewProcessorHandler().SetupProcessorRoutes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("address", server.Addr).Msg("Processor Service HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Processor Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Event consumer did not stop in time")
	}

	log.Info().Msg("Processor Service stopped")
}
