package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/audit"
	"github.com/datviz/datviz-app/internal/config"
	"github.com/datviz/datviz-app/internal/logging"
	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/postgres"
)

func main() {
	var cfg config.Auditor
	if err := config.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Log, "auditor")
	log.Info().Msg("Starting DatViz auditor...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "datviz-auditor"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	consumer := audit.NewConsumer(audit.NewStore(db))
	if err := natsClient.SubscribeEvents(cfg.QueueGroup, consumer.Handle); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to domain events")
	}

	log.Info().
		Str("nats_url", natsConfig.URL).
		Str("queue", cfg.QueueGroup).
		Str("subjects", messaging.SubjectAll).
		Msg("DatViz auditor running")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	natsClient.Close()
}
