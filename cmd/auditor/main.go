// auditor consumes fleet events from Kafka and records them as audit history.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gartstein/fleet/internal/fleet/bootstrap"
	"github.com/gartstein/fleet/internal/fleet/config"
	"github.com/gartstein/fleet/internal/fleet/events"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $FLEET_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := bootstrap.Logger(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Kafka.Enabled {
		logger.Fatal("auditor requires kafka.enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := bootstrap.Repository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	recorder := events.NewAuditRecorder(repo, logger)
	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, logger)
	consumer.RegisterHandler(recorder.Handle)
	defer consumer.Close()

	logger.Info("auditor consuming",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)
	consumer.Run(ctx)
	logger.Info("auditor stopped")
}
