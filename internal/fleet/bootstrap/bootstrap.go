// Package bootstrap builds the shared dependencies of the fleet binaries
// from configuration, retrying the external connections while the
// surrounding infrastructure comes up.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/fleet/internal/fleet/billing"
	"github.com/gartstein/fleet/internal/fleet/cache"
	"github.com/gartstein/fleet/internal/fleet/config"
	"github.com/gartstein/fleet/internal/fleet/db"
	"github.com/gartstein/fleet/internal/fleet/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectTimeout bounds how long a binary waits for its backing services.
var ConnectTimeout = 30 * time.Second

// Producer is the event sink handed to the services.
type Producer interface {
	Produce(event events.Event)
	Close()
}

// Logger returns a development logger for app.env=development and a
// production logger otherwise.
func Logger(cfg *config.Config) (*zap.Logger, error) {
	if cfg != nil && cfg.App.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func retry(ctx context.Context, op backoff.Operation, logger *zap.Logger, what string) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = ConnectTimeout
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("connection attempt failed",
			zap.String("target", what),
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	})
}

// Repository opens the database and migrates the schema.
func Repository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*db.Repository, error) {
	var repo *db.Repository
	err := retry(ctx, func() error {
		var err error
		repo, err = db.NewRepository(cfg.DB.Repository())
		return err
	}, logger, "database")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return repo, nil
}

// EventProducer publishes to Kafka when it is enabled. Otherwise events are
// written straight to the audit log of repo.
func EventProducer(ctx context.Context, cfg *config.Config, repo *db.Repository, logger *zap.Logger) (Producer, error) {
	if !cfg.Kafka.Enabled {
		logger.Info("kafka disabled, recording events inline")
		return events.NewInlineProducer(events.NewAuditRecorder(repo, logger)), nil
	}
	var producer *events.Producer
	err := retry(ctx, func() error {
		var err error
		producer, err = events.NewProducer(cfg.Kafka.Brokers, logger, cfg.Kafka.Topic)
		return err
	}, logger, "kafka")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Kafka producer: %w", err)
	}
	return producer, nil
}

// AccessCache returns the Redis cache for subscription decisions, or a
// no-op cache when Redis is disabled. The returned close func is never nil.
func AccessCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.AccessCache, func(), error) {
	if !cfg.Redis.Enabled {
		return cache.Noop{}, func() {}, nil
	}
	var client *redis.Client
	err := retry(ctx, func() error {
		var err error
		client, err = cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		return err
	}, logger, "redis")
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", zap.Error(err))
		}
	}
	return cache.NewRedisAccessCache(client, cfg.Redis.TTL), closeFn, nil
}

// CheckoutGateway returns the hosted checkout client for the configured
// checkout provider, or nil when it has no secret key.
func CheckoutGateway(cfg *config.Config) billing.CheckoutGateway {
	settings, ok := cfg.Billing.Providers[cfg.Billing.Checkout]
	if !ok || settings.SecretKey == "" {
		return nil
	}
	switch cfg.Billing.Checkout {
	case billing.ProviderStripe:
		return billing.NewStripeCheckout(settings.SecretKey)
	default:
		return nil
	}
}
