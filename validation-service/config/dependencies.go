package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sharedconfig "github.com/NullPoint3rDev/event-driven-order/shared/config"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	sharedinfra "github.com/NullPoint3rDev/event-driven-order/shared/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/telemetry"
	"github.com/NullPoint3rDev/event-driven-order/validation-service/application"
	"github.com/NullPoint3rDev/event-driven-order/validation-service/handlers"
)

// Dependencies wires the validation service. Consumption records live in
// Redis with a TTL matching the configured retention; the projection stays
// in Postgres behind a conditional write.
type Dependencies struct {
	// Storage
	DB    *sqlx.DB
	Redis *redis.Client

	// Stores
	Projections  *sharedinfra.PostgresProjectionRepository
	Consumptions *sharedinfra.RedisConsumptionStore
	DeadLetters  *sharedinfra.PostgresDeadLetterStore

	// Use Cases
	ValidateOrder *application.ValidateOrder

	// Event Handlers
	EventHandlers *handlers.OrderEventHandlers
	Consumer      *consumer.IdempotentConsumer

	// Infrastructure
	Transport *sharedinfra.Transport

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, cfg *sharedconfig.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize telemetry first
	telConfig := telemetry.ValidationServiceConfig.WithOTLPEndpoint(cfg.OTLP.Endpoint)
	tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
	if err != nil {
		log.Printf("Failed to initialize telemetry: %v", err)
		// Continue without telemetry rather than failing
	} else {
		deps.Telemetry = tel
		deps.TelemetryShutdown = telemetryShutdown
	}

	// Initialize database
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	deps.DB = db

	// Initialize redis
	deps.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := deps.Redis.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// Initialize transport
	transport, err := sharedinfra.NewTransport(ctx, cfg, logger)
	if err != nil {
		deps.Redis.Close()
		db.Close()
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}
	deps.Transport = transport

	// Initialize stores
	deps.Projections = sharedinfra.NewPostgresProjectionRepository(db, "validation_projections")
	deps.Consumptions = sharedinfra.NewRedisConsumptionStore(deps.Redis, cfg.Consumer.Retention)
	deps.DeadLetters = sharedinfra.NewPostgresDeadLetterStore(db)

	// Initialize use cases and event handlers
	deps.ValidateOrder = application.NewValidateOrder(logger)
	deps.EventHandlers = handlers.NewOrderEventHandlers(deps.Projections, deps.ValidateOrder)

	deps.Consumer = consumer.New(
		deps.EventHandlers,
		deps.Consumptions,
		deps.DeadLetters,
		transport.Publisher,
		consumer.WithRetryPolicy(consumer.RetryPolicy{
			InitialInterval: cfg.Consumer.InitialInterval,
			MaxInterval:     cfg.Consumer.MaxInterval,
			Multiplier:      2.0,
			MaxAttempts:     cfg.Consumer.MaxAttempts,
		}),
		consumer.WithMetrics(consumer.NewMetrics(prometheus.DefaultRegisterer)),
		consumer.WithLogger(logger),
	)

	return deps, nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.Transport != nil {
		if err := d.Transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
