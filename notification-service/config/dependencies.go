package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/notification-service/application"
	"github.com/NullPoint3rDev/event-driven-order/notification-service/handlers"
	"github.com/NullPoint3rDev/event-driven-order/notification-service/infrastructure"
	sharedconfig "github.com/NullPoint3rDev/event-driven-order/shared/config"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	sharedinfra "github.com/NullPoint3rDev/event-driven-order/shared/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/telemetry"
)

// Dependencies wires the notification service
type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Stores
	Projections   *sharedinfra.PostgresProjectionRepository
	Consumptions  *sharedinfra.PostgresConsumptionStore
	DeadLetters   *sharedinfra.PostgresDeadLetterStore
	Notifications *infrastructure.PostgresNotificationRepository
	Janitor       *sharedinfra.ConsumptionJanitor

	// Use Cases
	CloseOrder     *application.CloseOrder
	NotifyCustomer *application.NotifyCustomer

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
	telConfig := telemetry.NotificationServiceConfig.WithOTLPEndpoint(cfg.OTLP.Endpoint)
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

	// Initialize transport
	transport, err := sharedinfra.NewTransport(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}
	deps.Transport = transport

	// Initialize stores
	deps.Projections = sharedinfra.NewPostgresProjectionRepository(db, "notification_projections")
	deps.Consumptions = sharedinfra.NewPostgresConsumptionStore(db)
	deps.DeadLetters = sharedinfra.NewPostgresDeadLetterStore(db)
	deps.Notifications = infrastructure.NewPostgresNotificationRepository(db)
	deps.Janitor = sharedinfra.NewConsumptionJanitor(
		deps.Consumptions, cfg.Consumer.Retention, cfg.Consumer.PurgeInterval, logger)

	// Initialize use cases and event handlers
	deps.CloseOrder = application.NewCloseOrder(logger)
	deps.NotifyCustomer = application.NewNotifyCustomer(deps.Notifications, logger)
	deps.EventHandlers = handlers.NewOrderEventHandlers(deps.Projections, deps.CloseOrder, deps.NotifyCustomer)

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
