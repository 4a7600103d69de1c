package config

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/NullPoint3rDev/event-driven-order/order-api/application"
	"github.com/NullPoint3rDev/event-driven-order/order-api/handlers"
	"github.com/NullPoint3rDev/event-driven-order/order-api/infrastructure"
	sharedconfig "github.com/NullPoint3rDev/event-driven-order/shared/config"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	sharedinfra "github.com/NullPoint3rDev/event-driven-order/shared/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/telemetry"
)

// Dependencies wires the order API. Besides the HTTP intake it runs the same
// idempotent consumer as every other service, projecting the full event
// stream onto the authoritative order rows and the append-only event log.
type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Stores
	Orders       *infrastructure.PostgresOrderRepository
	EventLog     *sharedinfra.PostgresEventLog
	Consumptions *sharedinfra.PostgresConsumptionStore
	DeadLetters  *sharedinfra.PostgresDeadLetterStore
	Janitor      *sharedinfra.ConsumptionJanitor

	// Use Cases
	CreateOrder     *application.CreateOrder
	GetOrder        *application.GetOrder
	ListOrderEvents *application.ListOrderEvents
	ListDeadLetters *application.ListDeadLetters
	ReplayDead      *application.ReplayDeadLetter
	DiscardDead     *application.DiscardDeadLetter

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	ProjectOrder *application.ProjectOrder
	Consumer     *consumer.IdempotentConsumer

	// Infrastructure
	Transport *sharedinfra.Transport

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, cfg *sharedconfig.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize telemetry first
	telConfig := telemetry.OrderAPIConfig.WithOTLPEndpoint(cfg.OTLP.Endpoint)
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
	deps.Orders = infrastructure.NewPostgresOrderRepository(db)
	deps.EventLog = sharedinfra.NewPostgresEventLog(db)
	deps.Consumptions = sharedinfra.NewPostgresConsumptionStore(db)
	deps.DeadLetters = sharedinfra.NewPostgresDeadLetterStore(db)
	deps.Janitor = sharedinfra.NewConsumptionJanitor(
		deps.Consumptions, cfg.Consumer.Retention, cfg.Consumer.PurgeInterval, logger)

	// Initialize use cases
	deps.CreateOrder = application.NewCreateOrder(deps.Orders, deps.EventLog, transport.Publisher, logger)
	deps.GetOrder = application.NewGetOrder(deps.Orders)
	deps.ListOrderEvents = application.NewListOrderEvents(deps.EventLog)
	deps.ListDeadLetters = application.NewListDeadLetters(deps.DeadLetters)
	deps.ReplayDead = application.NewReplayDeadLetter(deps.DeadLetters, transport.Publisher, logger)
	deps.DiscardDead = application.NewDiscardDeadLetter(deps.DeadLetters, logger)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(
		deps.CreateOrder,
		deps.GetOrder,
		deps.ListOrderEvents,
		deps.ListDeadLetters,
		deps.ReplayDead,
		deps.DiscardDead,
	)

	deps.ProjectOrder = application.NewProjectOrder(deps.Orders, deps.EventLog, logger)
	deps.Consumer = consumer.New(
		deps.ProjectOrder,
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
