package saga_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	invapp "github.com/NullPoint3rDev/event-driven-order/inventory-service/application"
	invhandlers "github.com/NullPoint3rDev/event-driven-order/inventory-service/handlers"
	invinfra "github.com/NullPoint3rDev/event-driven-order/inventory-service/infrastructure"
	notifapp "github.com/NullPoint3rDev/event-driven-order/notification-service/application"
	notifdomain "github.com/NullPoint3rDev/event-driven-order/notification-service/domain"
	notifhandlers "github.com/NullPoint3rDev/event-driven-order/notification-service/handlers"
	notifinfra "github.com/NullPoint3rDev/event-driven-order/notification-service/infrastructure"
	orderapp "github.com/NullPoint3rDev/event-driven-order/order-api/application"
	orderinfra "github.com/NullPoint3rDev/event-driven-order/order-api/infrastructure"
	payapp "github.com/NullPoint3rDev/event-driven-order/payment-service/application"
	paydomain "github.com/NullPoint3rDev/event-driven-order/payment-service/domain"
	payhandlers "github.com/NullPoint3rDev/event-driven-order/payment-service/handlers"
	payinfra "github.com/NullPoint3rDev/event-driven-order/payment-service/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/consumer"
	"github.com/NullPoint3rDev/event-driven-order/shared/events"
	"github.com/NullPoint3rDev/event-driven-order/shared/infrastructure"
	"github.com/NullPoint3rDev/event-driven-order/shared/models"
	"github.com/NullPoint3rDev/event-driven-order/shared/saga"
	valapp "github.com/NullPoint3rDev/event-driven-order/validation-service/application"
	valhandlers "github.com/NullPoint3rDev/event-driven-order/validation-service/handlers"
)

// sagaWorld wires all five services over the in-memory bus with in-memory
// storage, so one Publish drives the whole choreography synchronously.
type sagaWorld struct {
	bus *infrastructure.InMemoryBus

	orders      *orderinfra.MemoryOrderRepository
	eventLog    *orderinfra.MemoryEventLog
	createOrder *orderapp.CreateOrder

	stock         *invinfra.MemoryStockRepository
	payments      *payinfra.MemoryPaymentRepository
	notifications *notifinfra.MemoryNotificationRepository

	projections map[string]*infrastructure.MemoryProjectionRepository
	records     map[string]*consumer.MemoryConsumptionStore
	deadLetters map[string]*consumer.MemoryDeadLetterStore
	consumers   map[string]*consumer.IdempotentConsumer
}

func newSagaWorld(t *testing.T, available map[string]int, captureLimit models.Money) *sagaWorld {
	t.Helper()

	log := zap.NewNop()
	w := &sagaWorld{
		bus:           infrastructure.NewInMemoryBus(),
		orders:        orderinfra.NewMemoryOrderRepository(),
		eventLog:      orderinfra.NewMemoryEventLog(),
		stock:         invinfra.NewMemoryStockRepository(available),
		payments:      payinfra.NewMemoryPaymentRepository(),
		notifications: notifinfra.NewMemoryNotificationRepository(),
		projections:   make(map[string]*infrastructure.MemoryProjectionRepository),
		records:       make(map[string]*consumer.MemoryConsumptionStore),
		deadLetters:   make(map[string]*consumer.MemoryDeadLetterStore),
		consumers:     make(map[string]*consumer.IdempotentConsumer),
	}
	w.createOrder = orderapp.NewCreateOrder(w.orders, w.eventLog, w.bus, log)

	subscribe := func(group string, applier consumer.Applier) {
		records := consumer.NewMemoryConsumptionStore()
		deadLetters := consumer.NewMemoryDeadLetterStore()
		c := consumer.New(applier, records, deadLetters, w.bus,
			consumer.WithMetrics(consumer.NewMetrics(prometheus.NewRegistry())),
		)
		w.records[group] = records
		w.deadLetters[group] = deadLetters
		w.consumers[group] = c
		w.bus.Subscribe(group, c)
	}

	projections := func(group string) *infrastructure.MemoryProjectionRepository {
		repo := infrastructure.NewMemoryProjectionRepository()
		w.projections[group] = repo
		return repo
	}

	subscribe(orderapp.ConsumerID, orderapp.NewProjectOrder(w.orders, w.eventLog, log))
	subscribe(valapp.ConsumerID, valhandlers.NewOrderEventHandlers(
		projections(valapp.ConsumerID),
		valapp.NewValidateOrder(log),
	))
	subscribe(invapp.ConsumerID, invhandlers.NewOrderEventHandlers(
		projections(invapp.ConsumerID),
		invapp.NewReserveStock(w.stock, log),
		invapp.NewReleaseStock(w.stock, log),
	))
	subscribe(payapp.ConsumerID, payhandlers.NewOrderEventHandlers(
		projections(payapp.ConsumerID),
		payapp.NewCapturePayment(w.payments, paydomain.NewLimitGateway(captureLimit), log),
	))
	subscribe(notifapp.ConsumerID, notifhandlers.NewOrderEventHandlers(
		projections(notifapp.ConsumerID),
		notifapp.NewCloseOrder(log),
		notifapp.NewNotifyCustomer(w.notifications, log),
	))
	return w
}

func (w *sagaWorld) placeOrder(t *testing.T, quantity int, unitPrice int64) models.ID {
	t.Helper()
	out, err := w.createOrder.Execute(context.Background(), &orderapp.CreateOrderCommand{
		CustomerID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Currency:   "USD",
		LineItems: []orderapp.CreateOrderLineItem{
			{SKU: "SKU-100", Quantity: quantity, UnitPrice: unitPrice},
		},
	})
	require.NoError(t, err)
	return models.ID(out.OrderID)
}

// projectionStates returns each service's current state for the order.
func (w *sagaWorld) projectionStates(t *testing.T, orderID models.ID) map[string]saga.State {
	t.Helper()
	states := make(map[string]saga.State, len(w.projections))
	for group, repo := range w.projections {
		projection, err := repo.FindByOrderID(context.Background(), orderID)
		require.NoError(t, err)
		require.NotNil(t, projection, "no projection for %s", group)
		states[group] = projection.State
	}
	return states
}

func (w *sagaWorld) eventTypes(t *testing.T, orderID models.ID) []events.Type {
	t.Helper()
	logged, err := w.eventLog.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	types := make([]events.Type, 0, len(logged))
	for _, event := range logged {
		types = append(types, event.Type)
	}
	return types
}

func (w *sagaWorld) requireNoDeadLetters(t *testing.T) {
	t.Helper()
	for group, store := range w.deadLetters {
		entries, err := store.List(context.Background(), group, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, entries, "unexpected dead letters for %s", group)
	}
}

func TestChoreography_HappyPathCompletesOrder(t *testing.T) {
	w := newSagaWorld(t, map[string]int{"SKU-100": 5}, models.NewMoney(500_000, "USD"))

	orderID := w.placeOrder(t, 2, 1_500)

	order, err := w.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, saga.StateCompleted, order.State)
	assert.False(t, order.ReservationID.IsZero())
	assert.False(t, order.PaymentID.IsZero())
	assert.Empty(t, order.FailureReason)

	assert.Equal(t, []events.Type{
		events.OrderCreatedEvent,
		events.OrderValidatedEvent,
		events.InventoryReservedEvent,
		events.PaymentCapturedEvent,
		events.OrderCompletedEvent,
	}, w.eventTypes(t, orderID))

	for group, state := range w.projectionStates(t, orderID) {
		assert.Equal(t, saga.StateCompleted, state, "projection for %s", group)
	}

	assert.Equal(t, 3, w.stock.Available("SKU-100"))

	payment, err := w.payments.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, paydomain.PaymentStatusCaptured, payment.Status)
	assert.Equal(t, int64(3_000), payment.Amount.Amount)

	recorded, err := w.notifications.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, notifdomain.NotificationOrderCompleted, recorded[0].Kind)

	w.requireNoDeadLetters(t)
}

func TestChoreography_PaymentFailureCompensatesAndCancels(t *testing.T) {
	w := newSagaWorld(t, map[string]int{"SKU-100": 5}, models.NewMoney(1_000, "USD"))

	orderID := w.placeOrder(t, 2, 1_500)

	order, err := w.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, saga.StateCancelled, order.State)
	assert.True(t, order.PaymentID.IsZero())

	assert.Equal(t, []events.Type{
		events.OrderCreatedEvent,
		events.OrderValidatedEvent,
		events.InventoryReservedEvent,
		events.PaymentFailedEvent,
		events.ReleaseInventoryEvent,
		events.InventoryReleasedEvent,
		events.OrderCancelledEvent,
	}, w.eventTypes(t, orderID))

	for group, state := range w.projectionStates(t, orderID) {
		assert.Equal(t, saga.StateCancelled, state, "projection for %s", group)
	}

	// The compensating release put the held units back.
	assert.Equal(t, 5, w.stock.Available("SKU-100"))

	payment, err := w.payments.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, paydomain.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "limit_exceeded", payment.FailCode)

	recorded, err := w.notifications.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, notifdomain.NotificationOrderCancelled, recorded[0].Kind)
	assert.Contains(t, recorded[0].Message, "payment failed")

	w.requireNoDeadLetters(t)
}

func TestChoreography_RedeliveryCausesNoSecondEffects(t *testing.T) {
	w := newSagaWorld(t, map[string]int{"SKU-100": 5}, models.NewMoney(500_000, "USD"))

	orderID := w.placeOrder(t, 2, 1_500)
	require.Equal(t, 3, w.stock.Available("SKU-100"))

	logged, err := w.eventLog.ListByOrder(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, logged, 5)

	// Redeliver every event of the finished saga to every consumer, the way
	// an at-least-once broker would after a rebalance.
	for _, event := range logged {
		raw, err := events.Encode(event)
		require.NoError(t, err)
		for group, c := range w.consumers {
			require.NoError(t, c.HandleMessage(context.Background(), raw), "redelivery to %s", group)
		}
	}

	assert.Equal(t, 3, w.stock.Available("SKU-100"))
	assert.Len(t, w.eventTypes(t, orderID), 5)

	recorded, err := w.notifications.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Len(t, recorded, 1)

	order, err := w.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, saga.StateCompleted, order.State)

	w.requireNoDeadLetters(t)
}

func TestChoreography_UndecodableEventParksWithoutRetry(t *testing.T) {
	w := newSagaWorld(t, map[string]int{"SKU-100": 5}, models.NewMoney(500_000, "USD"))

	eventID := models.ID("550e8400-e29b-41d4-a716-446655440099")
	orderID := models.ID("550e8400-e29b-41d4-a716-446655440001")
	raw := []byte(fmt.Sprintf(
		`{"event_id":%q,"order_id":%q,"type":"order.created","schema_version":99,"payload":{}}`,
		eventID, orderID,
	))

	c := w.consumers[valapp.ConsumerID]
	require.NoError(t, c.HandleMessage(context.Background(), raw))

	entry, err := w.deadLetters[valapp.ConsumerID].Find(context.Background(), valapp.ConsumerID, eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, entry.LastError, "newer than supported")

	// No consumption record: a replay after a codec upgrade processes fresh.
	record, err := w.records[valapp.ConsumerID].Get(context.Background(), valapp.ConsumerID, eventID)
	require.NoError(t, err)
	assert.Nil(t, record)
}
