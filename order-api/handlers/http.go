package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/NullPoint3rDev/event-driven-order/order-api/application"
)

// OrderHandlers contains the order intake and admin HTTP handlers
type OrderHandlers struct {
	createOrder     *application.CreateOrder
	getOrder        *application.GetOrder
	listOrderEvents *application.ListOrderEvents
	listDeadLetters *application.ListDeadLetters
	replayDead      *application.ReplayDeadLetter
	discardDead     *application.DiscardDeadLetter
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	createOrder *application.CreateOrder,
	getOrder *application.GetOrder,
	listOrderEvents *application.ListOrderEvents,
	listDeadLetters *application.ListDeadLetters,
	replayDead *application.ReplayDeadLetter,
	discardDead *application.DiscardDeadLetter,
) *OrderHandlers {
	return &OrderHandlers{
		createOrder:     createOrder,
		getOrder:        getOrder,
		listOrderEvents: listOrderEvents,
		listDeadLetters: listDeadLetters,
		replayDead:      replayDead,
		discardDead:     discardDead,
	}
}

// CreateOrder handles order intake requests
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.createOrder.Execute(r.Context(), &cmd)
	if err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// GetOrder handles order retrieval requests
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	query := &application.GetOrderQuery{OrderID: chi.URLParam(r, "id")}

	view, err := h.getOrder.Execute(r.Context(), query)
	if err != nil {
		if errors.Is(err, application.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// ListOrderEvents handles order history requests
func (h *OrderHandlers) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	query := &application.ListOrderEventsQuery{OrderID: chi.URLParam(r, "id")}

	history, err := h.listOrderEvents.Execute(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// ListDeadLetters handles the operator dead-letter listing
func (h *OrderHandlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	query := &application.ListDeadLettersQuery{
		ConsumerID: r.URL.Query().Get("consumer"),
		Offset:     intQuery(r, "offset"),
		Limit:      intQuery(r, "limit"),
	}
	if query.ConsumerID == "" {
		query.ConsumerID = application.ConsumerID
	}

	entries, err := h.listDeadLetters.Execute(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ReplayDeadLetter handles the operator replay action
func (h *OrderHandlers) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	cmd := &application.ReplayDeadLetterCommand{
		ConsumerID: r.URL.Query().Get("consumer"),
		EventID:    chi.URLParam(r, "eventID"),
	}
	if cmd.ConsumerID == "" {
		cmd.ConsumerID = application.ConsumerID
	}

	err := h.replayDead.Execute(r.Context(), cmd)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, application.ErrDeadLetterNotFound):
		http.Error(w, "Dead letter not found", http.StatusNotFound)
	case errors.Is(err, application.ErrDeadLetterUndecodable):
		http.Error(w, "Dead letter cannot be replayed", http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// DiscardDeadLetter handles the operator discard action
func (h *OrderHandlers) DiscardDeadLetter(w http.ResponseWriter, r *http.Request) {
	cmd := &application.DiscardDeadLetterCommand{
		ConsumerID: r.URL.Query().Get("consumer"),
		EventID:    chi.URLParam(r, "eventID"),
	}
	if cmd.ConsumerID == "" {
		cmd.ConsumerID = application.ConsumerID
	}

	err := h.discardDead.Execute(r.Context(), cmd)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, application.ErrDeadLetterNotFound):
		http.Error(w, "Dead letter not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RegisterRoutes registers order and admin routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Get("/{id}/events", h.ListOrderEvents)
	})
	r.Route("/admin/dead-letters", func(r chi.Router) {
		r.Get("/", h.ListDeadLetters)
		r.Post("/{eventID}/replay", h.ReplayDeadLetter)
		r.Delete("/{eventID}", h.DiscardDeadLetter)
	})
}

func intQuery(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}
