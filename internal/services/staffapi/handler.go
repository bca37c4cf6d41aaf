package staffapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/menu"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/store"
)

// Handler serves the staff-side HTTP API: browsing orders and marking
// them completed.
type Handler struct {
	store store.Store
	log   logger.Logger
}

func NewHandler(st store.Store, log logger.Logger) *Handler {
	return &Handler{store: st, log: log}
}

// Router builds the chi router for the staff API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestLogger)

	r.Get("/health", h.health)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/complete", h.completeOrder)

	return r
}

type orderDTO struct {
	OrderID     string            `json:"order_id"`
	UserID      int64             `json:"user_id"`
	UserName    string            `json:"user_name"`
	PhoneNumber string            `json:"phone_number"`
	Items       []models.LineItem `json:"items"`
	PickupTime  string            `json:"pickup_time"`
	Status      string            `json:"status"`
	Total       string            `json:"total"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at"`
}

func toDTO(order *models.Order) orderDTO {
	return orderDTO{
		OrderID:     order.ID,
		UserID:      order.UserID,
		UserName:    order.UserName,
		PhoneNumber: order.PhoneNumber,
		Items:       order.Items,
		PickupTime:  order.PickupTime,
		Status:      string(order.Status),
		Total:       menu.FormatPrice(order.Total()),
		CreatedAt:   order.CreatedAt,
		CompletedAt: order.CompletedAt,
	}
}

// listOrders handles GET /orders. The user_id query parameter is required
// and scopes the listing to one customer.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	rawUserID := r.URL.Query().Get("user_id")
	if rawUserID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id query parameter is required", requestID)
		return
	}
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "user_id must be an integer", requestID)
		return
	}

	orders, err := h.store.GetUserOrders(r.Context(), userID)
	if err != nil {
		h.log.Error("order_listing_failed", requestID, "Failed to list orders", err,
			logger.Int64("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	dtos := make([]orderDTO, 0, len(orders))
	for _, order := range orders {
		dtos = append(dtos, toDTO(order))
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	orderID := chi.URLParam(r, "orderID")

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, fmt.Sprintf("Order %s not found", orderID), requestID)
			return
		}
		h.log.Error("order_lookup_failed", requestID, "Failed to look up order", err,
			logger.String("order_id", orderID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, toDTO(order))
}

func (h *Handler) completeOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	orderID := chi.URLParam(r, "orderID")

	completed, err := h.store.CompleteOrder(r.Context(), orderID)
	if err != nil {
		h.log.Error("order_completion_failed", requestID, "Failed to complete order", err,
			logger.String("order_id", orderID))
		h.writeError(w, http.StatusInternalServerError, "Internal server error", requestID)
		return
	}
	if !completed {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("Order %s not found", orderID), requestID)
		return
	}

	h.log.Info("order_completed", requestID, "Order marked completed",
		logger.String("order_id", orderID))
	h.writeJSON(w, http.StatusOK, map[string]string{
		"order_id": orderID,
		"status":   string(models.StatusCompleted),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "staff-api",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	h.writeJSON(w, statusCode, map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request_completed", "",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}
