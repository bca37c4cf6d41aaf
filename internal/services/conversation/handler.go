package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/transport"
)

// Handler is the HTTP bridge between the chat transport and the state
// machine. The transport POSTs each user action as an event and renders
// the reply it gets back.
type Handler struct {
	machine *Machine
	log     logger.Logger
}

func NewHandler(machine *Machine, log logger.Logger) *Handler {
	return &Handler{machine: machine, log: log}
}

// HandleEvent handles POST /events requests.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", requestID)
		return
	}
	if r.Header.Get("Content-Type") != "application/json" {
		h.writeErrorResponse(w, http.StatusBadRequest, "Content-Type must be application/json", requestID)
		return
	}

	var ev transport.Event
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&ev); err != nil {
		h.log.Error("validation_failed", requestID, "Failed to parse event body", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}
	if ev.UserID == 0 {
		h.writeErrorResponse(w, http.StatusBadRequest, "user_id is required", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	reply := h.machine.Handle(ctx, ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		h.log.Error("response_encoding_failed", requestID, "Failed to encode reply", err)
	}
}

// HealthCheck handles GET /health requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "bot",
	})
}

func (h *Handler) writeErrorResponse(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

// SetupRoutes sets up the HTTP routes for the bot event bridge.
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.withLogging(h.HandleEvent))
	mux.HandleFunc("/health", h.withLogging(h.HealthCheck))
	return mux
}

func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		h.log.Debug("request_completed", requestID,
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status_code", rw.statusCode),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()))
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
