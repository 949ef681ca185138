package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// Handler serves Server-Sent Events streams of settlement outcomes.
type Handler struct {
	Emitter *Emitter
	Logger  *logger.Logger
}

func NewHandler(emitter *Emitter, log *logger.Logger) *Handler {
	return &Handler{Emitter: emitter, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/streams", func(r chi.Router) {
		r.Get("/events/{eventId}", h.StreamEvent)
		r.Get("/me", h.StreamOwn)
	})
}

// StreamEvent streams every committed outcome of the event's tickets.
func (h *Handler) StreamEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.stream(w, r, "eventId", eventID, h.Emitter.SubscribeToEvent(r.Context(), eventID))
}

// StreamOwn streams outcomes for the authenticated buyer's tickets.
func (h *Handler) StreamOwn(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	h.stream(w, r, "userId", userID, h.Emitter.SubscribeToUser(r.Context(), userID))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, keyName, key string, events <-chan models.SettlementEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	setupHeaders(w)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"%s\":%q}\n\n", keyName, key)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to settlement stream for %s %s", keyName, key))

	ctx := r.Context()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize %s: %v", event.Type, err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from %s %s", keyName, key))
			return
		}
	}
}

func setupHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
