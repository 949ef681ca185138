package statistics_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-settlement/internal/logger"
	"ms-settlement/internal/statistics"
	"ms-settlement/internal/utils"
)

// Handler serves the read-only sales projections.
type Handler struct {
	Service *statistics.Service
	Logger  *logger.Logger
}

func NewHandler(svc *statistics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/statistics/events/{eventId}", func(r chi.Router) {
		r.Get("/", h.GetEventStatistics)
		r.Get("/available-zones", h.ListAvailableZones)
		r.Get("/daily-sales", h.GetDailySales)
	})
}

func (h *Handler) GetEventStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.ProjectEventStatistics(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Could not compute statistics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event statistics", stats))
}

func (h *Handler) ListAvailableZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.Service.ListAvailableZones(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Could not list zones", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Available zones", zones))
}

func (h *Handler) GetDailySales(w http.ResponseWriter, r *http.Request) {
	days, err := h.Service.DailySales(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Could not load sales", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Daily sales", days))
}
