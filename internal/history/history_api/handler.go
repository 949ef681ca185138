package history_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-settlement/internal/auth"
	history "ms-settlement/internal/history/service"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/utils"
)

type Handler struct {
	HistoryService *history.HistoryService
	Logger         *logger.Logger
}

func NewHandler(svc *history.HistoryService, log *logger.Logger) *Handler {
	return &Handler{HistoryService: svc, Logger: log}
}

type attendanceRequest struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

type ratingRequest struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Post("/attendance", h.ConfirmAttendance)
		r.Post("/rating", h.RateEvent)
		r.Get("/events/{eventId}", h.ListByEvent)
		r.Get("/events/{eventId}/users/{userId}", h.GetHistory)
		r.Get("/users/{userId}", h.ListByUser)
	})
}

// decodeFor fills dst and defaults its user to the authenticated subject.
func decodeFor(r *http.Request, dst any, userID *string) error {
	if err := utils.DecodeJSON(r, dst); err != nil {
		return err
	}
	if *userID == "" {
		*userID = auth.UserID(r.Context())
	}
	return utils.ValidateStruct(dst)
}

func (h *Handler) ConfirmAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := decodeFor(r, &req, &req.UserID); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	record, err := h.HistoryService.ConfirmAttendance(r.Context(), req.EventID, req.UserID)
	if err != nil {
		utils.WriteError(w, "Could not confirm attendance", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Attendance confirmed", record))
}

func (h *Handler) RateEvent(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeFor(r, &req, &req.UserID); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	record, err := h.HistoryService.RateEvent(r.Context(), req.EventID, req.UserID, req.Rating, req.Comment)
	if err != nil {
		utils.WriteError(w, "Could not rate event", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event rated", record))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	record, err := h.HistoryService.GetHistory(r.Context(), chi.URLParam(r, "eventId"), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteError(w, "History not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("History", record))
}

func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.HistoryService.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteError(w, "Could not list history", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("History", list))
}

func (h *Handler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	list, err := h.HistoryService.ListByEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Could not list history", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("History", list))
}
