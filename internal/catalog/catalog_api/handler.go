package catalog_api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	catalog "ms-settlement/internal/catalog/service"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/utils"
)

type Handler struct {
	CatalogService *catalog.CatalogService
	Logger         *logger.Logger
}

func NewHandler(svc *catalog.CatalogService, log *logger.Logger) *Handler {
	return &Handler{CatalogService: svc, Logger: log}
}

type statusRequest struct {
	Status models.EventStatus `json:"status" validate:"required"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/{eventId}", h.GetEvent)
		r.Put("/{eventId}", h.UpdateEvent)
		r.Post("/{eventId}/status", h.ChangeEventStatus)
		r.Post("/{eventId}/zones", h.CreateZone)
		r.Get("/{eventId}/zones", h.ListZones)
	})
	r.Route("/zones", func(r chi.Router) {
		r.Get("/{zoneId}", h.GetZone)
		r.Put("/{zoneId}", h.UpdateZone)
		r.Delete("/{zoneId}", h.DeleteZone)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{userId}", h.GetUser)
	})
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	event, err := h.CatalogService.CreateEvent(r.Context(), in)
	if err != nil {
		utils.WriteError(w, "Could not create event", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Event created", event))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.CatalogService.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Event not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event", event))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	event, err := h.CatalogService.UpdateEvent(r.Context(), chi.URLParam(r, "eventId"), in)
	if err != nil {
		utils.WriteError(w, "Could not update event", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event updated", event))
}

func (h *Handler) ChangeEventStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	event, err := h.CatalogService.ChangeEventStatus(r.Context(), chi.URLParam(r, "eventId"), req.Status)
	if err != nil {
		utils.WriteError(w, "Could not change event status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event status changed", event))
}

func (h *Handler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var in catalog.ZoneInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	zone, err := h.CatalogService.CreateZone(r.Context(), chi.URLParam(r, "eventId"), in)
	if err != nil {
		utils.WriteError(w, "Could not create zone", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Zone created", zone))
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.CatalogService.ListZones(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		utils.WriteError(w, "Could not list zones", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Zones", zones))
}

func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	zone, err := h.CatalogService.GetZone(r.Context(), chi.URLParam(r, "zoneId"))
	if err != nil {
		utils.WriteError(w, "Zone not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Zone", zone))
}

func (h *Handler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var in catalog.ZoneInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	zone, err := h.CatalogService.UpdateZone(r.Context(), chi.URLParam(r, "zoneId"), in)
	if err != nil {
		utils.WriteError(w, "Could not update zone", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Zone updated", zone))
}

func (h *Handler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := h.CatalogService.DeleteZone(r.Context(), chi.URLParam(r, "zoneId")); err != nil {
		utils.WriteError(w, "Could not delete zone", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Zone deleted", nil))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in catalog.UserInput
	if err := utils.DecodeAndValidate(r, &in); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	user, err := h.CatalogService.CreateUser(r.Context(), in)
	if err != nil {
		utils.WriteError(w, "Could not create user", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("User created", user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.CatalogService.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteError(w, "User not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("User", user))
}
