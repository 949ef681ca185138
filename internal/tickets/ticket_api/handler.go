package ticket_api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	tickets "ms-settlement/internal/tickets/service"
	"ms-settlement/internal/tickets/template"
	"ms-settlement/internal/utils"
)

type Handler struct {
	TicketService *tickets.TicketService
	PDF           *template.TicketPDFGenerator
	Currency      string
	Logger        *logger.Logger
}

func NewHandler(ticketService *tickets.TicketService, currency string, log *logger.Logger) *Handler {
	return &Handler{
		TicketService: ticketService,
		PDF:           template.NewTicketPDFGenerator(),
		Currency:      currency,
		Logger:        log,
	}
}

// RegisterRoutes mounts the ticket endpoints under /tickets.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.CreateTicket)
		r.Post("/checkin", h.CheckinTicket)
		r.Get("/user/{userId}", h.ListTicketsByUser)
		r.Get("/zone/{zoneId}", h.ListTicketsByZone)
		r.Get("/{ticketId}", h.ViewTicket)
		r.Get("/{ticketId}/qr", h.TicketQR)
		r.Get("/{ticketId}/pdf", h.TicketPDF)
		r.Post("/{ticketId}/cancel", h.CancelTicket)
		r.Post("/{ticketId}/checkin", h.CheckinByID)
	})
}

// CreateTicket reserves one unit of a zone. The buyer defaults to the
// authenticated user.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req tickets.CreateTicketInput
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}
	if req.UserID == "" {
		req.UserID = auth.UserID(r.Context())
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteError(w, "Invalid request payload", err)
		return
	}

	ticket, err := h.TicketService.CreateTicket(r.Context(), req)
	if err != nil {
		h.Logger.Warn("TICKET_API", fmt.Sprintf("Create ticket for zone %s failed: %v", req.ZoneID, err))
		utils.WriteError(w, "Could not reserve ticket", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket reserved", ticket))
}

func (h *Handler) ViewTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket", ticket))
}

// TicketQR serves the QR image issued when the ticket was paid.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	if len(ticket.QRCode) == 0 {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("QR code not issued", "ticket has no QR code"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ticket.QRCode)
}

func (h *Handler) TicketPDF(w http.ResponseWriter, r *http.Request) {
	details, err := h.TicketService.PrintableTicket(r.Context(), chi.URLParam(r, "ticketId"), h.Currency)
	if err != nil {
		utils.WriteError(w, "Ticket not found", err)
		return
	}
	doc, err := h.PDF.Generate(details)
	if err != nil {
		h.Logger.Error("TICKET_API", fmt.Sprintf("Failed to render ticket %s: %v", details.Ticket.ID, err))
		utils.WriteError(w, "Could not render ticket", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=ticket-%s.pdf", details.Ticket.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) ListTicketsByUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.GetTicketsByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		utils.WriteError(w, "Could not list tickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", list))
}

func (h *Handler) ListTicketsByZone(w http.ResponseWriter, r *http.Request) {
	list, err := h.TicketService.GetTicketsByZone(r.Context(), chi.URLParam(r, "zoneId"))
	if err != nil {
		utils.WriteError(w, "Could not list tickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", list))
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &body); err != nil {
			utils.WriteError(w, "Invalid request payload", err)
			return
		}
	}

	ticket, err := h.TicketService.CancelTicket(r.Context(), chi.URLParam(r, "ticketId"), body.Reason)
	if err != nil {
		utils.WriteError(w, "Could not cancel ticket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket cancelled", ticket))
}

func (h *Handler) CheckinByID(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.TicketService.CheckIn(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, "Checkin failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkin successful", ticket))
}

// CheckinTicket checks a ticket in from its scanned QR token.
// Expected POST body: {"encrypted_qr": "<token>"}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr" validate:"required"`
	}
	if err := utils.DecodeAndValidate(r, &body); err != nil {
		utils.WriteError(w, "encrypted_qr is required", err)
		return
	}

	ticket, err := h.TicketService.CheckInWithToken(r.Context(), strings.TrimSpace(body.EncryptedQR))
	if err != nil {
		h.Logger.LogSecurity("CHECKIN_REJECTED", fmt.Sprintf("scanner %q: %v", auth.UserID(r.Context()), err))
		utils.WriteError(w, "Checkin failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkin successful", ticket))
}
