package payment_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	payment "ms-settlement/internal/payment/service"
	"ms-settlement/internal/settlement"
	"ms-settlement/internal/utils"
)

type Handler struct {
	Settlement     *settlement.Orchestrator
	PaymentService *payment.PaymentService
	Logger         *logger.Logger
}

func NewHandler(orch *settlement.Orchestrator, payments *payment.PaymentService, log *logger.Logger) *Handler {
	return &Handler{Settlement: orch, PaymentService: payments, Logger: log}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// settleResponse tells the client whether opening a new payment for the same
// ticket may succeed.
type settleResponse struct {
	Payment   *models.Payment `json:"payment"`
	Retryable bool            `json:"retryable"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.CreateAndSettle)
		r.Get("/ticket/{ticketId}", h.ListPaymentsByTicket)
		r.Get("/{paymentId}", h.GetPayment)
		r.Post("/{paymentId}/settle", h.Settle)
		r.Post("/{paymentId}/refund", h.Refund)
	})
}

// CreateAndSettle opens a payment for a pending ticket and charges it in one
// request. A payment that was opened but did not settle is returned with the
// error.
func (h *Handler) CreateAndSettle(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
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

	p, err := h.Settlement.CreateAndSettle(r.Context(), req)
	if err != nil {
		h.writeSettleError(w, req.TicketID, p, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Payment completed", settleResponse{Payment: p}))
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	p, err := h.Settlement.Settle(r.Context(), paymentID)
	if err != nil {
		h.writeSettleError(w, paymentID, p, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment completed", settleResponse{Payment: p}))
}

func (h *Handler) writeSettleError(w http.ResponseWriter, subject string, p *models.Payment, err error) {
	h.Logger.LogPayment("SETTLE_FAILED", subject, err.Error())
	if p == nil {
		utils.WriteError(w, "Payment could not be processed", err)
		return
	}
	utils.WriteErrorWithData(w, "Payment could not be processed", err, settleResponse{
		Payment:   p,
		Retryable: settlement.IsRetryable(err),
	})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, "A refund reason is required", err)
		return
	}

	paymentID := chi.URLParam(r, "paymentId")
	p, err := h.Settlement.Refund(r.Context(), paymentID, req.Reason)
	if err != nil {
		h.Logger.LogPayment("REFUND_FAILED", paymentID, fmt.Sprintf("%v", err))
		utils.WriteError(w, "Refund failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment refunded", p))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.PaymentService.GetPayment(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		utils.WriteError(w, "Payment not found", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment", p))
}

func (h *Handler) ListPaymentsByTicket(w http.ResponseWriter, r *http.Request) {
	list, err := h.PaymentService.ListPaymentsByTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		utils.WriteError(w, "Could not list payments", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payments", list))
}
