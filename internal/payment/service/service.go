package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	catalogdb "ms-settlement/internal/catalog/db"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/inventory"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	"ms-settlement/internal/payment/db"
	ticketsdb "ms-settlement/internal/tickets/db"
)

const DefaultCurrency = "USD"

// PaymentService owns payment rows: it opens them and moves them out of
// pending when nothing else will.
type PaymentService struct {
	bunDB    *bun.DB
	payments *db.DB
	tickets  *ticketsdb.DB
	catalog  *catalogdb.DB
	ledger   *inventory.Ledger
	clock    clock.Clock
	log      *logger.Logger
	currency string
}

func NewPaymentService(bunDB *bun.DB, ledger *inventory.Ledger, clk clock.Clock, log *logger.Logger, currency string) *PaymentService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &PaymentService{
		bunDB:    bunDB,
		payments: db.New(bunDB),
		tickets:  ticketsdb.New(bunDB),
		catalog:  catalogdb.New(bunDB),
		ledger:   ledger,
		clock:    clk,
		log:      log,
		currency: strings.ToUpper(currency),
	}
}

// Open validates a purchase attempt and records it as a pending payment.
// Nothing is written when validation fails.
func (s *PaymentService) Open(ctx context.Context, req models.PaymentRequest) (*models.Payment, error) {
	if req.TicketID == "" || req.UserID == "" {
		return nil, domain.Invalid("ticket_id and user_id are required")
	}
	if !req.Method.Valid() {
		return nil, domain.Invalid("unsupported payment method %q", req.Method)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", domain.ErrInvalidAmount, req.Amount)
	}
	if _, err := s.catalog.GetUserByID(ctx, req.UserID); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetTicketByID(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if err := CheckPayable(ticket, req.Amount); err != nil {
		return nil, err
	}

	var payment *models.Payment
	err = s.ledger.Serialize(ctx, ticket.ZoneID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			t, err := s.tickets.WithTx(tx).GetTicketByID(ctx, req.TicketID)
			if err != nil {
				return err
			}
			if err := CheckPayable(t, req.Amount); err != nil {
				return err
			}
			store := s.payments.WithTx(tx)
			active, err := store.HasActivePayment(ctx, t.ID)
			if err != nil {
				return err
			}
			if active {
				return fmt.Errorf("%w: ticket %s", domain.ErrActivePaymentExists, t.ID)
			}

			now := s.clock.Now()
			payment = &models.Payment{
				ID:        uuid.NewString(),
				TicketID:  t.ID,
				UserID:    req.UserID,
				Amount:    req.Amount,
				Currency:  s.currency,
				Method:    req.Method,
				Status:    models.PaymentPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return store.CreatePayment(ctx, payment)
		})
	})
	if err != nil {
		s.log.Warn("PAYMENT", fmt.Sprintf("Payment for ticket %s refused: %v", req.TicketID, err))
		return nil, err
	}

	s.log.LogPayment("OPEN", payment.ID, fmt.Sprintf("pending %d %s for ticket %s", payment.Amount, payment.Currency, payment.TicketID))
	return payment, nil
}

// CheckPayable holds the guards shared by payment creation and settlement.
func CheckPayable(ticket *models.Ticket, amount int64) error {
	switch ticket.Status {
	case models.TicketPendingPayment:
	case models.TicketPaid:
		return fmt.Errorf("%w: ticket %s", domain.ErrAlreadyPaid, ticket.ID)
	default:
		return fmt.Errorf("%w: ticket %s is %s", domain.ErrTicketNotPending, ticket.ID, ticket.Status)
	}
	if amount != ticket.Price {
		return fmt.Errorf("%w: amount %d does not match ticket price %d", domain.ErrInvalidAmount, amount, ticket.Price)
	}
	return nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.payments.GetPaymentByID(ctx, paymentID)
}

func (s *PaymentService) ListPaymentsByTicket(ctx context.Context, ticketID string) ([]models.Payment, error) {
	if _, err := s.tickets.GetTicketByID(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.payments.GetPaymentsByTicket(ctx, ticketID)
}

// Abandon moves a payment that is still pending to status (failed, rejected
// or cancelled). A payment that already reached an outcome is left untouched
// and reported with changed == false.
func (s *PaymentService) Abandon(ctx context.Context, paymentID string, status models.PaymentStatus, reason string) (changed bool, err error) {
	if status == models.PaymentCompleted || !models.PaymentPending.CanTransitionTo(status) {
		return false, fmt.Errorf("%w: cannot abandon payment as %s", domain.ErrInvalidTransition, status)
	}
	changed, err = s.payments.FailIfPending(ctx, paymentID, status, reason, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("mark payment %s %s: %w", paymentID, status, err)
	}
	if changed {
		s.log.LogPayment(strings.ToUpper(string(status)), paymentID, reason)
	}
	return changed, nil
}

// ListStalePending returns up to limit payments that have been pending for
// longer than ttl.
func (s *PaymentService) ListStalePending(ctx context.Context, ttl time.Duration, limit int) ([]models.Payment, error) {
	return s.payments.ListStalePending(ctx, s.clock.Now().Add(-ttl), limit)
}
