package tickets

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
	inventorydb "ms-settlement/internal/inventory/db"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	paymentdb "ms-settlement/internal/payment/db"
	"ms-settlement/internal/tickets/db"
	"ms-settlement/internal/tickets/qr"
	"ms-settlement/internal/tickets/template"
)

const DefaultReservationTTL = 15 * time.Minute

// EventPublisher receives committed ticket outcomes.
type EventPublisher interface {
	PublishSettlementEvent(ctx context.Context, event models.SettlementEvent) error
}

type CreateTicketInput struct {
	EventID string `json:"event_id" validate:"required"`
	ZoneID  string `json:"zone_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	// Price overrides the zone's base price when set.
	Price *int64 `json:"price,omitempty"`
}

type TicketService struct {
	bunDB          *bun.DB
	tickets        *db.DB
	catalog        *catalogdb.DB
	ledger         *inventory.Ledger
	publisher      EventPublisher
	qr             *qr.QRGenerator
	clock          clock.Clock
	log            *logger.Logger
	reservationTTL time.Duration
}

type Option func(*TicketService)

// WithReservationTTL sets how long a ticket may wait for payment before the
// expiry worker releases it.
func WithReservationTTL(ttl time.Duration) Option {
	return func(s *TicketService) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

func NewTicketService(bunDB *bun.DB, ledger *inventory.Ledger, publisher EventPublisher, qrGen *qr.QRGenerator,
	clk clock.Clock, log *logger.Logger, opts ...Option) *TicketService {
	s := &TicketService{
		bunDB:          bunDB,
		tickets:        db.New(bunDB),
		catalog:        catalogdb.New(bunDB),
		ledger:         ledger,
		publisher:      publisher,
		qr:             qrGen,
		clock:          clk,
		log:            log,
		reservationTTL: DefaultReservationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTicket reserves one unit of the zone for the buyer. The ticket starts
// in pending_payment and holds its unit until it is paid, cancelled or
// expired.
func (s *TicketService) CreateTicket(ctx context.Context, in CreateTicketInput) (*models.Ticket, error) {
	if in.EventID == "" || in.ZoneID == "" || in.UserID == "" {
		return nil, domain.Invalid("event_id, zone_id and user_id are required")
	}

	zone, err := s.checkPurchasable(ctx, s.catalog, in)
	if err != nil {
		return nil, err
	}

	price := zone.BasePrice
	if in.Price != nil {
		if *in.Price <= 0 {
			return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPrice, *in.Price)
		}
		price = *in.Price
	}

	var ticket *models.Ticket
	err = s.ledger.Serialize(ctx, zone.ID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// The event may have closed while we waited for the zone.
			if _, err := s.checkPurchasable(ctx, s.catalog.WithTx(tx), in); err != nil {
				return err
			}
			if _, _, err := s.ledger.AdmitReservation(ctx, inventorydb.New(tx), zone.ID); err != nil {
				return err
			}

			now := s.clock.Now()
			ticket = &models.Ticket{
				ID:        uuid.NewString(),
				EventID:   in.EventID,
				ZoneID:    zone.ID,
				UserID:    in.UserID,
				Price:     price,
				Status:    models.TicketPendingPayment,
				ExpiresAt: now.Add(s.reservationTTL),
				CreatedAt: now,
				UpdatedAt: now,
			}
			return s.tickets.WithTx(tx).CreateTicket(ctx, ticket)
		})
	})
	if err != nil {
		s.log.Warn("TICKET", fmt.Sprintf("Reservation in zone %s for user %s refused: %v", in.ZoneID, in.UserID, err))
		return nil, err
	}

	s.log.LogTicket("CREATE", ticket.ID, fmt.Sprintf("reserved in zone %s at %d", ticket.ZoneID, ticket.Price))
	return ticket, nil
}

func (s *TicketService) checkPurchasable(ctx context.Context, catalog *catalogdb.DB, in CreateTicketInput) (*models.Zone, error) {
	event, err := catalog.GetEventByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if event.Status.Closed() {
		return nil, fmt.Errorf("%w: event %s is %s", domain.ErrEventClosed, event.ID, event.Status)
	}
	zone, err := catalog.GetZoneByID(ctx, in.ZoneID)
	if err != nil {
		return nil, err
	}
	if zone.EventID != event.ID {
		return nil, fmt.Errorf("%w: zone %s, event %s", domain.ErrZoneNotInEvent, zone.ID, event.ID)
	}
	exists, err := catalog.UserExists(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, in.UserID)
	}
	return zone, nil
}

func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.tickets.GetTicketByID(ctx, ticketID)
}

// PrintableTicket gathers what a printed ticket shows.
func (s *TicketService) PrintableTicket(ctx context.Context, ticketID, currency string) (template.TicketDetails, error) {
	ticket, err := s.tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return template.TicketDetails{}, err
	}
	event, err := s.catalog.GetEventByID(ctx, ticket.EventID)
	if err != nil {
		return template.TicketDetails{}, err
	}
	zone, err := s.catalog.GetZoneByID(ctx, ticket.ZoneID)
	if err != nil {
		return template.TicketDetails{}, err
	}
	return template.TicketDetails{
		Ticket:    *ticket,
		EventName: event.Name,
		Location:  event.Location,
		ZoneName:  zone.Name,
		Currency:  strings.ToUpper(currency),
	}, nil
}

func (s *TicketService) GetTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	tickets, err := s.tickets.GetTicketsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for user %s: %w", userID, err)
	}
	return tickets, nil
}

func (s *TicketService) GetTicketsByZone(ctx context.Context, zoneID string) ([]models.Ticket, error) {
	if _, err := s.catalog.GetZoneByID(ctx, zoneID); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.GetTicketsByZone(ctx, zoneID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tickets for zone %s: %w", zoneID, err)
	}
	return tickets, nil
}

// CancelTicket moves a pending or paid ticket to cancelled, releasing its unit
// of capacity. A completed payment is left as is; refunds go through the
// payment.
func (s *TicketService) CancelTicket(ctx context.Context, ticketID, reason string) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, ticketID, func(t *models.Ticket, now time.Time) error {
		if err := Transition(t, models.TicketCancelled, now); err != nil {
			return err
		}
		t.CancellationReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.LogTicket("CANCEL", ticket.ID, ticket.CancellationReason)
	s.publish(ctx, models.EventTypeTicketCancelled, ticket)
	return ticket, nil
}

// CheckIn marks a paid ticket as used at the venue door.
func (s *TicketService) CheckIn(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, ticketID, func(t *models.Ticket, now time.Time) error {
		return Transition(t, models.TicketUsed, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.LogTicket("CHECKIN", ticket.ID, "ticket used")
	return ticket, nil
}

// CheckInWithToken checks in the ticket named by a scanned QR token.
func (s *TicketService) CheckInWithToken(ctx context.Context, token string) (*models.Ticket, error) {
	claims, err := s.qr.DecryptQRData(token)
	if err != nil {
		s.log.LogSecurity("QR_REJECTED", err.Error())
		return nil, err
	}
	ticket, err := s.tickets.GetTicketByID(ctx, claims.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.EventID != claims.EventID || ticket.UserID != claims.UserID {
		s.log.LogSecurity("QR_MISMATCH", fmt.Sprintf("token claims do not match ticket %s", ticket.ID))
		return nil, fmt.Errorf("%w: claims do not match ticket", domain.ErrInvalidQRToken)
	}
	return s.CheckIn(ctx, ticket.ID)
}

// ExpireReservation releases a pending ticket whose lease has run out. It
// reports false when the ticket no longer qualifies: it was paid or cancelled,
// its lease is still running, or a payment for it is being settled.
func (s *TicketService) ExpireReservation(ctx context.Context, ticketID string) (bool, error) {
	current, err := s.tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return false, err
	}

	var ticket *models.Ticket
	err = s.ledger.Serialize(ctx, current.ZoneID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store := s.tickets.WithTx(tx)
			t, err := store.GetTicketByID(ctx, ticketID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			if t.Status != models.TicketPendingPayment || t.ExpiresAt.IsZero() || !t.ExpiresAt.Before(now) {
				return nil
			}
			inFlight, err := paymentdb.New(tx).HasActivePayment(ctx, t.ID)
			if err != nil || inFlight {
				return err
			}
			if err := Transition(t, models.TicketExpired, now); err != nil {
				return err
			}
			t.CancellationReason = "reservation expired"
			if err := store.UpdateTicket(ctx, t); err != nil {
				return err
			}
			ticket = t
			return nil
		})
	})
	if err != nil || ticket == nil {
		return false, err
	}

	s.log.LogTicket("EXPIRE", ticket.ID, "reservation lease ended")
	s.publish(ctx, models.EventTypeTicketExpired, ticket)
	return true, nil
}

// mutate applies change to a ticket under its zone lock and persists it with a
// version check.
func (s *TicketService) mutate(ctx context.Context, ticketID string, change func(*models.Ticket, time.Time) error) (*models.Ticket, error) {
	current, err := s.tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var ticket *models.Ticket
	err = s.ledger.Serialize(ctx, current.ZoneID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store := s.tickets.WithTx(tx)
			t, err := store.GetTicketByID(ctx, ticketID)
			if err != nil {
				return err
			}
			if err := change(t, s.clock.Now()); err != nil {
				return err
			}
			ticket = t
			return store.UpdateTicket(ctx, t)
		})
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, eventType string, ticket *models.Ticket) {
	if s.publisher == nil {
		return
	}
	event := models.SettlementEvent{
		Type:      eventType,
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		ZoneID:    ticket.ZoneID,
		UserID:    ticket.UserID,
		Status:    string(ticket.Status),
		Reason:    ticket.CancellationReason,
		Timestamp: s.clock.Now(),
	}
	if err := s.publisher.PublishSettlementEvent(ctx, event); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for ticket %s: %v", eventType, ticket.ID, err))
	}
}

// ExpiredReservations lists up to limit pending tickets whose lease has ended
// and that no payment is currently settling.
func (s *TicketService) ExpiredReservations(ctx context.Context, limit int) ([]models.Ticket, error) {
	return s.tickets.ListExpiredReservations(ctx, s.clock.Now(), limit)
}
