package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-settlement/internal/catalog/db"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/inventory"
	inventorydb "ms-settlement/internal/inventory/db"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
	ticketsdb "ms-settlement/internal/tickets/db"
)

type EventInput struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Location    string    `json:"location" validate:"required,max=200"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required"`
}

type ZoneInput struct {
	Name      string          `json:"name" validate:"required,max=100"`
	Type      models.ZoneType `json:"zone_type"`
	Capacity  int             `json:"capacity" validate:"required"`
	BasePrice int64           `json:"base_price" validate:"required"`
	Benefits  []string        `json:"benefits"`
}

type UserInput struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=200"`
}

// CatalogService manages the events, zones and users tickets are sold against.
type CatalogService struct {
	bunDB   *bun.DB
	catalog *db.DB
	ledger  *inventory.Ledger
	clock   clock.Clock
	log     *logger.Logger
}

func NewCatalogService(bunDB *bun.DB, ledger *inventory.Ledger, clk clock.Clock, log *logger.Logger) *CatalogService {
	return &CatalogService{
		bunDB:   bunDB,
		catalog: db.New(bunDB),
		ledger:  ledger,
		clock:   clk,
		log:     log,
	}
}

func (s *CatalogService) CreateEvent(ctx context.Context, in EventInput) (*models.Event, error) {
	if err := checkEventInput(in); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	event := &models.Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		StartAt:     in.StartAt.UTC(),
		EndAt:       in.EndAt.UTC(),
		Status:      models.EventCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.catalog.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("CATALOG", fmt.Sprintf("Event %s created: %s", event.ID, event.Name))
	return event, nil
}

func (s *CatalogService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.catalog.GetEventByID(ctx, eventID)
}

// UpdateEvent replaces the descriptive fields of an event that is still open.
func (s *CatalogService) UpdateEvent(ctx context.Context, eventID string, in EventInput) (*models.Event, error) {
	if err := checkEventInput(in); err != nil {
		return nil, err
	}
	event, err := s.catalog.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status.Closed() {
		return nil, fmt.Errorf("%w: event %s is %s", domain.ErrEventClosed, event.ID, event.Status)
	}

	event.Name = strings.TrimSpace(in.Name)
	event.Description = strings.TrimSpace(in.Description)
	event.Location = strings.TrimSpace(in.Location)
	event.StartAt = in.StartAt.UTC()
	event.EndAt = in.EndAt.UTC()
	event.UpdatedAt = s.clock.Now()
	if err := s.catalog.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *CatalogService) ChangeEventStatus(ctx context.Context, eventID string, status models.EventStatus) (*models.Event, error) {
	if !status.Valid() {
		return nil, domain.Invalid("unknown event status %q", status)
	}
	event, err := s.catalog.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == status {
		return event, nil
	}
	if !event.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: event %s %s -> %s", domain.ErrInvalidTransition, event.ID, event.Status, status)
	}

	from := event.Status
	event.Status = status
	event.UpdatedAt = s.clock.Now()
	if err := s.catalog.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.log.Info("CATALOG", fmt.Sprintf("Event %s moved %s -> %s", event.ID, from, status))
	return event, nil
}

func checkEventInput(in EventInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Location) == "" {
		return domain.Invalid("name and location are required")
	}
	if in.StartAt.IsZero() || !in.EndAt.After(in.StartAt) {
		return fmt.Errorf("%w: end %s is not after start %s", domain.ErrInvalidTimeWindow,
			in.EndAt.Format(time.RFC3339), in.StartAt.Format(time.RFC3339))
	}
	return nil
}

// CreateZone adds a zone to an open event. Zone names are unique within the
// event regardless of case.
func (s *CatalogService) CreateZone(ctx context.Context, eventID string, in ZoneInput) (*models.Zone, error) {
	if err := checkZoneInput(&in); err != nil {
		return nil, err
	}
	event, err := s.catalog.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status.Closed() {
		return nil, fmt.Errorf("%w: event %s is %s", domain.ErrEventClosed, event.ID, event.Status)
	}

	key := models.ZoneNameKey(in.Name)
	taken, err := s.catalog.ZoneNameTaken(ctx, eventID, key, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %q in event %s", domain.ErrDuplicateZoneName, in.Name, eventID)
	}

	now := s.clock.Now()
	zone := &models.Zone{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Name:      strings.TrimSpace(in.Name),
		NameKey:   key,
		Type:      in.Type,
		Capacity:  in.Capacity,
		BasePrice: in.BasePrice,
		Benefits:  in.Benefits,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.catalog.CreateZone(ctx, zone); err != nil {
		return nil, err
	}
	s.log.Info("CATALOG", fmt.Sprintf("Zone %s (%s) created in event %s with capacity %d", zone.ID, zone.Name, eventID, zone.Capacity))
	return zone, nil
}

func (s *CatalogService) GetZone(ctx context.Context, zoneID string) (*models.Zone, error) {
	return s.catalog.GetZoneByID(ctx, zoneID)
}

func (s *CatalogService) ListZones(ctx context.Context, eventID string) ([]models.Zone, error) {
	if _, err := s.catalog.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.catalog.GetZonesByEvent(ctx, eventID)
}

// UpdateZone changes a zone under its lock. Capacity may not drop below the
// units currently sold or reserved.
func (s *CatalogService) UpdateZone(ctx context.Context, zoneID string, in ZoneInput) (*models.Zone, error) {
	if err := checkZoneInput(&in); err != nil {
		return nil, err
	}

	var zone *models.Zone
	err := s.ledger.Serialize(ctx, zoneID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			store := s.catalog.WithTx(tx)
			z, usage, err := s.ledger.Usage(ctx, inventorydb.New(tx), zoneID)
			if err != nil {
				return err
			}
			event, err := store.GetEventByID(ctx, z.EventID)
			if err != nil {
				return err
			}
			if event.Status.Closed() {
				return fmt.Errorf("%w: event %s is %s", domain.ErrEventClosed, event.ID, event.Status)
			}
			if held := usage.Sold + usage.Reserved; in.Capacity < held {
				return fmt.Errorf("%w: capacity %d is below the %d units already held", domain.ErrInvalidCapacity, in.Capacity, held)
			}

			key := models.ZoneNameKey(in.Name)
			taken, err := store.ZoneNameTaken(ctx, z.EventID, key, z.ID)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %q in event %s", domain.ErrDuplicateZoneName, in.Name, z.EventID)
			}

			z.Name = strings.TrimSpace(in.Name)
			z.NameKey = key
			z.Type = in.Type
			z.Capacity = in.Capacity
			z.BasePrice = in.BasePrice
			z.Benefits = in.Benefits
			z.UpdatedAt = s.clock.Now()
			zone = z
			return store.UpdateZone(ctx, z)
		})
	})
	if err != nil {
		return nil, err
	}
	return zone, nil
}

// DeleteZone removes a zone that never had a ticket.
func (s *CatalogService) DeleteZone(ctx context.Context, zoneID string) error {
	return s.ledger.Serialize(ctx, zoneID, func(ctx context.Context) error {
		return s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := inventorydb.New(tx).LockZone(ctx, zoneID, s.clock.Now()); err != nil {
				return err
			}
			n, err := ticketsdb.New(tx).CountTicketsInZone(ctx, zoneID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: zone %s has %d tickets", domain.ErrZoneHasTickets, zoneID, n)
			}
			if err := s.catalog.WithTx(tx).DeleteZone(ctx, zoneID); err != nil {
				return err
			}
			s.log.Info("CATALOG", fmt.Sprintf("Zone %s deleted", zoneID))
			return nil
		})
	})
}

func checkZoneInput(in *ZoneInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("zone name is required")
	}
	if in.Capacity < 1 {
		return fmt.Errorf("%w: capacity must be at least 1, got %d", domain.ErrInvalidCapacity, in.Capacity)
	}
	if in.BasePrice <= 0 {
		return fmt.Errorf("%w: base price must be positive, got %d", domain.ErrInvalidPrice, in.BasePrice)
	}
	if in.Type == "" {
		in.Type = models.ZoneGeneral
	}
	if !in.Type.Valid() {
		return domain.Invalid("unknown zone type %q", in.Type)
	}
	if in.Benefits == nil {
		in.Benefits = []string{}
	}
	return nil
}

func (s *CatalogService) CreateUser(ctx context.Context, in UserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.FullName)
	if email == "" || name == "" {
		return nil, domain.Invalid("email and full_name are required")
	}
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.catalog.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("CATALOG", fmt.Sprintf("User %s registered", user.ID))
	return user, nil
}

func (s *CatalogService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.catalog.GetUserByID(ctx, userID)
}
