package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	catalogdb "ms-settlement/internal/catalog/db"
	"ms-settlement/internal/clock"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/history/db"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

const (
	MinRating = 1
	MaxRating = 5
)

type HistoryService struct {
	bunDB   *bun.DB
	history *db.DB
	catalog *catalogdb.DB
	clock   clock.Clock
	log     *logger.Logger
}

func NewHistoryService(bunDB *bun.DB, clk clock.Clock, log *logger.Logger) *HistoryService {
	return &HistoryService{
		bunDB:   bunDB,
		history: db.New(bunDB),
		catalog: catalogdb.New(bunDB),
		clock:   clk,
		log:     log,
	}
}

// ConfirmAttendance marks the user as having attended the event, creating the
// history row on first contact. Confirming twice keeps the first timestamp.
func (s *HistoryService) ConfirmAttendance(ctx context.Context, eventID, userID string) (*models.EventHistory, error) {
	if err := s.checkParticipants(ctx, eventID, userID); err != nil {
		return nil, err
	}

	var record *models.EventHistory
	err := s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.history.WithTx(tx)
		now := s.clock.Now()
		r, err := store.EnsureRecord(ctx, userID, eventID, now)
		if err != nil {
			return err
		}
		record = r
		if r.AttendanceConfirmed {
			return nil
		}
		r.AttendanceConfirmed = true
		r.ConfirmedAt = now
		r.UpdatedAt = now
		return store.UpdateRecord(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("HISTORY", fmt.Sprintf("Attendance confirmed for user %s at event %s", userID, eventID))
	return record, nil
}

// RateEvent stores a 1..5 rating and optional comment. Only users with a
// history row for the event may rate it.
func (s *HistoryService) RateEvent(ctx context.Context, eventID, userID string, rating int, comment string) (*models.EventHistory, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, fmt.Errorf("%w: got %d, want %d..%d", domain.ErrInvalidRating, rating, MinRating, MaxRating)
	}
	if err := s.checkParticipants(ctx, eventID, userID); err != nil {
		return nil, err
	}

	var record *models.EventHistory
	err := s.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		store := s.history.WithTx(tx)
		r, err := store.GetRecord(ctx, userID, eventID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		r.Rating = rating
		r.Comment = strings.TrimSpace(comment)
		r.RatedAt = now
		r.UpdatedAt = now
		record = r
		return store.UpdateRecord(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("HISTORY", fmt.Sprintf("Event %s rated %d by user %s", eventID, rating, userID))
	return record, nil
}

func (s *HistoryService) GetHistory(ctx context.Context, eventID, userID string) (*models.EventHistory, error) {
	return s.history.GetRecord(ctx, userID, eventID)
}

func (s *HistoryService) ListByUser(ctx context.Context, userID string) ([]models.EventHistory, error) {
	if _, err := s.catalog.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.history.ListByUser(ctx, userID)
}

func (s *HistoryService) ListByEvent(ctx context.Context, eventID string) ([]models.EventHistory, error) {
	if _, err := s.catalog.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.history.ListByEvent(ctx, eventID)
}

func (s *HistoryService) checkParticipants(ctx context.Context, eventID, userID string) error {
	if _, err := s.catalog.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.catalog.GetEventByID(ctx, eventID); err != nil {
		return err
	}
	return nil
}
