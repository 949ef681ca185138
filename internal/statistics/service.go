package statistics

import (
	"context"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	catalogdb "ms-settlement/internal/catalog/db"
	"ms-settlement/internal/models"
	ticketsdb "ms-settlement/internal/tickets/db"
)

// DailySales is one day of the sales ledger summed over the event's zones.
type DailySales struct {
	Date     string `json:"date"`
	Sold     int    `json:"sold"`
	Refunded int    `json:"refunded"`
}

type Service struct {
	catalog *catalogdb.DB
	tickets *ticketsdb.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{
		catalog: catalogdb.New(db),
		tickets: ticketsdb.New(db),
	}
}

func (s *Service) ProjectEventStatistics(ctx context.Context, eventID string) (*EventStatistics, error) {
	event, err := s.catalog.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	zones, err := s.catalog.GetZonesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load zones of event %s: %w", eventID, err)
	}
	tickets, err := s.tickets.GetTicketsByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load tickets of event %s: %w", eventID, err)
	}
	stats := ProjectEvent(*event, zones, tickets)
	return &stats, nil
}

// ListAvailableZones returns the event's zones that still have unsold units.
func (s *Service) ListAvailableZones(ctx context.Context, eventID string) ([]ZoneStatistics, error) {
	stats, err := s.ProjectEventStatistics(ctx, eventID)
	if err != nil {
		return nil, err
	}
	available := make([]ZoneStatistics, 0, len(stats.Zones))
	for _, z := range stats.Zones {
		if z.Available > 0 {
			available = append(available, z)
		}
	}
	return available, nil
}

// DailySales returns the event's sales ledger by day, oldest first.
func (s *Service) DailySales(ctx context.Context, eventID string) ([]DailySales, error) {
	if _, err := s.catalog.GetEventByID(ctx, eventID); err != nil {
		return nil, err
	}
	counts, err := s.tickets.GetTicketCountsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load sales ledger of event %s: %w", eventID, err)
	}
	return summarizeDays(counts), nil
}

func summarizeDays(counts []models.TicketCount) []DailySales {
	byDay := make(map[string]*DailySales)
	for _, c := range counts {
		day := c.Date.UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &DailySales{Date: day}
			byDay[day] = d
		}
		d.Sold += c.Sold
		d.Refunded += c.Refunded
	}

	days := make([]DailySales, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days
}
