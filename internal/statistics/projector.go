// Package statistics recomputes sales figures from live ticket rows. Nothing
// here is cached: the projection is as fresh as the tickets passed in.
package statistics

import "ms-settlement/internal/models"

type ZoneStatistics struct {
	ZoneID    string          `json:"zone_id"`
	Name      string          `json:"name"`
	Type      models.ZoneType `json:"type"`
	Capacity  int             `json:"capacity"`
	Sold      int             `json:"sold"`
	Reserved  int             `json:"reserved"`
	Available int             `json:"available"`
	Revenue   int64           `json:"revenue"`
}

type EventStatistics struct {
	EventID        string             `json:"event_id"`
	Name           string             `json:"name"`
	Status         models.EventStatus `json:"status"`
	TotalCapacity  int                `json:"total_capacity"`
	TotalSold      int                `json:"total_sold"`
	TotalReserved  int                `json:"total_reserved"`
	TotalAvailable int                `json:"total_available"`
	TotalRevenue   int64              `json:"total_revenue"`
	Zones          []ZoneStatistics   `json:"zones"`
}

// ProjectZone counts the zone's tickets. Tickets of other zones are ignored.
// Sold counts paid and used tickets.
func ProjectZone(zone models.Zone, tickets []models.Ticket) ZoneStatistics {
	stats := ZoneStatistics{
		ZoneID:   zone.ID,
		Name:     zone.Name,
		Type:     zone.Type,
		Capacity: zone.Capacity,
	}
	for _, t := range tickets {
		if t.ZoneID != zone.ID {
			continue
		}
		switch t.Status {
		case models.TicketPaid, models.TicketUsed:
			stats.Sold++
			stats.Revenue += t.Price
		case models.TicketPendingPayment:
			stats.Reserved++
		}
	}
	stats.Available = max(zone.Capacity-stats.Sold, 0)
	return stats
}

// ProjectEvent projects every zone of the event and sums the results.
func ProjectEvent(event models.Event, zones []models.Zone, tickets []models.Ticket) EventStatistics {
	stats := EventStatistics{
		EventID: event.ID,
		Name:    event.Name,
		Status:  event.Status,
		Zones:   make([]ZoneStatistics, 0, len(zones)),
	}
	for _, zone := range zones {
		z := ProjectZone(zone, tickets)
		stats.TotalCapacity += z.Capacity
		stats.TotalSold += z.Sold
		stats.TotalReserved += z.Reserved
		stats.TotalAvailable += z.Available
		stats.TotalRevenue += z.Revenue
		stats.Zones = append(stats.Zones, z)
	}
	return stats
}
