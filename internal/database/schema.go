package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-settlement/internal/models"
)

var schemaModels = []any{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.Zone)(nil),
	(*models.Ticket)(nil),
	(*models.Payment)(nil),
	(*models.EventHistory)(nil),
	(*models.TicketCount)(nil),
}

type schemaIndex struct {
	model   any
	name    string
	unique  bool
	columns []string
	where   string
}

var schemaIndexes = []schemaIndex{
	{(*models.Zone)(nil), "zones_event_name_key_uq", true, []string{"event_id", "name_key"}, ""},
	{(*models.Ticket)(nil), "tickets_zone_status_idx", false, []string{"zone_id", "status"}, ""},
	{(*models.Ticket)(nil), "tickets_user_idx", false, []string{"user_id"}, ""},
	{(*models.Payment)(nil), "payments_ticket_idx", false, []string{"ticket_id"}, ""},
	{(*models.Payment)(nil), "payments_status_idx", false, []string{"status", "created_at"}, ""},
	{(*models.Payment)(nil), "payments_ticket_active_uq", true, []string{"ticket_id"}, "status IN ('pending', 'completed')"},
	{(*models.EventHistory)(nil), "event_history_user_event_uq", true, []string{"user_id", "event_id"}, ""},
	{(*models.TicketCount)(nil), "ticket_counts_zone_date_uq", true, []string{"event_id", "zone_id", "date"}, ""},
}

// CreateSchema builds the tables from the bun models. Production databases
// are migrated with the SQL files under migrations/; this is for tests and the
// SQLite development mode.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range schemaIndexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if idx.where != "" {
			q = q.Where(idx.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
