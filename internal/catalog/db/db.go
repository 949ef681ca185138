package db

import (
	"context"
	"encoding/json"

	"github.com/uptrace/bun"

	"ms-settlement/internal/database"
	"ms-settlement/internal/domain"
	"ms-settlement/internal/models"
)

// DB stores events, zones and users.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

func (d *DB) WithTx(tx bun.IDB) *DB {
	return &DB{Bun: tx}
}

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrEventNotFound, id)
	}
	return &event, nil
}

func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Set("name = ?", event.Name).
		Set("description = ?", event.Description).
		Set("location = ?", event.Location).
		Set("start_at = ?", event.StartAt).
		Set("end_at = ?", event.EndAt).
		Set("status = ?", event.Status).
		Set("updated_at = ?", event.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", event.ID).
		Where("version = ?", event.Version).
		Exec(ctx)
	if err := database.ExpectOneRow(res, err, "event "+event.ID); err != nil {
		return err
	}
	event.Version++
	return nil
}

func (d *DB) CreateZone(ctx context.Context, zone *models.Zone) error {
	_, err := d.Bun.NewInsert().Model(zone).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateZoneName
	}
	return err
}

func (d *DB) GetZoneByID(ctx context.Context, id string) (*models.Zone, error) {
	var zone models.Zone
	err := d.Bun.NewSelect().
		Model(&zone).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrZoneNotFound, id)
	}
	return &zone, nil
}

func (d *DB) GetZonesByEvent(ctx context.Context, eventID string) ([]models.Zone, error) {
	var zones []models.Zone
	err := d.Bun.NewSelect().
		Model(&zones).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	return zones, err
}

// ZoneNameTaken reports whether another zone of the event already uses the
// name, ignoring case. excludeID skips the zone being renamed.
func (d *DB) ZoneNameTaken(ctx context.Context, eventID, nameKey, excludeID string) (bool, error) {
	q := d.Bun.NewSelect().
		Model((*models.Zone)(nil)).
		Where("event_id = ?", eventID).
		Where("name_key = ?", nameKey)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	return q.Exists(ctx)
}

func (d *DB) UpdateZone(ctx context.Context, zone *models.Zone) error {
	benefits, err := json.Marshal(zone.Benefits)
	if err != nil {
		return err
	}
	res, err := d.Bun.NewUpdate().
		Model(zone).
		Set("name = ?", zone.Name).
		Set("name_key = ?", zone.NameKey).
		Set("zone_type = ?", zone.Type).
		Set("capacity = ?", zone.Capacity).
		Set("base_price = ?", zone.BasePrice).
		Set("benefits = ?", string(benefits)).
		Set("updated_at = ?", zone.UpdatedAt).
		Set("version = version + 1").
		Where("id = ?", zone.ID).
		Where("version = ?", zone.Version).
		Exec(ctx)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateZoneName
	}
	if err := database.ExpectOneRow(res, err, "zone "+zone.ID); err != nil {
		return err
	}
	zone.Version++
	return nil
}

func (d *DB) DeleteZone(ctx context.Context, id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Zone)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	return err
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err, domain.ErrUserNotFound, id)
	}
	return &user, nil
}

// UserExists checks if a user with the given ID exists in the database
func (d *DB) UserExists(ctx context.Context, userID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", userID).
		Exists(ctx)
}
