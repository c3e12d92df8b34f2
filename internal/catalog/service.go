// Package catalog manages locations and items, mirroring the POS item
// catalog into the local store.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/pos"
)

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrItemNotFound     = errors.New("item not found")
)

// ItemSource lists the vendor's items. Implemented by *pos.Client.
type ItemSource interface {
	ListAllItems(ctx context.Context, merchantID string) ([]pos.Item, error)
}

// CredentialSource provides the stored POS link. Implemented by
// *pos.CredentialStore.
type CredentialSource interface {
	Load(ctx context.Context) (pos.Credentials, error)
}

// Service provides location and item management.
type Service struct {
	db     *sql.DB
	items  ItemSource
	creds  CredentialSource
	logger zerolog.Logger
}

// NewService creates a new catalog service.
func NewService(db *sql.DB, items ItemSource, creds CredentialSource, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		items:  items,
		creds:  creds,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// ListLocations returns all locations ordered by name.
func (s *Service) ListLocations(ctx context.Context) ([]*Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tz, open_hour, open_minute FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		loc := &Location{}
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.TZ, &loc.OpenHour, &loc.OpenMinute); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// GetLocation returns one location by id.
func (s *Service) GetLocation(ctx context.Context, id int64) (*Location, error) {
	loc := &Location{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tz, open_hour, open_minute FROM locations WHERE id = ?`, id).
		Scan(&loc.ID, &loc.Name, &loc.TZ, &loc.OpenHour, &loc.OpenMinute)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// CreateLocation inserts a location and returns it with its id assigned.
func (s *Service) CreateLocation(ctx context.Context, loc Location) (*Location, error) {
	if err := validateOpenTime(loc.OpenHour, loc.OpenMinute); err != nil {
		return nil, err
	}
	if loc.TZ == "" {
		loc.TZ = "UTC"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (name, tz, open_hour, open_minute) VALUES (?, ?, ?, ?)`,
		loc.Name, loc.TZ, loc.OpenHour, loc.OpenMinute)
	if err != nil {
		return nil, err
	}
	loc.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// UpdateLocation updates a location's name, timezone and open time.
func (s *Service) UpdateLocation(ctx context.Context, loc Location) error {
	if err := validateOpenTime(loc.OpenHour, loc.OpenMinute); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE locations SET name = ?, tz = ?, open_hour = ?, open_minute = ? WHERE id = ?`,
		loc.Name, loc.TZ, loc.OpenHour, loc.OpenMinute, loc.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLocationNotFound
	}
	return nil
}

// ListItems returns a location's items ordered by name.
func (s *Service) ListItems(ctx context.Context, locationID int64) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pos_item_id, name, sku, unit_type, location_id
		FROM items WHERE location_id = ? ORDER BY name`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns one item by id.
func (s *Service) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pos_item_id, name, sku, unit_type, location_id
		FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateItem inserts a local-only item (no POS link).
func (s *Service) CreateItem(ctx context.Context, item Item) (*Item, error) {
	if item.UnitType == "" {
		item.UnitType = "count"
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (pos_item_id, name, sku, unit_type, location_id)
		VALUES (?, ?, ?, ?, ?)`,
		item.POSItemID, item.Name, item.SKU, item.UnitType, item.LocationID)
	if err != nil {
		return nil, err
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes an item. Counters, template rows and week plans
// referencing it cascade.
func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SyncItems mirrors the POS item catalog into the given location,
// reconciling rows by pos_item_id. Local items without a POS id are left
// untouched.
func (s *Service) SyncItems(ctx context.Context, locationID int64) (*SyncResult, error) {
	creds, err := s.creds.Load(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}

	remote, err := s.items.ListAllItems(ctx, creds.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list POS items: %w", err)
	}

	result := &SyncResult{LocationID: locationID, Fetched: len(remote)}
	for _, ri := range remote {
		unitType := ri.UnitName
		if unitType == "" {
			unitType = "count"
		}

		var sku *string
		if ri.SKU != "" {
			sku = &ri.SKU
		}

		var existingID int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM items WHERE pos_item_id = ?`, ri.ID).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO items (pos_item_id, name, sku, unit_type, location_id)
				VALUES (?, ?, ?, ?, ?)`,
				ri.ID, ri.Name, sku, unitType, locationID)
			if err != nil {
				return nil, err
			}
			result.Created++
		case err != nil:
			return nil, err
		default:
			_, err := s.db.ExecContext(ctx, `
				UPDATE items SET name = ?, sku = ?, unit_type = ? WHERE id = ?`,
				ri.Name, sku, unitType, existingID)
			if err != nil {
				return nil, err
			}
			result.Updated++
		}
	}

	s.logger.Info().
		Int64("locationId", locationID).
		Int("fetched", result.Fetched).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Msg("catalog sync completed")

	return result, nil
}

func validateOpenTime(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("open hour must be 0-23, got %d", hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("open minute must be 0-59, got %d", minute)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	if err := row.Scan(&item.ID, &item.POSItemID, &item.Name, &item.SKU, &item.UnitType, &item.LocationID); err != nil {
		return nil, err
	}
	return item, nil
}
