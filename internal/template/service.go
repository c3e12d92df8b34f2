// Package template manages reusable start-quantity templates that seed each
// day's counters.
package template

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a template does not exist.
var ErrNotFound = errors.New("template not found")

// Template is a named list of (item, start quantity) pairs for a location.
type Template struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	LocationID  int64   `json:"locationId"`
	HolidayCode *string `json:"holidayCode,omitempty"`
	Items       []Item  `json:"items,omitempty"`
}

// Item is one template line.
type Item struct {
	TemplateID    int64   `json:"templateId"`
	ItemID        int64   `json:"itemId"`
	ItemName      string  `json:"itemName,omitempty"`
	SKU           *string `json:"sku,omitempty"`
	StartQuantity int     `json:"startQuantity"`
}

// Service provides template management.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new template service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "template").Logger(),
	}
}

// List returns a location's templates with their items.
func (s *Service) List(ctx context.Context, locationID int64) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location_id, holiday_code
		FROM templates WHERE location_id = ? ORDER BY id`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		tpl := &Template{}
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.LocationID, &tpl.HolidayCode); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tpl := range templates {
		items, err := s.ListItems(ctx, tpl.ID)
		if err != nil {
			return nil, err
		}
		tpl.Items = items
	}
	return templates, nil
}

// Get returns one template with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Template, error) {
	tpl := &Template{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location_id, holiday_code FROM templates WHERE id = ?`, id).
		Scan(&tpl.ID, &tpl.Name, &tpl.LocationID, &tpl.HolidayCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tpl.Items, err = s.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

// DefaultForLocation returns the location's first template, which the daily
// reset path uses when no template is picked explicitly. Returns ErrNotFound
// when the location has none.
func (s *Service) DefaultForLocation(ctx context.Context, locationID int64) (*Template, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM templates WHERE location_id = ? ORDER BY id LIMIT 1`, locationID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// ListItems returns a template's lines joined with item details.
func (s *Service) ListItems(ctx context.Context, templateID int64) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.template_id, ti.item_id, i.name, i.sku, ti.start_qty
		FROM template_items ti
		JOIN items i ON i.id = ti.item_id
		WHERE ti.template_id = ?
		ORDER BY i.name`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.TemplateID, &it.ItemID, &it.ItemName, &it.SKU, &it.StartQuantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Create inserts a template and returns its id.
func (s *Service) Create(ctx context.Context, locationID int64, name string, holidayCode *string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (name, location_id, holiday_code) VALUES (?, ?, ?)`,
		name, locationID, holidayCode)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update changes a template's name and holiday code.
func (s *Service) Update(ctx context.Context, id int64, name string, holidayCode *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates SET name = ?, holiday_code = ? WHERE id = ?`,
		name, holidayCode, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a template. Its lines cascade.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetItemQuantity upserts one template line. Negative quantities clamp to 0.
func (s *Service) SetItemQuantity(ctx context.Context, templateID, itemID int64, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO template_items (template_id, item_id, start_qty) VALUES (?, ?, ?)
		ON CONFLICT(template_id, item_id) DO UPDATE SET start_qty = excluded.start_qty`,
		templateID, itemID, quantity)
	return err
}

// RemoveItem deletes one template line.
func (s *Service) RemoveItem(ctx context.Context, templateID, itemID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM template_items WHERE template_id = ? AND item_id = ?`,
		templateID, itemID)
	return err
}
