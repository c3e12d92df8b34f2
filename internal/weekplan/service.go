// Package weekplan manages per-week planned quantities, keyed by weekday
// instead of the flat seven-column rows the mobile app used.
package weekplan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// ErrInvalidDay is returned for an unknown day key.
var ErrInvalidDay = errors.New("invalid day key")

// Service provides week plan reads and writes.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewService creates a new week plan service.
func NewService(db *sql.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "weekplan").Logger(),
	}
}

// Set upserts one planned quantity. day == DayDefault sets the fallback.
// Negative quantities are rejected silently, matching the grid UI contract.
func (s *Service) Set(ctx context.Context, locationID int64, weekStart string, itemID int64, day Day, quantity int) error {
	if !day.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	if quantity < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO week_plans (week_start, item_id, location_id, day, quantity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(week_start, item_id, location_id, day) DO UPDATE SET quantity = excluded.quantity`,
		weekStart, itemID, locationID, string(day), quantity)
	return err
}

// List returns the week's plan grouped per item, joined with item details.
func (s *Service) List(ctx context.Context, locationID int64, weekStart string) ([]*Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wp.item_id, i.name, i.pos_item_id, wp.day, wp.quantity
		FROM week_plans wp
		JOIN items i ON i.id = wp.item_id
		WHERE wp.location_id = ? AND wp.week_start = ?
		ORDER BY i.name`, locationID, weekStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byItem := make(map[int64]*Row)
	for rows.Next() {
		var (
			itemID    int64
			itemName  string
			posItemID *string
			day       string
			quantity  int
		)
		if err := rows.Scan(&itemID, &itemName, &posItemID, &day, &quantity); err != nil {
			return nil, err
		}

		row, ok := byItem[itemID]
		if !ok {
			row = &Row{
				WeekStart:  weekStart,
				ItemID:     itemID,
				ItemName:   itemName,
				POSItemID:  posItemID,
				LocationID: locationID,
				Days:       make(map[Day]int),
			}
			byItem[itemID] = row
		}
		if Day(day) == DayDefault {
			row.Default = quantity
		} else {
			row.Days[Day(day)] = quantity
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*Row, 0, len(byItem))
	for _, row := range byItem {
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ItemName < result[j].ItemName })
	return result, nil
}

// Clear removes the whole week for a location.
func (s *Service) Clear(ctx context.Context, locationID int64, weekStart string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM week_plans WHERE location_id = ? AND week_start = ?`,
		locationID, weekStart)
	return err
}

// DeleteForItems removes all plan rows for the given items at a location.
func (s *Service) DeleteForItems(ctx context.Context, locationID int64, itemIDs []int64) error {
	for _, itemID := range itemIDs {
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM week_plans WHERE location_id = ? AND item_id = ?`,
			locationID, itemID); err != nil {
			return err
		}
	}
	return nil
}

// PrefillFromTemplate seeds the week's default quantities from a template.
// With templateID == 0 the location's first template is used. Returns false
// when no template exists.
func (s *Service) PrefillFromTemplate(ctx context.Context, locationID int64, weekStart string, templateID int64) (bool, error) {
	var tplID int64
	var err error
	if templateID != 0 {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM templates WHERE id = ?`, templateID).Scan(&tplID)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM templates WHERE location_id = ? ORDER BY id LIMIT 1`, locationID).Scan(&tplID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ti.item_id, ti.start_qty
		FROM template_items ti
		JOIN items i ON i.id = ti.item_id
		WHERE ti.template_id = ? AND i.location_id = ?`, tplID, locationID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	type line struct {
		itemID int64
		qty    int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.itemID, &l.qty); err != nil {
			return false, err
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, l := range lines {
		if err := s.Set(ctx, locationID, weekStart, l.itemID, DayDefault, l.qty); err != nil {
			return false, err
		}
	}
	return true, nil
}
