// Package counter owns the per-day, per-item stock counters and the
// template apply operation that seeds them.
package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a counter row does not exist.
	ErrNotFound = errors.New("counter not found")
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
)

const dateLayout = "2006-01-02"

// Service provides counter reads, mutations and the template apply.
type Service struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewService creates a new counter service.
func NewService(db *sql.DB, clock clockwork.Clock, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		clock:  clock,
		logger: logger.With().Str("component", "counter").Logger(),
	}
}

// ListForDate returns a location's counters for one date ordered by item.
func (s *Service) ListForDate(ctx context.Context, locationID int64, date string) ([]*Counter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, item_id, location_id, start_qty, sold_qty, manual_adj, closed_on
		FROM counters WHERE location_id = ? AND date = ? ORDER BY item_id`,
		locationID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []*Counter
	for rows.Next() {
		c := &Counter{}
		if err := rows.Scan(&c.Date, &c.ItemID, &c.LocationID, &c.StartQuantity,
			&c.SoldQuantity, &c.ManualAdjustment, &c.ClosedOn); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// Get returns one counter row.
func (s *Service) Get(ctx context.Context, locationID, itemID int64, date string) (*Counter, error) {
	c := &Counter{}
	err := s.db.QueryRowContext(ctx, `
		SELECT date, item_id, location_id, start_qty, sold_qty, manual_adj, closed_on
		FROM counters WHERE date = ? AND item_id = ? AND location_id = ?`,
		date, itemID, locationID).
		Scan(&c.Date, &c.ItemID, &c.LocationID, &c.StartQuantity,
			&c.SoldQuantity, &c.ManualAdjustment, &c.ClosedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// MostRecentDate returns the latest counter date for a location, or ""
// when the location has none.
func (s *Service) MostRecentDate(ctx context.Context, locationID int64) (string, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `
		SELECT date FROM counters WHERE location_id = ? ORDER BY date DESC LIMIT 1`,
		locationID).Scan(&date)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return date, nil
}

// RecordSold adds delta units sold to a counter.
func (s *Service) RecordSold(ctx context.Context, locationID, itemID int64, date string, delta int) error {
	return s.bump(ctx, locationID, itemID, date, "sold_qty", delta)
}

// Adjust adds a manual adjustment to a counter.
func (s *Service) Adjust(ctx context.Context, locationID, itemID int64, date string, delta int) error {
	return s.bump(ctx, locationID, itemID, date, "manual_adj", delta)
}

// CloseDay stamps every counter of (location, date) with the close time.
func (s *Service) CloseDay(ctx context.Context, locationID int64, date string) error {
	now := s.clock.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		UPDATE counters SET closed_on = ? WHERE location_id = ? AND date = ? AND closed_on IS NULL`,
		now, locationID, date)
	return err
}

func (s *Service) bump(ctx context.Context, locationID, itemID int64, date, column string, delta int) error {
	// column is one of two fixed names picked by the caller above
	query := fmt.Sprintf(`UPDATE counters SET %s = %s + ? WHERE date = ? AND item_id = ? AND location_id = ?`, column, column)
	res, err := s.db.ExecContext(ctx, query, delta, date, itemID, locationID)
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

// ApplyTemplateForDate seeds (or re-seeds) a day's counters from a
// template. Re-applying is idempotent: when every template line already
// matches, nothing is written. When counters diverge, start quantities are
// overwritten while sold, adjustment and close time are preserved.
func (s *Service) ApplyTemplateForDate(ctx context.Context, templateID, locationID int64, date string) (*ApplyResult, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	var templateName string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM templates WHERE id = ?`, templateID).Scan(&templateName)
	if errors.Is(err, sql.ErrNoRows) {
		return &ApplyResult{Outcome: OutcomeTemplateNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := s.templateLines(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return &ApplyResult{Outcome: OutcomeEmptyTemplate, TemplateID: templateID, TemplateName: templateName}, nil
	}

	existing, err := s.ListForDate(ctx, locationID, date)
	if err != nil {
		return nil, err
	}
	byItem := make(map[int64]*Counter, len(existing))
	for _, c := range existing {
		byItem[c.ItemID] = c
	}

	if len(existing) > 0 {
		covered := true
		for itemID, startQty := range lines {
			current, ok := byItem[itemID]
			if !ok || current.StartQuantity != startQty {
				covered = false
				break
			}
		}
		if covered {
			return &ApplyResult{
				Outcome:      OutcomeAlreadyApplied,
				TemplateID:   templateID,
				TemplateName: templateName,
				AppliedDate:  date,
				ItemCount:    len(lines),
			}, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for itemID, startQty := range lines {
		soldQty, manualAdj := 0, 0
		var closedOn *int64
		if current, ok := byItem[itemID]; ok {
			soldQty = current.SoldQuantity
			manualAdj = current.ManualAdjustment
			closedOn = current.ClosedOn
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO counters (date, item_id, location_id, start_qty, sold_qty, manual_adj, closed_on)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, item_id, location_id) DO UPDATE SET
				start_qty = excluded.start_qty,
				sold_qty = excluded.sold_qty,
				manual_adj = excluded.manual_adj,
				closed_on = excluded.closed_on`,
			date, itemID, locationID, startQty, soldQty, manualAdj, closedOn)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("templateId", templateID).
		Int64("locationId", locationID).
		Str("date", date).
		Int("items", len(lines)).
		Msg("template applied")

	return &ApplyResult{
		Outcome:      OutcomeApplied,
		TemplateID:   templateID,
		TemplateName: templateName,
		AppliedDate:  date,
		ItemCount:    len(lines),
	}, nil
}

func (s *Service) templateLines(ctx context.Context, templateID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, start_qty FROM template_items WHERE template_id = ?`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make(map[int64]int)
	for rows.Next() {
		var itemID int64
		var startQty int
		if err := rows.Scan(&itemID, &startQty); err != nil {
			return nil, err
		}
		lines[itemID] = startQty
	}
	return lines, rows.Err()
}
