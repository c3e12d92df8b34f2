// Package audit is the append-only log of who did what, observed by the UI
// as the failure surface for background jobs.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Entry is one audit row.
type Entry struct {
	ID     int64          `json:"id"`
	TS     int64          `json:"ts"`
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Service records and lists audit entries.
type Service struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *sql.DB, clock clockwork.Clock, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		clock:  clock,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record appends one entry. Meta marshal failures are logged and the entry
// is written with empty metadata; the audit trail must not lose the event.
func (s *Service) Record(ctx context.Context, actor, action string, meta map[string]any) error {
	metaJSON := "{}"
	if meta != nil {
		bytes, err := json.Marshal(meta)
		if err != nil {
			s.logger.Warn().Err(err).Str("action", action).Msg("failed to marshal audit metadata")
		} else {
			metaJSON = string(bytes)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (ts, actor, action, meta_json) VALUES (?, ?, ?, ?)`,
		s.clock.Now().Unix(), actor, action, metaJSON)
	return err
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, actor, action, meta_json
		FROM logs ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var metaJSON string
		if err := rows.Scan(&entry.ID, &entry.TS, &entry.Actor, &entry.Action, &metaJSON); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			var meta map[string]any
			if err := json.Unmarshal([]byte(metaJSON), &meta); err == nil {
				entry.Meta = meta
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the total number of entries.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&count)
	return count, err
}
