package jobs

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
	// ErrNotFound is returned when a job id does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrIllegalTransition is returned for a status write outside
	// PENDING -> RUNNING -> {DONE, ERROR}. ERROR re-arms to PENDING only
	// through EnsurePending.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// Notifier pushes job status changes to connected clients. Implemented by
// *websocket.Hub.
type Notifier interface {
	Broadcast(msgType string, payload interface{}) error
}

// Repository persists job records and enforces their status state machine.
type Repository struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger zerolog.Logger
	events Notifier
}

// NewRepository creates a job repository.
func NewRepository(db *sql.DB, clock clockwork.Clock, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		clock:  clock,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// SetNotifier enables live job:updated events. Safe to leave unset.
func (r *Repository) SetNotifier(events Notifier) {
	r.events = events
}

func (r *Repository) notify(id int64, status Status) {
	if r.events == nil {
		return
	}
	r.events.Broadcast("job:updated", map[string]any{
		"jobId":  id,
		"status": string(status),
	})
}

// Get returns one job by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Job, error) {
	job, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, kind, scheduled_for, status, last_error, dedupe_key, updated_at
		FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// GetByDedupeKey returns the job holding a dedupe key, or nil.
func (r *Repository) GetByDedupeKey(ctx context.Context, key string) (*Job, error) {
	job, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, kind, scheduled_for, status, last_error, dedupe_key, updated_at
		FROM jobs WHERE dedupe_key = ? LIMIT 1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List returns all jobs ordered by schedule time, newest status first.
func (r *Repository) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, scheduled_for, status, last_error, dedupe_key, updated_at
		FROM jobs ORDER BY scheduled_for DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListActive returns PENDING and RUNNING jobs of one kind ordered by
// schedule time.
func (r *Repository) ListActive(ctx context.Context, kind Kind) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, scheduled_for, status, last_error, dedupe_key, updated_at
		FROM jobs
		WHERE kind = ? AND status IN ('PENDING', 'RUNNING')
		ORDER BY scheduled_for ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// EnsurePending is the sole deduplication mechanism. A DONE job for the key
// is returned unchanged (the period already ran). A live job gets its
// schedule time refreshed; an ERROR job is re-armed to PENDING with its
// error cleared. Otherwise a new PENDING job is inserted.
func (r *Repository) EnsurePending(ctx context.Context, kind Kind, dedupeKey string, scheduledFor int64) (*Job, error) {
	existing, err := r.GetByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now().Unix()

	if existing != nil {
		if existing.Status == StatusDone {
			return existing, nil
		}

		status := existing.Status
		lastError := existing.LastError
		if status == StatusError {
			status = StatusPending
			lastError = nil
		}

		_, err := r.db.ExecContext(ctx, `
			UPDATE jobs SET scheduled_for = ?, status = ?, last_error = ?, updated_at = ?
			WHERE id = ?`,
			scheduledFor, string(status), lastError, now, existing.ID)
		if err != nil {
			return nil, err
		}

		existing.ScheduledFor = scheduledFor
		existing.Status = status
		existing.LastError = lastError
		existing.UpdatedAt = now
		return existing, nil
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (kind, scheduled_for, status, last_error, dedupe_key, updated_at)
		VALUES (?, ?, 'PENDING', NULL, ?, ?)`,
		string(kind), scheduledFor, dedupeKey, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:           id,
		Kind:         kind,
		ScheduledFor: scheduledFor,
		Status:       StatusPending,
		DedupeKey:    &dedupeKey,
		UpdatedAt:    now,
	}, nil
}

// MarkRunning transitions a job to RUNNING.
func (r *Repository) MarkRunning(ctx context.Context, id int64) error {
	return r.transition(ctx, id, StatusRunning, nil)
}

// MarkCompleted transitions a job to DONE and clears its error.
func (r *Repository) MarkCompleted(ctx context.Context, id int64) error {
	return r.transition(ctx, id, StatusDone, nil)
}

// MarkErrored transitions a job to ERROR with a message.
func (r *Repository) MarkErrored(ctx context.Context, id int64, message string) error {
	return r.transition(ctx, id, StatusError, &message)
}

// legalFrom lists the states a target status may be entered from. Same-state
// writes are tolerated so a drain pass can re-assert RUNNING, and ERROR may
// re-enter RUNNING when a retry picks the job back up. DONE is terminal.
var legalFrom = map[Status][]Status{
	StatusRunning: {StatusPending, StatusRunning, StatusError},
	StatusDone:    {StatusRunning},
	StatusError:   {StatusPending, StatusRunning},
}

func (r *Repository) transition(ctx context.Context, id int64, to Status, message *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	allowed := false
	for _, from := range legalFrom[to] {
		if Status(current) == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s (job %d)", ErrIllegalTransition, current, to, id)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(to), message, r.clock.Now().Unix(), id)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.notify(id, to)
	return nil
}

// ReapStale resets RUNNING jobs untouched for longer than olderThan back to
// PENDING. Guards against workers cancelled mid-flight leaving jobs RUNNING
// forever. Returns the number of jobs reclaimed.
func (r *Repository) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.clock.Now().Add(-olderThan).Unix()
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'PENDING', last_error = NULL, updated_at = ?
		WHERE status = 'RUNNING' AND updated_at < ?`,
		r.clock.Now().Unix(), cutoff)
	if err != nil {
		return 0, err
	}
	reclaimed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		r.logger.Warn().Int64("count", reclaimed).Msg("reclaimed stale RUNNING jobs")
	}
	return reclaimed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOne(row rowScanner) (*Job, error) {
	job := &Job{}
	var kind, status string
	if err := row.Scan(&job.ID, &kind, &job.ScheduledFor, &status,
		&job.LastError, &job.DedupeKey, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Kind = Kind(kind)
	job.Status = Status(status)
	return job, nil
}

func (r *Repository) scanAll(rows *sql.Rows) ([]*Job, error) {
	var result []*Job
	for rows.Next() {
		job, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}
