package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/pos"
	"github.com/pitstock/pitstock/internal/weekplan"
)

const (
	// Per-item push retry bounds for transient POS failures.
	maxPushAttempts = 3
	pushBackoffUnit = time.Second
	maxPushBackoff  = 5 * time.Second
)

// WeekPlanSource provides the planned quantities an apply job pushes.
type WeekPlanSource interface {
	List(ctx context.Context, locationID int64, weekStart string) ([]*weekplan.Row, error)
}

// CredentialSource loads the stored POS link.
type CredentialSource interface {
	Load(ctx context.Context) (pos.Credentials, error)
}

// StockPusher writes one item's stock level to the POS.
type StockPusher interface {
	UpdateStock(ctx context.Context, merchantID, itemID string, quantity int, idempotencyKey string) (*pos.StockUpdateResponse, error)
}

// ApplyWorker drains pending apply jobs: for each it pushes the week
// plan's quantities for the current weekday to the POS, item by item,
// retrying transient failures with a bounded backoff.
type ApplyWorker struct {
	repo      *Repository
	plans     WeekPlanSource
	creds     CredentialSource
	pusher    StockPusher
	locations LocationSource
	audit     AuditRecorder
	clock     clockwork.Clock
	logger    zerolog.Logger
}

func NewApplyWorker(repo *Repository, plans WeekPlanSource, creds CredentialSource, pusher StockPusher, locations LocationSource, audit AuditRecorder, clock clockwork.Clock, logger zerolog.Logger) *ApplyWorker {
	return &ApplyWorker{
		repo:      repo,
		plans:     plans,
		creds:     creds,
		pusher:    pusher,
		locations: locations,
		audit:     audit,
		clock:     clock,
		logger:    logger.With().Str("component", "apply-worker").Logger(),
	}
}

// Drain processes every PENDING or RUNNING apply job. One job failing
// does not stop the rest of the queue.
func (w *ApplyWorker) Drain(ctx context.Context) error {
	jobs, err := w.repo.ListActive(ctx, KindApply)
	if err != nil {
		return Retryable(err)
	}
	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info().Int("count", len(jobs)).Msg("draining apply queue")
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.process(ctx, job)
	}
	return nil
}

func (w *ApplyWorker) process(ctx context.Context, job *Job) {
	log := w.logger.With().Int64("jobID", job.ID).Logger()

	if job.DedupeKey == nil {
		w.failJob(ctx, log, job, 0, "", "apply job has no dedupe key")
		return
	}
	locationID, weekStart, err := ParseApplyDedupeKey(*job.DedupeKey)
	if err != nil {
		w.failJob(ctx, log, job, 0, "", err.Error())
		return
	}
	log = log.With().Int64("locationID", locationID).Str("weekStart", weekStart).Logger()

	if err := w.repo.MarkRunning(ctx, job.ID); err != nil {
		log.Warn().Err(err).Msg("apply job not runnable")
		return
	}

	creds, err := w.creds.Load(ctx)
	if err != nil {
		if errors.Is(err, pos.ErrNotLinked) {
			w.failJob(ctx, log, job, locationID, weekStart, "pos account not linked")
			return
		}
		w.failJob(ctx, log, job, locationID, weekStart, fmt.Sprintf("failed to load pos credentials: %v", err))
		return
	}

	day, err := w.triggerDay(ctx, locationID)
	if err != nil {
		w.failJob(ctx, log, job, locationID, weekStart, err.Error())
		return
	}

	rows, err := w.plans.List(ctx, locationID, weekStart)
	if err != nil {
		w.failJob(ctx, log, job, locationID, weekStart, fmt.Sprintf("failed to load week plan: %v", err))
		return
	}

	var pushed, skipped int
	var failures []string
	for _, row := range rows {
		if row.POSItemID == nil || *row.POSItemID == "" {
			skipped++
			continue
		}
		qty := row.QuantityFor(day)
		if qty <= 0 {
			skipped++
			continue
		}

		idemKey := fmt.Sprintf("apply-%d-%s-%s", locationID, weekStart, *row.POSItemID)
		if err := w.pushItem(ctx, creds.MerchantID, *row.POSItemID, qty, idemKey); err != nil {
			log.Error().Err(err).Str("posItemID", *row.POSItemID).Msg("stock push failed")
			failures = append(failures, fmt.Sprintf("%s: %v", *row.POSItemID, err))
			continue
		}
		pushed++
	}

	if len(failures) > 0 {
		msg := fmt.Sprintf("%d of %d pushes failed: %s", len(failures), pushed+len(failures), failures[0])
		w.failJob(ctx, log, job, locationID, weekStart, msg)
		return
	}

	if err := w.repo.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("failed to complete apply job")
		return
	}
	w.record(ctx, "apply_pushed", map[string]any{
		"locationId": locationID,
		"weekStart":  weekStart,
		"day":        string(day),
		"pushed":     pushed,
		"skipped":    skipped,
	})
	log.Info().Int("pushed", pushed).Int("skipped", skipped).Str("day", string(day)).Msg("apply job done")
}

// pushItem performs one stock write with bounded retries on transient
// POS errors. Backoff grows linearly with the attempt, capped.
func (w *ApplyWorker) pushItem(ctx context.Context, merchantID, posItemID string, qty int, idemKey string) error {
	var lastErr error
	for attempt := 1; attempt <= maxPushAttempts; attempt++ {
		_, err := w.pusher.UpdateStock(ctx, merchantID, posItemID, qty, idemKey)
		if err == nil {
			return nil
		}
		lastErr = err
		if !pos.IsRetryable(err) || attempt == maxPushAttempts {
			break
		}
		backoff := time.Duration(attempt) * pushBackoffUnit
		if backoff > maxPushBackoff {
			backoff = maxPushBackoff
		}
		w.clock.Sleep(backoff)
	}
	return lastErr
}

// triggerDay resolves the weekday key to push, in the location's zone.
func (w *ApplyWorker) triggerDay(ctx context.Context, locationID int64) (weekplan.Day, error) {
	loc, err := w.locations.GetLocation(ctx, locationID)
	if err != nil {
		return "", fmt.Errorf("failed to load location %d: %v", locationID, err)
	}
	zone, err := time.LoadLocation(loc.TZ)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %v", loc.TZ, err)
	}
	return weekplan.FromWeekday(w.clock.Now().In(zone).Weekday()), nil
}

func (w *ApplyWorker) failJob(ctx context.Context, log zerolog.Logger, job *Job, locationID int64, weekStart, msg string) {
	if err := w.repo.MarkErrored(ctx, job.ID, msg); err != nil {
		log.Error().Err(err).Msg("failed to mark apply job errored")
	}
	meta := map[string]any{"jobId": job.ID, "reason": msg}
	if locationID != 0 {
		meta["locationId"] = locationID
		meta["weekStart"] = weekStart
	}
	w.record(ctx, "apply_failed", meta)
	log.Error().Str("reason", msg).Msg("apply job failed")
}

func (w *ApplyWorker) record(ctx context.Context, action string, meta map[string]any) {
	if err := w.audit.Record(ctx, systemActor, action, meta); err != nil {
		w.logger.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}
