package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/catalog"
)

// LocationSource provides the locations the scheduler arms resets for.
type LocationSource interface {
	GetLocation(ctx context.Context, id int64) (*catalog.Location, error)
	ListLocations(ctx context.Context) ([]*catalog.Location, error)
}

// ResetScheduler arms the next daily reset per location. Arming is
// idempotent: re-arming an already finished day is a no-op, re-arming a
// live plan refreshes its scheduled time and replaces the queued unit.
type ResetScheduler struct {
	repo      *Repository
	planner   *Planner
	runtime   Runtime
	locations LocationSource
	worker    *ResetWorker
	logger    zerolog.Logger
}

func NewResetScheduler(repo *Repository, planner *Planner, runtime Runtime, locations LocationSource, worker *ResetWorker, logger zerolog.Logger) *ResetScheduler {
	return &ResetScheduler{
		repo:      repo,
		planner:   planner,
		runtime:   runtime,
		locations: locations,
		worker:    worker,
		logger:    logger.With().Str("component", "reset-scheduler").Logger(),
	}
}

// resetUnitName is the runtime uniqueness name for a location's reset.
func resetUnitName(locationID int64) string {
	return fmt.Sprintf("daily_reset_%d", locationID)
}

// Schedule plans and queues the next reset for one location. Returns a
// nil plan when the reset for the target date has already completed.
func (s *ResetScheduler) Schedule(ctx context.Context, locationID int64) (*Plan, error) {
	loc, err := s.locations.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	zone, err := time.LoadLocation(loc.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q for location %d: %w", loc.TZ, loc.ID, err)
	}

	plan, err := s.planner.PlanNextRun(loc.OpenHour, loc.OpenMinute, zone)
	if err != nil {
		return nil, err
	}

	dedupeKey := DailyResetDedupeKey(loc.ID, plan.TargetDate)
	if existing, err := s.repo.GetByDedupeKey(ctx, dedupeKey); err != nil {
		return nil, err
	} else if existing != nil && existing.Status == StatusDone {
		s.logger.Debug().
			Int64("locationID", loc.ID).
			Str("targetDate", plan.TargetDate).
			Msg("reset already done for target date")
		return nil, nil
	}

	job, err := s.repo.EnsurePending(ctx, KindDailyReset, dedupeKey, plan.ScheduledAt.Unix())
	if err != nil {
		return nil, err
	}

	payload := ResetPayload{
		JobID:      job.ID,
		LocationID: loc.ID,
		TargetDate: plan.TargetDate,
	}
	err = s.runtime.SubmitOnce(resetUnitName(loc.ID), plan.Delay, func(ctx context.Context) error {
		return s.worker.Run(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("locationID", loc.ID).
		Int64("jobID", job.ID).
		Str("targetDate", plan.TargetDate).
		Time("scheduledAt", plan.ScheduledAt).
		Msg("daily reset armed")
	return plan, nil
}

// ScheduleAll arms every location, typically at boot. Failures for one
// location do not block the others.
func (s *ResetScheduler) ScheduleAll(ctx context.Context) error {
	locs, err := s.locations.ListLocations(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, loc := range locs {
		if _, err := s.Schedule(ctx, loc.ID); err != nil {
			s.logger.Error().Err(err).Int64("locationID", loc.ID).Msg("failed to arm daily reset")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// applyQueueUnit is the single runtime name for the apply drain loop, so
// concurrent enqueues coalesce into one drain.
const applyQueueUnit = "apply_queue"

// ApplyQueue records stock pushes as durable jobs and wakes the drain
// worker. The KEEP submission keeps one drain queued at a time.
type ApplyQueue struct {
	repo    *Repository
	runtime Runtime
	worker  *ApplyWorker
	clock   clockwork.Clock
	logger  zerolog.Logger
}

func NewApplyQueue(repo *Repository, runtime Runtime, worker *ApplyWorker, clock clockwork.Clock, logger zerolog.Logger) *ApplyQueue {
	return &ApplyQueue{
		repo:    repo,
		runtime: runtime,
		worker:  worker,
		clock:   clock,
		logger:  logger.With().Str("component", "apply-queue").Logger(),
	}
}

// Enqueue records an apply job for the location and week, deduplicated
// on (location, weekStart), and schedules a drain.
func (q *ApplyQueue) Enqueue(ctx context.Context, locationID int64, weekStart string) (*Job, error) {
	if _, err := time.Parse("2006-01-02", weekStart); err != nil {
		return nil, fmt.Errorf("invalid week start %q: %w", weekStart, err)
	}

	dedupeKey := ApplyDedupeKey(locationID, weekStart)
	if existing, err := q.repo.GetByDedupeKey(ctx, dedupeKey); err != nil {
		return nil, err
	} else if existing != nil && existing.Status == StatusDone {
		q.logger.Debug().Str("dedupeKey", dedupeKey).Msg("apply already done for week")
		return existing, nil
	}

	job, err := q.repo.EnsurePending(ctx, KindApply, dedupeKey, q.clock.Now().Unix())
	if err != nil {
		return nil, err
	}

	if err := q.Kick(); err != nil {
		return nil, err
	}

	q.logger.Info().
		Int64("locationID", locationID).
		Str("weekStart", weekStart).
		Int64("jobID", job.ID).
		Msg("apply enqueued")
	return job, nil
}

// Kick schedules a drain of all pending apply jobs if one is not
// already queued. Used at boot to resume interrupted pushes.
func (q *ApplyQueue) Kick() error {
	return q.runtime.SubmitOnceKeep(applyQueueUnit, 0, func(ctx context.Context) error {
		return q.worker.Drain(ctx)
	})
}
