package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pitstock/pitstock/internal/counter"
	"github.com/pitstock/pitstock/internal/template"
)

// ResetPayload is what a queued daily reset carries.
type ResetPayload struct {
	JobID      int64  `json:"jobId"`
	LocationID int64  `json:"locationId"`
	TargetDate string `json:"targetDate"`
}

// TemplateSource resolves the template a reset applies.
type TemplateSource interface {
	DefaultForLocation(ctx context.Context, locationID int64) (*template.Template, error)
}

// CounterApplier seeds counters from a template.
type CounterApplier interface {
	ApplyTemplateForDate(ctx context.Context, templateID, locationID int64, date string) (*counter.ApplyResult, error)
}

// AuditRecorder records user-visible job outcomes.
type AuditRecorder interface {
	Record(ctx context.Context, actor, action string, meta map[string]any) error
}

const systemActor = "system"

// ResetWorker executes one daily reset: it resolves the location's
// default template and seeds that day's counters from it.
type ResetWorker struct {
	repo      *Repository
	templates TemplateSource
	counters  CounterApplier
	audit     AuditRecorder
	logger    zerolog.Logger
}

func NewResetWorker(repo *Repository, templates TemplateSource, counters CounterApplier, audit AuditRecorder, logger zerolog.Logger) *ResetWorker {
	return &ResetWorker{
		repo:      repo,
		templates: templates,
		counters:  counters,
		audit:     audit,
		logger:    logger.With().Str("component", "reset-worker").Logger(),
	}
}

// Run performs the reset for one payload. A retryable return means the
// runtime should run it again; any other error is permanent.
func (w *ResetWorker) Run(ctx context.Context, p ResetPayload) error {
	log := w.logger.With().
		Int64("jobID", p.JobID).
		Int64("locationID", p.LocationID).
		Str("targetDate", p.TargetDate).
		Logger()

	if p.JobID == 0 || p.LocationID == 0 || p.TargetDate == "" {
		log.Error().Msg("reset payload incomplete")
		return fmt.Errorf("incomplete reset payload: %+v", p)
	}

	job, err := w.repo.Get(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn().Msg("reset job row missing, nothing to do")
			return nil
		}
		return Retryable(err)
	}
	if job.Status == StatusDone {
		log.Debug().Msg("reset already done")
		return nil
	}

	if err := w.repo.MarkRunning(ctx, p.JobID); err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			log.Warn().Str("status", string(job.Status)).Msg("reset not runnable in current status")
			return nil
		}
		return Retryable(err)
	}

	tmpl, err := w.templates.DefaultForLocation(ctx, p.LocationID)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			return w.fail(ctx, log, p, "no template configured for location")
		}
		return w.retry(ctx, log, p, fmt.Errorf("failed to resolve template: %w", err))
	}

	result, err := w.counters.ApplyTemplateForDate(ctx, tmpl.ID, p.LocationID, p.TargetDate)
	if err != nil {
		return w.retry(ctx, log, p, fmt.Errorf("failed to apply template: %w", err))
	}

	switch result.Outcome {
	case counter.OutcomeApplied:
		if err := w.repo.MarkCompleted(ctx, p.JobID); err != nil {
			return Retryable(err)
		}
		w.record(ctx, "daily_reset_applied", map[string]any{
			"locationId": p.LocationID,
			"date":       p.TargetDate,
			"templateId": result.TemplateID,
			"template":   result.TemplateName,
			"items":      result.ItemCount,
		})
		log.Info().Int64("templateID", result.TemplateID).Int("items", result.ItemCount).Msg("daily reset applied")
		return nil

	case counter.OutcomeAlreadyApplied:
		if err := w.repo.MarkCompleted(ctx, p.JobID); err != nil {
			return Retryable(err)
		}
		log.Info().Msg("daily reset already applied, no writes")
		return nil

	case counter.OutcomeTemplateNotFound:
		return w.fail(ctx, log, p, "template vanished before apply")

	case counter.OutcomeEmptyTemplate:
		// The template may be mid-edit; leave the job errored but let
		// the runtime try again in case lines appear.
		msg := "template has no items"
		if err := w.repo.MarkErrored(ctx, p.JobID, msg); err != nil {
			return Retryable(err)
		}
		w.record(ctx, "daily_reset_failed", map[string]any{
			"locationId": p.LocationID,
			"date":       p.TargetDate,
			"reason":     msg,
		})
		return Retryable(errors.New(msg))

	default:
		return w.fail(ctx, log, p, fmt.Sprintf("unknown apply outcome %q", result.Outcome))
	}
}

// fail marks the job errored permanently and audits the failure.
func (w *ResetWorker) fail(ctx context.Context, log zerolog.Logger, p ResetPayload, msg string) error {
	if err := w.repo.MarkErrored(ctx, p.JobID, msg); err != nil {
		return Retryable(err)
	}
	w.record(ctx, "daily_reset_failed", map[string]any{
		"locationId": p.LocationID,
		"date":       p.TargetDate,
		"reason":     msg,
	})
	log.Error().Str("reason", msg).Msg("daily reset failed")
	return errors.New(msg)
}

// retry leaves the row RUNNING and asks the runtime to run it again;
// if retries exhaust, the stale-RUNNING reaper re-arms it to PENDING.
func (w *ResetWorker) retry(_ context.Context, log zerolog.Logger, _ ResetPayload, cause error) error {
	log.Warn().Err(cause).Msg("daily reset hit transient failure")
	return Retryable(cause)
}

func (w *ResetWorker) record(ctx context.Context, action string, meta map[string]any) {
	if err := w.audit.Record(ctx, systemActor, action, meta); err != nil {
		w.logger.Warn().Err(err).Str("action", action).Msg("failed to write audit entry")
	}
}
