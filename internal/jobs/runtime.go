package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// retryableError marks a worker failure the runtime should retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so the runtime resubmits the unit of work.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryableFailure reports whether err asks for a runtime retry.
func IsRetryableFailure(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Runtime executes named units of work. A name is the uniqueness domain:
// the runtime never runs two units with the same name concurrently.
type Runtime interface {
	// SubmitOnce queues a one-shot unit after delay, replacing any queued
	// unit with the same name.
	SubmitOnce(name string, delay time.Duration, task Task) error
	// SubmitOnceKeep queues a one-shot unit after delay unless a unit with
	// the same name is already queued.
	SubmitOnceKeep(name string, delay time.Duration, task Task) error
	// SubmitCron registers a recurring unit on a cron expression.
	SubmitCron(name, cronExpr string, task Task) error
}

const (
	// Bounds for runtime-level retries of retryable worker failures.
	maxRuntimeAttempts  = 5
	runtimeRetryBackoff = 30 * time.Second
	// A one-shot unit is never scheduled closer than this, keeping the
	// start time ahead of the scheduler's own clock.
	minStartLead = time.Second
)

// GocronRuntime runs units of work on a gocron scheduler.
type GocronRuntime struct {
	sched  gocron.Scheduler
	clock  clockwork.Clock
	logger zerolog.Logger

	mu    sync.Mutex
	named map[string]gocron.Job
}

// NewGocronRuntime creates the runtime on the given clock.
func NewGocronRuntime(clock clockwork.Clock, logger zerolog.Logger) (*GocronRuntime, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &GocronRuntime{
		sched:  sched,
		clock:  clock,
		logger: logger.With().Str("component", "runtime").Logger(),
		named:  make(map[string]gocron.Job),
	}, nil
}

// Start begins executing queued work.
func (r *GocronRuntime) Start() {
	r.logger.Info().Msg("starting job runtime")
	r.sched.Start()
}

// Stop shuts the runtime down gracefully.
func (r *GocronRuntime) Stop() error {
	r.logger.Info().Msg("stopping job runtime")
	return r.sched.Shutdown()
}

// SubmitOnce implements Runtime with replace semantics.
func (r *GocronRuntime) SubmitOnce(name string, delay time.Duration, task Task) error {
	return r.submitOnce(name, delay, task, true)
}

// SubmitOnceKeep implements Runtime with keep semantics.
func (r *GocronRuntime) SubmitOnceKeep(name string, delay time.Duration, task Task) error {
	return r.submitOnce(name, delay, task, false)
}

func (r *GocronRuntime) submitOnce(name string, delay time.Duration, task Task, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.named[name]; ok {
		if !replace {
			return nil
		}
		if err := r.sched.RemoveJob(existing.ID()); err != nil {
			r.logger.Warn().Err(err).Str("name", name).Msg("failed to remove queued unit")
		}
		delete(r.named, name)
	}

	return r.queue(name, delay, task, 1)
}

// queue schedules one execution attempt. Callers hold r.mu.
func (r *GocronRuntime) queue(name string, delay time.Duration, task Task, attempt int) error {
	if delay < minStartLead {
		delay = minStartLead
	}
	startAt := r.clock.Now().Add(delay)

	job, err := r.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(startAt)),
		gocron.NewTask(func() { r.execute(name, task, attempt) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to queue unit %q: %w", name, err)
	}

	r.named[name] = job
	r.logger.Debug().
		Str("name", name).
		Time("startAt", startAt).
		Int("attempt", attempt).
		Msg("unit queued")
	return nil
}

func (r *GocronRuntime) execute(name string, task Task, attempt int) {
	r.mu.Lock()
	delete(r.named, name)
	r.mu.Unlock()

	started := r.clock.Now()
	err := task(context.Background())
	elapsed := r.clock.Now().Sub(started)

	switch {
	case err == nil:
		r.logger.Info().Str("name", name).Dur("duration", elapsed).Msg("unit completed")
	case IsRetryableFailure(err) && attempt < maxRuntimeAttempts:
		backoff := time.Duration(attempt) * runtimeRetryBackoff
		r.logger.Warn().
			Err(err).
			Str("name", name).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("unit failed, retrying")

		r.mu.Lock()
		defer r.mu.Unlock()
		// A fresh submission under the same name wins over the retry.
		if _, ok := r.named[name]; ok {
			return
		}
		if qerr := r.queue(name, backoff, task, attempt+1); qerr != nil {
			r.logger.Error().Err(qerr).Str("name", name).Msg("failed to queue retry")
		}
	default:
		r.logger.Error().
			Err(err).
			Str("name", name).
			Int("attempt", attempt).
			Msg("unit failed permanently")
	}
}

// SubmitCron implements Runtime.
func (r *GocronRuntime) SubmitCron(name, cronExpr string, task Task) error {
	_, err := r.sched.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() { r.execute(name, task, maxRuntimeAttempts) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register cron unit %q: %w", name, err)
	}
	r.logger.Info().Str("name", name).Str("cron", cronExpr).Msg("cron unit registered")
	return nil
}
