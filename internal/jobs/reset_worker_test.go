package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pitstock/pitstock/internal/counter"
	"github.com/pitstock/pitstock/internal/template"
	"github.com/pitstock/pitstock/internal/testutil"
)

type fakeTemplateSource struct {
	tmpl *template.Template
	err  error
}

func (f *fakeTemplateSource) DefaultForLocation(_ context.Context, _ int64) (*template.Template, error) {
	return f.tmpl, f.err
}

type fakeCounterApplier struct {
	result *counter.ApplyResult
	err    error
	calls  int
}

func (f *fakeCounterApplier) ApplyTemplateForDate(_ context.Context, _, _ int64, _ string) (*counter.ApplyResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, _, action string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAudit) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func newResetFixture(t *testing.T, templates TemplateSource, counters CounterApplier) (*ResetWorker, *Repository, *fakeAudit) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 8, 8, 0, 0, 0, time.UTC))
	repo := NewRepository(tdb.Conn, clock, testutil.NopLogger())
	audit := &fakeAudit{}
	worker := NewResetWorker(repo, templates, counters, audit, testutil.NopLogger())
	return worker, repo, audit
}

func pendingResetJob(t *testing.T, repo *Repository, locationID int64, date string) *Job {
	t.Helper()
	job, err := repo.EnsurePending(context.Background(), KindDailyReset, DailyResetDedupeKey(locationID, date), 0)
	if err != nil {
		t.Fatalf("EnsurePending failed: %v", err)
	}
	return job
}

func TestResetWorkerApplies(t *testing.T) {
	templates := &fakeTemplateSource{tmpl: &template.Template{ID: 4, Name: "Weekday", LocationID: 1}}
	counters := &fakeCounterApplier{result: &counter.ApplyResult{
		Outcome:      counter.OutcomeApplied,
		TemplateID:   4,
		TemplateName: "Weekday",
		AppliedDate:  "2025-10-08",
		ItemCount:    12,
	}}
	worker, repo, audit := newResetFixture(t, templates, counters)
	job := pendingResetJob(t, repo, 1, "2025-10-08")

	err := worker.Run(context.Background(), ResetPayload{JobID: job.ID, LocationID: 1, TargetDate: "2025-10-08"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := repo.Get(context.Background(), job.ID)
	if got.Status != StatusDone {
		t.Errorf("Status = %s, want DONE", got.Status)
	}
	actions := audit.recorded()
	if len(actions) != 1 || actions[0] != "daily_reset_applied" {
		t.Errorf("audit actions = %v, want [daily_reset_applied]", actions)
	}
}

func TestResetWorkerAlreadyApplied(t *testing.T) {
	templates := &fakeTemplateSource{tmpl: &template.Template{ID: 4, Name: "Weekday"}}
	counters := &fakeCounterApplier{result: &counter.ApplyResult{Outcome: counter.OutcomeAlreadyApplied}}
	worker, repo, audit := newResetFixture(t, templates, counters)
	job := pendingResetJob(t, repo, 1, "2025-10-08")

	if err := worker.Run(context.Background(), ResetPayload{JobID: job.ID, LocationID: 1, TargetDate: "2025-10-08"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := repo.Get(context.Background(), job.ID)
	if got.Status != StatusDone {
		t.Errorf("Status = %s, want DONE", got.Status)
	}
	// No-op runs are not audited.
	if actions := audit.recorded(); len(actions) != 0 {
		t.Errorf("audit actions = %v, want none", actions)
	}
}

func TestResetWorkerDoneJobIsNoOp(t *testing.T) {
	templates := &fakeTemplateSource{tmpl: &template.Template{ID: 4}}
	counters := &fakeCounterApplier{result: &counter.ApplyResult{Outcome: counter.OutcomeApplied}}
	worker, repo, _ := newResetFixture(t, templates, counters)
	job := pendingResetJob(t, repo, 1, "2025-10-08")

	ctx := context.Background()
	if err := repo.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := repo.MarkCompleted(ctx, job.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	if err := worker.Run(ctx, ResetPayload{JobID: job.ID, LocationID: 1, TargetDate: "2025-10-08"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if counters.calls != 0 {
		t.Errorf("applier calls = %d, want 0", counters.calls)
	}
}

func TestResetWorkerNoTemplate(t *testing.T) {
	templates := &fakeTemplateSource{err: template.ErrNotFound}
	counters := &fakeCounterApplier{}
	worker, repo, audit := newResetFixture(t, templates, counters)
	job := pendingResetJob(t, repo, 1, "2025-10-08")

	err := worker.Run(context.Background(), ResetPayload{JobID: job.ID, LocationID: 1, TargetDate: "2025-10-08"})
	if err == nil {
		t.Fatal("Expected error")
	}
	if IsRetryableFailure(err) {
		t.Error("Missing template must be a permanent failure")
	}

	got, _ := repo.Get(context.Background(), job.ID)
	if got.Status != StatusError {
		t.Errorf("Status = %s, want ERROR", got.Status)
	}
	if got.LastError == nil || *got.LastError != "no template configured for location" {
		t.Errorf("LastError = %v, want no-template message", got.LastError)
	}
	actions := audit.recorded()
	if len(actions) != 1 || actions[0] != "daily_reset_failed" {
		t.Errorf("audit actions = %v, want [daily_reset_failed]", actions)
	}
}

func TestResetWorkerEmptyTemplateRetries(t *testing.T) {
	templates := &fakeTemplateSource{tmpl: &template.Template{ID: 4, Name: "Weekday"}}
	counters := &fakeCounterApplier{result: &counter.ApplyResult{Outcome: counter.OutcomeEmptyTemplate}}
	worker, repo, _ := newResetFixture(t, templates, counters)
	job := pendingResetJob(t, repo, 1, "2025-10-08")

	err := worker.Run(context.Background(), ResetPayload{JobID: job.ID, LocationID: 1, TargetDate: "2025-10-08"})
	if !IsRetryableFailure(err) {
		t.Fatalf("got %v, want retryable failure", err)
	}

	got, _ := repo.Get(context.Background(), job.ID)
	if got.Status != StatusError {
		t.Errorf("Status = %s, want ERROR", got.Status)
	}
}

func TestResetWorkerIncompletePayload(t *testing.T) {
	worker, _, _ := newResetFixture(t, &fakeTemplateSource{}, &fakeCounterApplier{})

	err := worker.Run(context.Background(), ResetPayload{})
	if err == nil {
		t.Fatal("Expected error for empty payload")
	}
	if IsRetryableFailure(err) {
		t.Error("Bad payload must not be retried")
	}
}

func TestResetWorkerMissingJobRow(t *testing.T) {
	worker, _, _ := newResetFixture(t, &fakeTemplateSource{}, &fakeCounterApplier{})

	err := worker.Run(context.Background(), ResetPayload{JobID: 999, LocationID: 1, TargetDate: "2025-10-08"})
	if err != nil {
		t.Errorf("got %v, want nil for vanished job row", err)
	}
}
