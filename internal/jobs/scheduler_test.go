package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pitstock/pitstock/internal/catalog"
	"github.com/pitstock/pitstock/internal/testutil"
)

type submission struct {
	Name    string
	Delay   time.Duration
	Task    Task
	Replace bool
}

// fakeRuntime records submissions instead of scheduling them.
type fakeRuntime struct {
	mu   sync.Mutex
	subs []submission
}

func (f *fakeRuntime) SubmitOnce(name string, delay time.Duration, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, submission{Name: name, Delay: delay, Task: task, Replace: true})
	return nil
}

func (f *fakeRuntime) SubmitOnceKeep(name string, delay time.Duration, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.Name == name {
			return nil
		}
	}
	f.subs = append(f.subs, submission{Name: name, Delay: delay, Task: task})
	return nil
}

func (f *fakeRuntime) SubmitCron(name, _ string, task Task) error {
	return f.SubmitOnceKeep(name, 0, task)
}

func (f *fakeRuntime) recorded() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.subs...)
}

func newSchedulerFixture(t *testing.T) (*ResetScheduler, *Repository, *fakeRuntime, *clockwork.FakeClock) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	// 08:00 UTC on 2025-10-08, before the 10:00 UTC opening of the
	// America/Chicago location below.
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 8, 8, 0, 0, 0, time.UTC))
	repo := NewRepository(tdb.Conn, clock, testutil.NopLogger())
	runtime := &fakeRuntime{}
	locations := &fakeLocations{locs: map[int64]*catalog.Location{
		7: {ID: 7, Name: "Downtown", TZ: "America/Chicago", OpenHour: 5, OpenMinute: 0},
	}}
	worker := NewResetWorker(repo, &fakeTemplateSource{}, &fakeCounterApplier{}, &fakeAudit{}, testutil.NopLogger())
	sched := NewResetScheduler(repo, NewPlanner(clock), runtime, locations, worker, testutil.NopLogger())
	return sched, repo, runtime, clock
}

func TestScheduleArmsReset(t *testing.T) {
	sched, repo, runtime, _ := newSchedulerFixture(t)
	ctx := context.Background()

	plan, err := sched.Schedule(ctx, 7)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if plan.TargetDate != "2025-10-08" {
		t.Errorf("TargetDate = %s, want 2025-10-08", plan.TargetDate)
	}
	if plan.Delay != 2*time.Hour {
		t.Errorf("Delay = %v, want 2h", plan.Delay)
	}

	job, err := repo.GetByDedupeKey(ctx, DailyResetDedupeKey(7, "2025-10-08"))
	if err != nil {
		t.Fatalf("GetByDedupeKey failed: %v", err)
	}
	if job == nil || job.Status != StatusPending {
		t.Fatalf("job = %+v, want PENDING row", job)
	}
	// scheduled_for is epoch seconds, same unit as updated_at.
	if job.ScheduledFor != plan.ScheduledAt.Unix() {
		t.Errorf("ScheduledFor = %d, want %d", job.ScheduledFor, plan.ScheduledAt.Unix())
	}

	subs := runtime.recorded()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].Name != "daily_reset_7" {
		t.Errorf("unit name = %s, want daily_reset_7", subs[0].Name)
	}
	if subs[0].Delay != 2*time.Hour {
		t.Errorf("unit delay = %v, want 2h", subs[0].Delay)
	}
}

func TestScheduleTwiceReplacesSameDay(t *testing.T) {
	sched, repo, runtime, _ := newSchedulerFixture(t)
	ctx := context.Background()

	if _, err := sched.Schedule(ctx, 7); err != nil {
		t.Fatalf("first Schedule failed: %v", err)
	}
	if _, err := sched.Schedule(ctx, 7); err != nil {
		t.Fatalf("second Schedule failed: %v", err)
	}

	jobs, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("job rows = %d, want 1 (deduplicated)", len(jobs))
	}
	// Both submissions carry the same unit name, so the runtime replaces.
	subs := runtime.recorded()
	for _, s := range subs {
		if s.Name != "daily_reset_7" {
			t.Errorf("unit name = %s, want daily_reset_7", s.Name)
		}
	}
}

func TestScheduleSkipsFinishedDay(t *testing.T) {
	sched, repo, runtime, _ := newSchedulerFixture(t)
	ctx := context.Background()

	plan, err := sched.Schedule(ctx, 7)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	job, _ := repo.GetByDedupeKey(ctx, DailyResetDedupeKey(7, plan.TargetDate))
	if err := repo.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := repo.MarkCompleted(ctx, job.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	before := len(runtime.recorded())
	again, err := sched.Schedule(ctx, 7)
	if err != nil {
		t.Fatalf("re-Schedule failed: %v", err)
	}
	if again != nil {
		t.Errorf("plan = %+v, want nil for finished day", again)
	}
	if after := len(runtime.recorded()); after != before {
		t.Errorf("submissions = %d, want unchanged %d for finished day", after, before)
	}
}

func TestScheduleUnknownLocation(t *testing.T) {
	sched, _, _, _ := newSchedulerFixture(t)

	if _, err := sched.Schedule(context.Background(), 99); err == nil {
		t.Error("Expected error for unknown location")
	}
}

func TestApplyQueueEnqueue(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 8, 8, 0, 0, 0, time.UTC))
	repo := NewRepository(tdb.Conn, clock, testutil.NopLogger())
	runtime := &fakeRuntime{}
	queue := NewApplyQueue(repo, runtime, nil, clock, testutil.NopLogger())
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, 7, "2025-10-06")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("Status = %s, want PENDING", job.Status)
	}
	if job.DedupeKey == nil || *job.DedupeKey != "apply_7_2025-10-06" {
		t.Errorf("DedupeKey = %v, want apply_7_2025-10-06", job.DedupeKey)
	}
	if job.ScheduledFor != clock.Now().Unix() {
		t.Errorf("ScheduledFor = %d, want %d", job.ScheduledFor, clock.Now().Unix())
	}

	// Second enqueue for the same week reuses the row and the queued drain.
	again, err := queue.Enqueue(ctx, 7, "2025-10-06")
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if again.ID != job.ID {
		t.Errorf("Expected same job row, got %d and %d", job.ID, again.ID)
	}
	if subs := runtime.recorded(); len(subs) != 1 {
		t.Errorf("submissions = %d, want 1 coalesced drain", len(subs))
	}

	if _, err := queue.Enqueue(ctx, 7, "not-a-date"); err == nil {
		t.Error("Expected error for invalid week start")
	}
}
