package counter

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pitstock/pitstock/internal/testutil"
)

type counterFixture struct {
	svc   *Service
	conn  *sql.DB
	clock *clockwork.FakeClock
}

func newCounterFixture(t *testing.T) (*counterFixture, func()) {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 10, 8, 8, 0, 0, 0, time.UTC))

	return &counterFixture{
		svc:   NewService(tdb.Conn, clock, tdb.Logger),
		conn:  tdb.Conn,
		clock: clock,
	}, tdb.Close
}

func (f *counterFixture) seedLocation(t *testing.T, name string) int64 {
	t.Helper()
	res, err := f.conn.Exec(`INSERT INTO locations (name, tz) VALUES (?, 'UTC')`, name)
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (f *counterFixture) seedItem(t *testing.T, locationID int64, name string) int64 {
	t.Helper()
	res, err := f.conn.Exec(`INSERT INTO items (name, location_id) VALUES (?, ?)`, name, locationID)
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (f *counterFixture) seedTemplate(t *testing.T, locationID int64, name string, lines map[int64]int) int64 {
	t.Helper()
	res, err := f.conn.Exec(`INSERT INTO templates (name, location_id) VALUES (?, ?)`, name, locationID)
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	id, _ := res.LastInsertId()
	for itemID, qty := range lines {
		if _, err := f.conn.Exec(
			`INSERT INTO template_items (template_id, item_id, start_qty) VALUES (?, ?, ?)`,
			id, itemID, qty); err != nil {
			t.Fatalf("seed template line: %v", err)
		}
	}
	return id
}

func TestApplyTemplateCreatesCounters(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	loc := f.seedLocation(t, "Main Pit")
	brisket := f.seedItem(t, loc, "Brisket")
	ribs := f.seedItem(t, loc, "Ribs")
	tmpl := f.seedTemplate(t, loc, "Weekday", map[int64]int{brisket: 40, ribs: 25})

	result, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08")
	if err != nil {
		t.Fatalf("ApplyTemplateForDate() error = %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %v, want OutcomeApplied", result.Outcome)
	}
	if result.ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", result.ItemCount)
	}
	if result.TemplateName != "Weekday" {
		t.Errorf("TemplateName = %q, want Weekday", result.TemplateName)
	}

	counters, err := f.svc.ListForDate(ctx, loc, "2025-10-08")
	if err != nil {
		t.Fatalf("ListForDate() error = %v", err)
	}
	if len(counters) != 2 {
		t.Fatalf("got %d counters, want 2", len(counters))
	}
	for _, c := range counters {
		if c.SoldQuantity != 0 || c.ManualAdjustment != 0 || c.ClosedOn != nil {
			t.Errorf("fresh counter %d has non-zero progress: %+v", c.ItemID, c)
		}
	}
}

func TestApplyTemplateIdempotent(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	loc := f.seedLocation(t, "Main Pit")
	brisket := f.seedItem(t, loc, "Brisket")
	tmpl := f.seedTemplate(t, loc, "Weekday", map[int64]int{brisket: 40})

	if _, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08"); err != nil {
		t.Fatalf("first apply error = %v", err)
	}
	if err := f.svc.RecordSold(ctx, loc, brisket, "2025-10-08", 7); err != nil {
		t.Fatalf("RecordSold() error = %v", err)
	}

	result, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08")
	if err != nil {
		t.Fatalf("second apply error = %v", err)
	}
	if result.Outcome != OutcomeAlreadyApplied {
		t.Fatalf("Outcome = %v, want OutcomeAlreadyApplied", result.Outcome)
	}

	// The no-op re-apply must not touch sales.
	c, err := f.svc.Get(ctx, loc, brisket, "2025-10-08")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.SoldQuantity != 7 {
		t.Errorf("SoldQuantity = %d, want 7", c.SoldQuantity)
	}
}

func TestApplyTemplateMergePreservesProgress(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	loc := f.seedLocation(t, "Main Pit")
	brisket := f.seedItem(t, loc, "Brisket")
	ribs := f.seedItem(t, loc, "Ribs")
	tmpl := f.seedTemplate(t, loc, "Weekday", map[int64]int{brisket: 40})

	if _, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08"); err != nil {
		t.Fatalf("apply error = %v", err)
	}
	if err := f.svc.RecordSold(ctx, loc, brisket, "2025-10-08", 12); err != nil {
		t.Fatalf("RecordSold() error = %v", err)
	}
	if err := f.svc.Adjust(ctx, loc, brisket, "2025-10-08", -2); err != nil {
		t.Fatalf("Adjust() error = %v", err)
	}

	// Grow the template: brisket gets a new start qty, ribs join the day.
	if _, err := f.conn.Exec(
		`UPDATE template_items SET start_qty = 60 WHERE template_id = ? AND item_id = ?`, tmpl, brisket); err != nil {
		t.Fatalf("update template line: %v", err)
	}
	if _, err := f.conn.Exec(
		`INSERT INTO template_items (template_id, item_id, start_qty) VALUES (?, ?, 25)`, tmpl, ribs); err != nil {
		t.Fatalf("insert template line: %v", err)
	}

	result, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08")
	if err != nil {
		t.Fatalf("re-apply error = %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("Outcome = %v, want OutcomeApplied", result.Outcome)
	}

	c, err := f.svc.Get(ctx, loc, brisket, "2025-10-08")
	if err != nil {
		t.Fatalf("Get(brisket) error = %v", err)
	}
	if c.StartQuantity != 60 {
		t.Errorf("StartQuantity = %d, want 60", c.StartQuantity)
	}
	if c.SoldQuantity != 12 || c.ManualAdjustment != -2 {
		t.Errorf("progress not preserved: sold=%d adj=%d", c.SoldQuantity, c.ManualAdjustment)
	}

	if _, err := f.svc.Get(ctx, loc, ribs, "2025-10-08"); err != nil {
		t.Errorf("Get(ribs) error = %v, want new counter row", err)
	}
}

func TestApplyTemplateNotFound(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()

	result, err := f.svc.ApplyTemplateForDate(context.Background(), 99, 1, "2025-10-08")
	if err != nil {
		t.Fatalf("ApplyTemplateForDate() error = %v", err)
	}
	if result.Outcome != OutcomeTemplateNotFound {
		t.Errorf("Outcome = %v, want OutcomeTemplateNotFound", result.Outcome)
	}
}

func TestApplyEmptyTemplate(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()

	loc := f.seedLocation(t, "Main Pit")
	tmpl := f.seedTemplate(t, loc, "Empty", nil)

	result, err := f.svc.ApplyTemplateForDate(context.Background(), tmpl, loc, "2025-10-08")
	if err != nil {
		t.Fatalf("ApplyTemplateForDate() error = %v", err)
	}
	if result.Outcome != OutcomeEmptyTemplate {
		t.Errorf("Outcome = %v, want OutcomeEmptyTemplate", result.Outcome)
	}
}

func TestApplyTemplateRejectsBadDate(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()

	_, err := f.svc.ApplyTemplateForDate(context.Background(), 1, 1, "08/10/2025")
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
}

func TestBumpMissingCounter(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	if err := f.svc.RecordSold(ctx, 1, 1, "2025-10-08", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordSold() error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Adjust(ctx, 1, 1, "2025-10-08", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Adjust() error = %v, want ErrNotFound", err)
	}
}

func TestCloseDay(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	loc := f.seedLocation(t, "Main Pit")
	brisket := f.seedItem(t, loc, "Brisket")
	tmpl := f.seedTemplate(t, loc, "Weekday", map[int64]int{brisket: 40})
	if _, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, "2025-10-08"); err != nil {
		t.Fatalf("apply error = %v", err)
	}

	if err := f.svc.CloseDay(ctx, loc, "2025-10-08"); err != nil {
		t.Fatalf("CloseDay() error = %v", err)
	}

	c, err := f.svc.Get(ctx, loc, brisket, "2025-10-08")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.ClosedOn == nil {
		t.Fatal("ClosedOn = nil, want close timestamp")
	}
	if *c.ClosedOn != f.clock.Now().Unix() {
		t.Errorf("ClosedOn = %d, want %d", *c.ClosedOn, f.clock.Now().Unix())
	}

	// Closing twice must not move an existing close time.
	firstClose := *c.ClosedOn
	f.clock.Advance(time.Hour)
	if err := f.svc.CloseDay(ctx, loc, "2025-10-08"); err != nil {
		t.Fatalf("second CloseDay() error = %v", err)
	}
	c, _ = f.svc.Get(ctx, loc, brisket, "2025-10-08")
	if *c.ClosedOn != firstClose {
		t.Errorf("ClosedOn moved on re-close: %d, want %d", *c.ClosedOn, firstClose)
	}
}

func TestMostRecentDate(t *testing.T) {
	f, cleanup := newCounterFixture(t)
	defer cleanup()
	ctx := context.Background()

	loc := f.seedLocation(t, "Main Pit")
	brisket := f.seedItem(t, loc, "Brisket")
	tmpl := f.seedTemplate(t, loc, "Weekday", map[int64]int{brisket: 40})

	date, err := f.svc.MostRecentDate(ctx, loc)
	if err != nil {
		t.Fatalf("MostRecentDate() error = %v", err)
	}
	if date != "" {
		t.Errorf("MostRecentDate() on empty table = %q, want empty", date)
	}

	for _, d := range []string{"2025-10-06", "2025-10-08", "2025-10-07"} {
		if _, err := f.svc.ApplyTemplateForDate(ctx, tmpl, loc, d); err != nil {
			t.Fatalf("apply %s error = %v", d, err)
		}
	}

	date, err = f.svc.MostRecentDate(ctx, loc)
	if err != nil {
		t.Fatalf("MostRecentDate() error = %v", err)
	}
	if date != "2025-10-08" {
		t.Errorf("MostRecentDate() = %q, want 2025-10-08", date)
	}
}
