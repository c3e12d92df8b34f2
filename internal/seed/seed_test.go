package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pitstock/pitstock/internal/catalog"
	"github.com/pitstock/pitstock/internal/template"
	"github.com/pitstock/pitstock/internal/testutil"
)

const seedDoc = `
locations:
  - name: Downtown
    tz: America/Chicago
    openHour: 5
    items:
      - name: Brisket
        sku: BRK-01
        unitType: lb
      - name: Pulled Pork
        unitType: lb
      - name: House Sauce
    templates:
      - name: Weekday
        items:
          - item: Brisket
            startQty: 40
          - item: Pulled Pork
            startQty: 25
      - name: Thanksgiving
        holidayCode: TG
        items:
          - item: Brisket
            startQty: 80
`

type seedFixture struct {
	loader    *Loader
	catalog   *catalog.Service
	templates *template.Service
}

func newSeedFixture(t *testing.T) *seedFixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	// The loader never touches the POS, so the item source and
	// credential source stay nil.
	catalogSvc := catalog.NewService(tdb.Conn, nil, nil, testutil.NopLogger())
	templateSvc := template.NewService(tdb.Conn, testutil.NopLogger())
	return &seedFixture{
		loader:    NewLoader(catalogSvc, templateSvc, testutil.NopLogger()),
		catalog:   catalogSvc,
		templates: templateSvc,
	}
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing seed file failed: %v", err)
	}
	return path
}

func TestApplyCreatesCatalog(t *testing.T) {
	f := newSeedFixture(t)
	ctx := context.Background()

	if err := f.loader.Apply(ctx, writeSeedFile(t, seedDoc)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	locs, err := f.catalog.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations failed: %v", err)
	}
	if len(locs) != 1 {
		t.Fatalf("locations = %d, want 1", len(locs))
	}
	loc := locs[0]
	if loc.Name != "Downtown" || loc.TZ != "America/Chicago" {
		t.Errorf("location = %+v, want Downtown in America/Chicago", loc)
	}
	if loc.OpenHour != 5 || loc.OpenMinute != 0 {
		t.Errorf("open time = %02d:%02d, want 05:00", loc.OpenHour, loc.OpenMinute)
	}

	items, err := f.catalog.ListItems(ctx, loc.ID)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	byName := make(map[string]*catalog.Item)
	for _, it := range items {
		byName[it.Name] = it
	}
	if it := byName["Brisket"]; it == nil || it.SKU == nil || *it.SKU != "BRK-01" || it.UnitType != "lb" {
		t.Errorf("Brisket = %+v, want sku BRK-01 unit lb", it)
	}
	// No unitType in the file falls back to the catalog default.
	if it := byName["House Sauce"]; it == nil || it.SKU != nil || it.UnitType != "count" {
		t.Errorf("House Sauce = %+v, want no sku, unit count", it)
	}

	tpls, err := f.templates.List(ctx, loc.ID)
	if err != nil {
		t.Fatalf("List templates failed: %v", err)
	}
	if len(tpls) != 2 {
		t.Fatalf("templates = %d, want 2", len(tpls))
	}
	weekday := tpls[0]
	if weekday.Name != "Weekday" || weekday.HolidayCode != nil {
		t.Errorf("first template = %+v, want Weekday without holiday code", weekday)
	}
	if len(weekday.Items) != 2 {
		t.Fatalf("Weekday lines = %d, want 2", len(weekday.Items))
	}
	if weekday.Items[0].ItemName != "Brisket" || weekday.Items[0].StartQuantity != 40 {
		t.Errorf("first line = %+v, want Brisket 40", weekday.Items[0])
	}
	holiday := tpls[1]
	if holiday.HolidayCode == nil || *holiday.HolidayCode != "TG" {
		t.Errorf("holiday code = %v, want TG", holiday.HolidayCode)
	}
}

func TestApplySkipsPopulatedDatabase(t *testing.T) {
	f := newSeedFixture(t)
	ctx := context.Background()

	if _, err := f.catalog.CreateLocation(ctx, catalog.Location{Name: "Existing"}); err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}

	if err := f.loader.Apply(ctx, writeSeedFile(t, seedDoc)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	locs, err := f.catalog.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations failed: %v", err)
	}
	if len(locs) != 1 || locs[0].Name != "Existing" {
		t.Errorf("locations = %+v, want only Existing", locs)
	}
}

func TestApplyMissingFileIsNoop(t *testing.T) {
	f := newSeedFixture(t)
	ctx := context.Background()

	if err := f.loader.Apply(ctx, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("Apply with missing file failed: %v", err)
	}
	if err := f.loader.Apply(ctx, ""); err != nil {
		t.Errorf("Apply with empty path failed: %v", err)
	}
	locs, err := f.catalog.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations failed: %v", err)
	}
	if len(locs) != 0 {
		t.Errorf("locations = %d, want 0", len(locs))
	}
}

func TestApplyRejectsUnknownItemReference(t *testing.T) {
	f := newSeedFixture(t)

	doc := `
locations:
  - name: Downtown
    templates:
      - name: Weekday
        items:
          - item: Ghost
            startQty: 10
`
	err := f.loader.Apply(context.Background(), writeSeedFile(t, doc))
	if err == nil {
		t.Fatal("Expected error for unknown item reference")
	}
	if !strings.Contains(err.Error(), "Ghost") {
		t.Errorf("error = %v, want mention of the unknown item", err)
	}
}

func TestApplyRejectsMalformedFile(t *testing.T) {
	f := newSeedFixture(t)

	err := f.loader.Apply(context.Background(), writeSeedFile(t, "locations: [not: {valid"))
	if err == nil {
		t.Fatal("Expected error for malformed file")
	}
}
