// Package seed loads an optional YAML bootstrap file describing locations,
// items and start-quantity templates. The file is applied once, against an
// empty database, so a fresh install can come up with a working catalog
// without touching the API.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pitstock/pitstock/internal/catalog"
	"github.com/pitstock/pitstock/internal/template"
)

// File is the root of a seed document.
type File struct {
	Locations []Location `yaml:"locations"`
}

// Location declares one location with its items and templates.
type Location struct {
	Name       string     `yaml:"name"`
	TZ         string     `yaml:"tz"`
	OpenHour   int        `yaml:"openHour"`
	OpenMinute int        `yaml:"openMinute"`
	Items      []Item     `yaml:"items"`
	Templates  []Template `yaml:"templates"`
}

// Item declares one catalog item.
type Item struct {
	Name     string `yaml:"name"`
	SKU      string `yaml:"sku"`
	UnitType string `yaml:"unitType"`
}

// Template declares one template; its lines reference items by name.
type Template struct {
	Name        string `yaml:"name"`
	HolidayCode string `yaml:"holidayCode"`
	Items       []Line `yaml:"items"`
}

// Line is one template line.
type Line struct {
	Item     string `yaml:"item"`
	StartQty int    `yaml:"startQty"`
}

// Loader applies a seed file through the catalog and template services.
type Loader struct {
	catalog   *catalog.Service
	templates *template.Service
	logger    zerolog.Logger
}

func NewLoader(catalogSvc *catalog.Service, templateSvc *template.Service, logger zerolog.Logger) *Loader {
	return &Loader{
		catalog:   catalogSvc,
		templates: templateSvc,
		logger:    logger.With().Str("component", "seed").Logger(),
	}
}

// Apply reads the seed file at path and creates its locations, items and
// templates. A no-op when path is empty, the file does not exist, or any
// location already exists.
func (l *Loader) Apply(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	existing, err := l.catalog.ListLocations(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		l.logger.Debug().Str("path", path).Msg("database already populated, skipping seed")
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug().Str("path", path).Msg("seed file not found, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	for _, sl := range f.Locations {
		if err := l.applyLocation(ctx, sl); err != nil {
			return err
		}
	}

	l.logger.Info().
		Str("path", path).
		Int("locations", len(f.Locations)).
		Msg("seed file applied")
	return nil
}

func (l *Loader) applyLocation(ctx context.Context, sl Location) error {
	loc, err := l.catalog.CreateLocation(ctx, catalog.Location{
		Name:       sl.Name,
		TZ:         sl.TZ,
		OpenHour:   sl.OpenHour,
		OpenMinute: sl.OpenMinute,
	})
	if err != nil {
		return fmt.Errorf("seed location %q: %w", sl.Name, err)
	}

	itemIDs := make(map[string]int64, len(sl.Items))
	for _, si := range sl.Items {
		item := catalog.Item{Name: si.Name, UnitType: si.UnitType, LocationID: loc.ID}
		if si.SKU != "" {
			sku := si.SKU
			item.SKU = &sku
		}
		created, err := l.catalog.CreateItem(ctx, item)
		if err != nil {
			return fmt.Errorf("seed item %q: %w", si.Name, err)
		}
		itemIDs[si.Name] = created.ID
	}

	for _, st := range sl.Templates {
		var holiday *string
		if st.HolidayCode != "" {
			code := st.HolidayCode
			holiday = &code
		}
		tplID, err := l.templates.Create(ctx, loc.ID, st.Name, holiday)
		if err != nil {
			return fmt.Errorf("seed template %q: %w", st.Name, err)
		}
		for _, line := range st.Items {
			itemID, ok := itemIDs[line.Item]
			if !ok {
				return fmt.Errorf("seed template %q references unknown item %q", st.Name, line.Item)
			}
			if err := l.templates.SetItemQuantity(ctx, tplID, itemID, line.StartQty); err != nil {
				return fmt.Errorf("seed template %q line %q: %w", st.Name, line.Item, err)
			}
		}
	}
	return nil
}
