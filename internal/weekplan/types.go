package weekplan

import "time"

// Day keys a planned quantity within a week. The zero-ish "default" day
// holds the fallback quantity used when a weekday has no override.
type Day string

const (
	DayDefault Day = "default"
	DayMon     Day = "mon"
	DayTue     Day = "tue"
	DayWed     Day = "wed"
	DayThu     Day = "thu"
	DayFri     Day = "fri"
	DaySat     Day = "sat"
	DaySun     Day = "sun"
)

// Weekdays lists the seven weekday keys in week order (Monday first).
var Weekdays = []Day{DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun}

// Valid reports whether d is a known day key.
func (d Day) Valid() bool {
	switch d {
	case DayDefault, DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun:
		return true
	}
	return false
}

// FromWeekday maps a time.Weekday to its plan key.
func FromWeekday(wd time.Weekday) Day {
	switch wd {
	case time.Monday:
		return DayMon
	case time.Tuesday:
		return DayTue
	case time.Wednesday:
		return DayWed
	case time.Thursday:
		return DayThu
	case time.Friday:
		return DayFri
	case time.Saturday:
		return DaySat
	default:
		return DaySun
	}
}

// Row is one item's plan for a week: a default plus per-weekday overrides.
type Row struct {
	WeekStart  string      `json:"weekStart"`
	ItemID     int64       `json:"itemId"`
	ItemName   string      `json:"itemName,omitempty"`
	POSItemID  *string     `json:"posItemId,omitempty"`
	LocationID int64       `json:"locationId"`
	Default    int         `json:"default"`
	Days       map[Day]int `json:"days"`
}

// QuantityFor resolves the quantity to push for a weekday: the day's
// override when positive, else the default.
func (r *Row) QuantityFor(day Day) int {
	if qty, ok := r.Days[day]; ok && qty > 0 {
		return qty
	}
	return r.Default
}
