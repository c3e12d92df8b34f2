package jobs

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const dateLayout = "2006-01-02"

// Plan is a computed daily reset schedule.
type Plan struct {
	ScheduledAt time.Time     `json:"scheduledAt"`
	Delay       time.Duration `json:"delay"`
	TargetDate  string        `json:"targetDate"`
}

// Planner computes the next reset run for a location's opening time.
type Planner struct {
	clock clockwork.Clock
}

// NewPlanner creates a planner on the given clock.
func NewPlanner(clock clockwork.Clock) *Planner {
	return &Planner{clock: clock}
}

// PlanNextRun computes the next run at openHour:openMinute in the given
// zone: today if that moment is still ahead, otherwise tomorrow. The delay
// never goes negative, even under clock skew.
func (p *Planner) PlanNextRun(openHour, openMinute int, loc *time.Location) (*Plan, error) {
	if openHour < 0 || openHour > 23 {
		return nil, fmt.Errorf("openHour must be 0-23, got %d", openHour)
	}
	if openMinute < 0 || openMinute > 59 {
		return nil, fmt.Errorf("openMinute must be 0-59, got %d", openMinute)
	}

	now := p.clock.Now()
	nowZoned := now.In(loc)

	target := time.Date(nowZoned.Year(), nowZoned.Month(), nowZoned.Day(),
		openHour, openMinute, 0, 0, loc)
	if !nowZoned.Before(target) {
		target = target.AddDate(0, 0, 1)
	}

	delay := target.Sub(now)
	if delay < 0 {
		delay = 0
	}

	return &Plan{
		ScheduledAt: target,
		Delay:       delay,
		TargetDate:  target.Format(dateLayout),
	}, nil
}
