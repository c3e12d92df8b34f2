package jobs

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a job pipeline.
type Kind string

const (
	KindDailyReset Kind = "daily_reset"
	KindApply      Kind = "apply"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusDone    Status = "DONE"
	StatusError   Status = "ERROR"
)

// Job is one persisted unit of recurring work, deduplicated by key.
type Job struct {
	ID           int64   `json:"id"`
	Kind         Kind    `json:"kind"`
	ScheduledFor int64   `json:"scheduledFor"`
	Status       Status  `json:"status"`
	LastError    *string `json:"lastError,omitempty"`
	DedupeKey    *string `json:"dedupeKey,omitempty"`
	UpdatedAt    int64   `json:"updatedAt"`
}

// DailyResetDedupeKey builds the key for one location's reset on one date,
// so only a single reset job per (location, date) ever exists.
func DailyResetDedupeKey(locationID int64, targetDate string) string {
	return fmt.Sprintf("%s_%d_%s", KindDailyReset, locationID, targetDate)
}

// ApplyDedupeKey builds the key for one location's weekly stock push.
func ApplyDedupeKey(locationID int64, weekStart string) string {
	return fmt.Sprintf("%s_%d_%s", KindApply, locationID, weekStart)
}

// ParseApplyDedupeKey recovers (location, weekStart) from an apply key.
func ParseApplyDedupeKey(key string) (locationID int64, weekStart string, err error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) < 3 || parts[0] != string(KindApply) {
		return 0, "", fmt.Errorf("bad dedupe key format: %q", key)
	}
	locationID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid location id in key %q", key)
	}
	return locationID, parts[2], nil
}
