// Package radar defines the tracked entity a confirmed proposal turns
// into, and the adapter that persists one through the radar service.
package radar

import "time"

// Cadence values a radar can be checked on.
const (
	CadenceHourly  = "hourly"
	CadenceDaily   = "daily"
	CadenceWeekly  = "weekly"
	CadenceMonthly = "monthly"
)

// ValidCadence reports whether v is a known cadence value.
func ValidCadence(v string) bool {
	switch v {
	case CadenceHourly, CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// CadenceInterval returns the check interval for a cadence. Unknown
// cadences fall back to daily.
func CadenceInterval(v string) time.Duration {
	switch v {
	case CadenceHourly:
		return time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Radar is a tracked topic with a monitoring cadence. Created once by
// the flow; afterwards owned by the storage side.
type Radar struct {
	ID                  string     `json:"id"`
	Topic               string     `json:"topic"`
	Description         string     `json:"description,omitempty"`
	Cadence             string     `json:"cadence"`
	ScheduleDescription string     `json:"schedule_description,omitempty"`
	Intent              string     `json:"intent,omitempty"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	NextCheckAt         time.Time  `json:"next_check_at"`
	LastCheckedAt       *time.Time `json:"last_checked_at,omitempty"`
}

// Statuses a radar moves through after creation.
const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// NewRadar is the finalized draft sent to the creation endpoint.
type NewRadar struct {
	Topic               string `json:"topic"`
	Description         string `json:"description,omitempty"`
	Cadence             string `json:"cadence"`
	ScheduleDescription string `json:"schedule_description,omitempty"`
	Intent              string `json:"intent,omitempty"`
}
