package domain

import "errors"

// Collection selects one of the two per-check maintenance window collections.
// Params: scheduled/unscheduled constants.
// Returns: collection selector for tracker operations.
type Collection string

const (
	// CollectionScheduled holds pre-planned maintenance windows.
	CollectionScheduled Collection = "scheduled"
	// CollectionUnscheduled holds reactive/ack-driven maintenance windows.
	CollectionUnscheduled Collection = "unscheduled"
)

// Valid reports whether the collection selector is known.
// Params: none.
// Returns: true for scheduled/unscheduled.
func (c Collection) Valid() bool {
	return c == CollectionScheduled || c == CollectionUnscheduled
}

// MaintenanceWindow is one alert-suppression interval for a check.
// Params: identifier, half-open [start, end) unix-second bounds, and summary.
// Returns: window record mutated only by end/clear operations.
type MaintenanceWindow struct {
	ID      string `json:"id"`
	Start   int64  `json:"start_time"`
	End     int64  `json:"end_time"`
	Summary string `json:"summary"`
}

// Covers reports whether t falls inside the window.
// Params: unix-second instant.
// Returns: true when start <= t < end.
func (w MaintenanceWindow) Covers(t int64) bool {
	return w.Start <= t && t < w.End
}

// Duration returns the window length in seconds.
// Params: none.
// Returns: end minus start.
func (w MaintenanceWindow) Duration() int64 {
	return w.End - w.Start
}

// Validate checks window bounds at creation time.
// Params: none.
// Returns: validation error when end is not after start.
func (w MaintenanceWindow) Validate() error {
	if w.Start <= 0 {
		return NewValidationError("start_time", errors.New("start_time must be >0 unix seconds"))
	}
	if w.End <= w.Start {
		return NewValidationError("end_time", errors.New("end_time must be after start_time"))
	}
	return nil
}
