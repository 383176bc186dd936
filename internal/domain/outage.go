package domain

// Outage is one maximal contiguous non-healthy interval of a check.
// Params: unix-second bounds, entry condition/summary at the interval start.
// Returns: derived report unit; never persisted.
type Outage struct {
	Start      int64     `json:"start_time"`
	End        int64     `json:"end_time"`
	Duration   int64     `json:"duration"`
	Condition  Condition `json:"condition_at_start"`
	Summary    string    `json:"summary"`
	Unfinished bool      `json:"unfinished,omitempty"`
}

// DowntimeReport is the maintenance-adjusted downtime summary of one check.
// Params: per-condition second totals, optional percentages, surviving intervals.
// Returns: report engine output for one check and query range.
type DowntimeReport struct {
	TotalSeconds map[Condition]int64    `json:"total_seconds"`
	Percentages  map[Condition]*float64 `json:"percentages,omitempty"`
	Downtime     []Outage               `json:"downtime"`
}
