package report

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"sentinel/internal/clock"
	"sentinel/internal/domain"
	"sentinel/internal/maintenance"
	"sentinel/internal/state"
)

// Engine derives outage intervals and downtime statistics from state history.
// Params: history store, maintenance tracker, and clock for open intervals.
// Returns: read-only report computations.
type Engine struct {
	history state.Store
	tracker *maintenance.Tracker
	clock   clock.Clock
}

// NewEngine creates a report engine.
// Params: history store, maintenance tracker, and clock.
// Returns: initialized engine.
func NewEngine(history state.Store, tracker *maintenance.Tracker, clk clock.Clock) *Engine {
	return &Engine{history: history, tracker: tracker, clock: clk}
}

// Outages extracts discrete outage intervals from a check's state history.
// Consecutive failing entries of any condition merge into one outage; only a
// transition through ok closes it. Pseudo conditions never open or close one.
// Params: check ID and optional unix-second bounds (nil = unbounded).
// Returns: ascending outages clipped to [from, to].
func (e *Engine) Outages(ctx context.Context, checkID string, from, to *int64) ([]domain.Outage, error) {
	return e.extract(ctx, checkID, from, to)
}

// extract walks the ordered history and builds clipped outage intervals.
// Params: check ID and optional bounds.
// Returns: outages with the unfinished flag set when still failing at the
// right edge.
func (e *Engine) extract(ctx context.Context, checkID string, from, to *int64) ([]domain.Outage, error) {
	entries, err := e.history.Range(ctx, checkID, from, to)
	if err != nil {
		return nil, fmt.Errorf("outages for %s: %w", checkID, err)
	}

	// Condition active at the left edge: the entry just before the range.
	// Without a lower bound there is no synthetic left entry.
	if from != nil {
		seed, err := e.history.EntryBefore(ctx, checkID, *from)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("left edge for %s: %w", checkID, err)
		}
		if err == nil && seed.Condition.Failing() {
			entries = append([]domain.StateEntry{seed}, entries...)
		}
	}

	var (
		outages []domain.Outage
		open    *domain.Outage
		lastTS  int64
	)
	for _, entry := range entries {
		if entry.Condition.Pseudo() {
			continue
		}
		lastTS = entry.Timestamp
		switch {
		case entry.Condition.Failing() && open == nil:
			open = &domain.Outage{
				Start:     entry.Timestamp,
				Condition: entry.Condition,
				Summary:   entry.Summary,
			}
		case entry.Condition.Healthy() && open != nil:
			open.End = entry.Timestamp
			outages = append(outages, *open)
			open = nil
		}
	}

	if open != nil {
		end, unfinished, err := e.openEnd(ctx, checkID, lastTS, to)
		if err != nil {
			return nil, err
		}
		open.End = end
		open.Unfinished = unfinished
		outages = append(outages, *open)
	}

	for i := range outages {
		if from != nil && outages[i].Start < *from {
			outages[i].Start = *from
		}
		if to != nil && outages[i].End > *to {
			outages[i].End = *to
			outages[i].Unfinished = true
		}
		outages[i].Duration = outages[i].End - outages[i].Start
	}
	return outages, nil
}

// openEnd resolves the end of an outage that is still failing in range.
// It follows the history past the last in-range entry: the first healthy
// entry closes the outage; with none, the outage runs to the query edge.
// Params: check ID, last in-range failing timestamp, and optional upper bound.
// Returns: end timestamp and unfinished flag.
func (e *Engine) openEnd(ctx context.Context, checkID string, lastTS int64, to *int64) (int64, bool, error) {
	cursor := lastTS
	for {
		next, err := e.history.EntryAfter(ctx, checkID, cursor)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("recovery lookup for %s: %w", checkID, err)
		}
		if next.Condition.Healthy() {
			return next.Timestamp, false, nil
		}
		cursor = next.Timestamp
	}
	if to != nil {
		return *to, true, nil
	}
	return e.clock.Now().Unix(), true, nil
}

// Downtime computes maintenance-adjusted downtime statistics for one check.
// Scheduled maintenance windows are subtracted from the outage intervals;
// an outage wholly inside a window disappears, partial overlaps shorten it,
// and a window strictly inside an outage splits it in two.
// Params: check ID and optional unix-second bounds (nil = unbounded).
// Returns: per-condition totals, percentages (only with both bounds), and
// the surviving intervals.
func (e *Engine) Downtime(ctx context.Context, checkID string, from, to *int64) (domain.DowntimeReport, error) {
	outages, err := e.extract(ctx, checkID, from, to)
	if err != nil {
		return domain.DowntimeReport{}, err
	}
	windows, err := e.tracker.WindowsIntersecting(ctx, checkID, domain.CollectionScheduled, from, to)
	if err != nil {
		return domain.DowntimeReport{}, fmt.Errorf("maintenance for %s: %w", checkID, err)
	}

	surviving := subtractWindows(outages, windows)

	totals := make(map[domain.Condition]int64)
	var failingTotal int64
	for i := range surviving {
		surviving[i].Duration = surviving[i].End - surviving[i].Start
		totals[surviving[i].Condition] += surviving[i].Duration
		failingTotal += surviving[i].Duration
	}

	report := domain.DowntimeReport{TotalSeconds: totals, Downtime: surviving}
	if from != nil && to != nil && *to > *from {
		span := *to - *from
		totals[domain.ConditionOK] = span - failingTotal
		report.Percentages = make(map[domain.Condition]*float64, len(totals))
		for condition, seconds := range totals {
			pct := float64(seconds) * 100 / float64(span)
			report.Percentages[condition] = &pct
		}
	}
	return report, nil
}

// subtractWindows removes maintenance coverage from outage intervals.
// Two passes over sorted data: first split outages that strictly contain a
// window, then trim or drop remaining overlaps. Boundaries that merely touch
// (window end == outage start) do not overlap.
// Params: clipped outages and maintenance windows.
// Returns: surviving intervals sorted by start.
func subtractWindows(outages []domain.Outage, windows []domain.MaintenanceWindow) []domain.Outage {
	remaining := make([]domain.Outage, len(outages))
	copy(remaining, outages)

	for _, window := range windows {
		var split []domain.Outage
		kept := remaining[:0]
		for _, outage := range remaining {
			if outage.Start < window.Start && outage.End > window.End {
				head := outage
				head.End = window.Start
				head.Unfinished = false
				head.Summary = outage.Summary + " [split start]"
				tail := outage
				tail.Start = window.End
				tail.Summary = outage.Summary + " [split finish]"
				split = append(split, head, tail)
				continue
			}
			kept = append(kept, outage)
		}
		remaining = append(kept, split...)
		sort.Slice(remaining, func(i, j int) bool { return remaining[i].Start < remaining[j].Start })
	}

	for _, window := range windows {
		kept := remaining[:0]
		for _, outage := range remaining {
			if window.Start >= outage.End || window.End <= outage.Start {
				kept = append(kept, outage)
				continue
			}
			switch {
			case window.Start <= outage.Start && window.End >= outage.End:
				// Fully covered by maintenance; drop it.
			case window.Start <= outage.Start:
				outage.Start = window.End
				kept = append(kept, outage)
			case window.End >= outage.End:
				outage.End = window.Start
				outage.Unfinished = false
				kept = append(kept, outage)
			}
		}
		remaining = kept
	}

	out := make([]domain.Outage, len(remaining))
	copy(out, remaining)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
