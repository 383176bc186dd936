package report

import (
	"context"
	"math"
	"testing"
	"time"

	"sentinel/internal/clock"
	"sentinel/internal/domain"
	"sentinel/internal/locks"
	"sentinel/internal/maintenance"
	"sentinel/internal/state"
)

const checkID = "web:ping"

type fixture struct {
	engine  *Engine
	history *state.MemoryStore
	tracker *maintenance.Tracker
	clock   *clock.FakeClock
}

func newFixture(t *testing.T, now int64) *fixture {
	t.Helper()
	history := state.NewMemoryStore()
	tracker := maintenance.NewTracker(maintenance.NewMemoryStore(), locks.NewTable())
	clk := clock.NewFake(time.Unix(now, 0))
	return &fixture{
		engine:  NewEngine(history, tracker, clk),
		history: history,
		tracker: tracker,
		clock:   clk,
	}
}

func (f *fixture) append(t *testing.T, ts int64, cond domain.Condition) {
	t.Helper()
	entry := domain.StateEntry{Condition: cond, Timestamp: ts, Summary: string(cond)}
	if err := f.history.Append(context.Background(), checkID, entry); err != nil {
		t.Fatalf("append %s@%d: %v", cond, ts, err)
	}
}

func (f *fixture) schedule(t *testing.T, start, end int64) {
	t.Helper()
	w := domain.MaintenanceWindow{Start: start, End: end, Summary: "planned"}
	if _, err := f.tracker.AddScheduled(context.Background(), checkID, w); err != nil {
		t.Fatalf("add scheduled [%d,%d): %v", start, end, err)
	}
}

func TestOutageConsolidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 200, domain.ConditionCritical)
	f.append(t, 300, domain.ConditionOK)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 1 {
		t.Fatalf("expected 1 consolidated outage, got %d", len(outages))
	}
	if outages[0].Start != 100 || outages[0].End != 300 || outages[0].Unfinished {
		t.Fatalf("unexpected outage: %+v", outages[0])
	}
}

func TestConditionChangeWithoutOKDoesNotSplit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 200, domain.ConditionWarning)
	f.append(t, 300, domain.ConditionCritical)
	f.append(t, 400, domain.ConditionOK)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 1 {
		t.Fatalf("critical->warning->critical must stay one outage, got %d", len(outages))
	}
	if outages[0].Condition != domain.ConditionCritical {
		t.Fatalf("condition at start = %s, want critical", outages[0].Condition)
	}
}

func TestFourOutageExample(t *testing.T) {
	t.Parallel()

	now := int64(1_000_000)
	f := newFixture(t, now)
	hour := int64(3600)
	minute := int64(60)
	f.append(t, now-4*hour, domain.ConditionCritical)
	f.append(t, now-4*hour+5*minute, domain.ConditionOK)
	f.append(t, now-3*hour, domain.ConditionCritical)
	f.append(t, now-3*hour+10*minute, domain.ConditionOK)
	f.append(t, now-2*hour, domain.ConditionCritical)
	f.append(t, now-2*hour+15*minute, domain.ConditionOK)
	f.append(t, now-1*hour, domain.ConditionCritical)
	f.append(t, now-1*hour+20*minute, domain.ConditionOK)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 4 {
		t.Fatalf("expected 4 outages, got %d: %+v", len(outages), outages)
	}
}

func TestPseudoConditionsAreNotBoundaries(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 150, domain.ConditionAcknowledgement)
	f.append(t, 200, domain.ConditionTest)
	f.append(t, 300, domain.ConditionOK)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 1 || outages[0].End != 300 {
		t.Fatalf("pseudo conditions must be skipped, got %+v", outages)
	}
}

func TestSingleFailingEntryRunsToNow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5000)
	f.append(t, 1000, domain.ConditionCritical)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 1 {
		t.Fatalf("expected 1 outage, got %d", len(outages))
	}
	if !outages[0].Unfinished || outages[0].End != 5000 {
		t.Fatalf("unfinished outage must run to now: %+v", outages[0])
	}
}

func TestLeftEdgeSeedsFromEarlierEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 500, domain.ConditionOK)

	from, to := int64(200), int64(600)
	outages, err := f.engine.Outages(context.Background(), checkID, &from, &to)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 1 {
		t.Fatalf("expected 1 outage from the seeded left edge, got %d", len(outages))
	}
	if outages[0].Start != 200 || outages[0].End != 500 {
		t.Fatalf("outage must clip to the query range: %+v", outages[0])
	}
}

func TestRecoveredBeforeRangeIsNotSeeded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 150, domain.ConditionOK)

	from, to := int64(200), int64(600)
	outages, err := f.engine.Outages(context.Background(), checkID, &from, &to)
	if err != nil {
		t.Fatalf("outages: %v", err)
	}
	if len(outages) != 0 {
		t.Fatalf("no outage may leak into the range: %+v", outages)
	}
}

func TestDowntimeTotalsAndPercentages(t *testing.T) {
	t.Parallel()

	start := int64(1_000_000)
	hour := int64(3600)
	minute := int64(60)
	end := start + 12*hour
	f := newFixture(t, end)

	// Four outages, 2+4+6+10 = 22 minutes of failing time inside 12h.
	downs := []struct{ at, dur int64 }{
		{start + 1*hour, 2 * minute},
		{start + 3*hour, 4 * minute},
		{start + 5*hour, 6 * minute},
		{start + 7*hour, 10 * minute},
	}
	for _, d := range downs {
		f.append(t, d.at, domain.ConditionCritical)
		f.append(t, d.at+d.dur, domain.ConditionOK)
	}

	report, err := f.engine.Downtime(context.Background(), checkID, &start, &end)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if got := report.TotalSeconds[domain.ConditionCritical]; got != 1320 {
		t.Fatalf("critical seconds = %d, want 1320", got)
	}
	if got := report.TotalSeconds[domain.ConditionOK]; got != 12*3600-1320 {
		t.Fatalf("ok seconds = %d, want %d", got, 12*3600-1320)
	}

	var sum float64
	for _, pct := range report.Percentages {
		if pct == nil {
			t.Fatalf("bounded query must produce percentages")
		}
		sum += *pct
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Fatalf("percentages sum to %f, want 100", sum)
	}
}

func TestDowntimePercentagesNilWhenUnbounded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 200, domain.ConditionOK)

	report, err := f.engine.Downtime(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if report.Percentages != nil {
		t.Fatalf("percentage is undefined without a fixed denominator")
	}
	if got := report.TotalSeconds[domain.ConditionCritical]; got != 100 {
		t.Fatalf("critical seconds = %d, want 100", got)
	}
}

func TestDowntimeDropsFullyCoveredOutage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 300, domain.ConditionCritical)
	f.append(t, 400, domain.ConditionOK)
	f.schedule(t, 200, 500)

	outages, err := f.engine.Outages(context.Background(), checkID, nil, nil)
	if err != nil || len(outages) != 1 {
		t.Fatalf("plain outages must keep the interval, got %d (err %v)", len(outages), err)
	}

	report, err := f.engine.Downtime(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if len(report.Downtime) != 0 {
		t.Fatalf("maintenance-covered outage must vanish: %+v", report.Downtime)
	}
	if report.TotalSeconds[domain.ConditionCritical] != 0 {
		t.Fatalf("covered outage must not count: %+v", report.TotalSeconds)
	}
}

func TestDowntimeSplitsAroundInteriorWindows(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 100, domain.ConditionCritical)
	f.append(t, 1000, domain.ConditionOK)
	// Two disjoint windows strictly inside one outage: 3 surviving pieces.
	f.schedule(t, 200, 300)
	f.schedule(t, 500, 600)

	report, err := f.engine.Downtime(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if len(report.Downtime) != 3 {
		t.Fatalf("expected 3 pieces, got %d: %+v", len(report.Downtime), report.Downtime)
	}
	wantBounds := [][2]int64{{100, 200}, {300, 500}, {600, 1000}}
	for i, bounds := range wantBounds {
		if report.Downtime[i].Start != bounds[0] || report.Downtime[i].End != bounds[1] {
			t.Fatalf("piece %d = [%d,%d], want [%d,%d]",
				i, report.Downtime[i].Start, report.Downtime[i].End, bounds[0], bounds[1])
		}
	}
	if got := report.TotalSeconds[domain.ConditionCritical]; got != 700 {
		t.Fatalf("surviving seconds = %d, want 700", got)
	}
}

func TestTouchingWindowDoesNotOverlap(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 300, domain.ConditionCritical)
	f.append(t, 500, domain.ConditionOK)
	// Window ends exactly where the outage starts.
	f.schedule(t, 100, 300)

	report, err := f.engine.Downtime(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if len(report.Downtime) != 1 || report.Downtime[0].Start != 300 || report.Downtime[0].End != 500 {
		t.Fatalf("touching boundary must not shorten the outage: %+v", report.Downtime)
	}
}

func TestPartialOverlapsShorten(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10_000)
	f.append(t, 300, domain.ConditionCritical)
	f.append(t, 700, domain.ConditionOK)
	f.schedule(t, 200, 400) // overlaps the early side
	f.schedule(t, 600, 800) // overlaps the late side

	report, err := f.engine.Downtime(context.Background(), checkID, nil, nil)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	if len(report.Downtime) != 1 {
		t.Fatalf("expected 1 surviving piece, got %d", len(report.Downtime))
	}
	if report.Downtime[0].Start != 400 || report.Downtime[0].End != 600 {
		t.Fatalf("piece = [%d,%d], want [400,600]", report.Downtime[0].Start, report.Downtime[0].End)
	}
}

func TestQueryRangeRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 100_000)
	f.append(t, 1000, domain.ConditionCritical)
	f.append(t, 2000, domain.ConditionOK)
	f.append(t, 5000, domain.ConditionCritical)
	f.append(t, 6000, domain.ConditionOK)
	for i := int64(0); i < 5; i++ {
		f.schedule(t, 10_000+i*100, 10_050+i*100)
	}

	// Superset range: intervals stay inside the query bounds.
	from, to := int64(500), int64(20_000)
	report, err := f.engine.Downtime(context.Background(), checkID, &from, &to)
	if err != nil {
		t.Fatalf("downtime: %v", err)
	}
	for _, interval := range report.Downtime {
		if interval.Start < from || interval.End > to {
			t.Fatalf("interval [%d,%d] escapes query range", interval.Start, interval.End)
		}
	}

	// Disjoint range: nothing comes back.
	dfrom, dto := int64(50_000), int64(60_000)
	report, err = f.engine.Downtime(context.Background(), checkID, &dfrom, &dto)
	if err != nil {
		t.Fatalf("disjoint downtime: %v", err)
	}
	if len(report.Downtime) != 0 {
		t.Fatalf("disjoint range must be empty: %+v", report.Downtime)
	}
	outages, err := f.engine.Outages(context.Background(), checkID, &dfrom, &dto)
	if err != nil || len(outages) != 0 {
		t.Fatalf("disjoint outages must be empty, got %d (err %v)", len(outages), err)
	}
}
