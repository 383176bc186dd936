package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sentinel/internal/checks"
	"sentinel/internal/clock"
	"sentinel/internal/domain"
	"sentinel/internal/locks"
	"sentinel/internal/maintenance"
	"sentinel/internal/metrics"
	"sentinel/internal/notify"
	"sentinel/internal/notifyqueue"
	"sentinel/internal/report"
	"sentinel/internal/router"
	"sentinel/internal/state"
)

// Manager coordinates check registration, state persistence, maintenance
// control, report queries, and notification routing.
// Params: shared runtime components built by the service.
// Returns: report sink and control-plane operations.
type Manager struct {
	logger         *slog.Logger
	clock          clock.Clock
	locks          *locks.Table
	kinds          *locks.Registry
	checks         *checks.Registry
	history        state.Store
	tracker        *maintenance.Tracker
	reports        *report.Engine
	router         *router.Router
	dispatcher     *notify.Dispatcher
	ackDurationSec int64
}

// NewManager creates manager over shared runtime components.
// Params: logger, clock, lock table, registry, history store, window tracker,
// report engine, notification router, dispatcher, and default ack window.
// Returns: initialized manager.
func NewManager(
	logger *slog.Logger,
	clk clock.Clock,
	table *locks.Table,
	registry *checks.Registry,
	history state.Store,
	tracker *maintenance.Tracker,
	reports *report.Engine,
	rtr *router.Router,
	dispatcher *notify.Dispatcher,
	ackDurationSec int64,
) *Manager {
	return &Manager{
		logger:         logger,
		clock:          clk,
		locks:          table,
		kinds:          kindTable(),
		checks:         registry,
		history:        history,
		tracker:        tracker,
		reports:        reports,
		router:         rtr,
		dispatcher:     dispatcher,
		ackDurationSec: ackDurationSec,
	}
}

// Push processes one incoming state report from ingest interfaces.
// Params: validated report.
// Returns: processing error when a backend operation fails.
func (m *Manager) Push(rep domain.StateReport) error {
	return m.ProcessReport(context.Background(), rep)
}

// PushBatch processes one batch of state reports in order.
// Params: validated report slice.
// Returns: first processing error.
func (m *Manager) PushBatch(reports []domain.StateReport) error {
	ctx := context.Background()
	for _, rep := range reports {
		if err := m.ProcessReport(ctx, rep); err != nil {
			return err
		}
	}
	return nil
}

// ProcessReport registers the check, appends history, and routes the entry.
// Test reports route without touching history; acknowledgement reports append
// a pseudo entry that never opens an outage.
// Params: context and validated report.
// Returns: store or routing error.
func (m *Manager) ProcessReport(ctx context.Context, rep domain.StateReport) error {
	check, err := m.checks.Ensure(ctx, rep.Entity, rep.Check, rep.Tags)
	if err != nil {
		return err
	}
	entry := rep.Entry()

	if entry.Condition == domain.ConditionTest {
		return m.router.Route(ctx, check, entry)
	}

	if entry.Condition == domain.ConditionAcknowledgement {
		if err := m.appendEntry(ctx, check.ID, entry); err != nil {
			return err
		}
		return m.router.Route(ctx, check, entry)
	}

	failing := entry.Condition.Failing()
	transitioned := false
	err = m.lockedDo(locks.KindState, func() error {
		if appendErr := m.history.Append(ctx, check.ID, entry); appendErr != nil {
			return appendErr
		}
		if check.Failing != failing {
			if setErr := m.checks.SetFailing(ctx, check.ID, failing); setErr != nil {
				return setErr
			}
			check.Failing = failing
			transitioned = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if transitioned {
		metrics.Transitions.WithLabelValues(string(entry.Condition)).Inc()
		if failing {
			metrics.FailingChecks.Inc()
		} else {
			metrics.FailingChecks.Dec()
		}
		m.logger.Info("check transitioned",
			"check", check.ID, "condition", string(entry.Condition), "failing", failing)
	}

	return m.router.Route(ctx, check, entry)
}

// appendEntry appends one pseudo entry under the state lock set.
// Params: context, check ID, and entry.
// Returns: append error.
func (m *Manager) appendEntry(ctx context.Context, checkID string, entry domain.StateEntry) error {
	return m.lockedDo(locks.KindState, func() error {
		return m.history.Append(ctx, checkID, entry)
	})
}

// lockedDo runs fn under the registered lock set of one entity kind.
// Params: entity kind and mutation closure.
// Returns: closure error.
func (m *Manager) lockedDo(kind locks.Kind, fn func() error) error {
	return m.locks.Do(fn, m.kinds.LockSet(kind)...)
}

// validateKind runs the registered payload validator of one entity kind.
// Params: entity kind and mutation payload.
// Returns: validation error.
func (m *Manager) validateKind(kind locks.Kind, payload any) error {
	descriptor, ok := m.kinds.Lookup(kind)
	if !ok || descriptor.Validate == nil {
		return nil
	}
	return descriptor.Validate(payload)
}

// kindTable registers each entity kind with its validator and lock set.
// Params: none.
// Returns: static kind registry built once per manager.
func kindTable() *locks.Registry {
	return locks.NewRegistry(
		locks.Descriptor{
			Kind:    locks.KindState,
			LockSet: []locks.Kind{locks.KindState, locks.KindCheck},
			Validate: func(payload any) error {
				if rep, ok := payload.(domain.StateReport); ok {
					return rep.Validate()
				}
				return nil
			},
		},
		locks.Descriptor{
			Kind:    locks.KindWindow,
			LockSet: []locks.Kind{locks.KindWindow},
			Validate: func(payload any) error {
				if window, ok := payload.(domain.MaintenanceWindow); ok {
					return window.Validate()
				}
				return nil
			},
		},
		locks.Descriptor{Kind: locks.KindCheck, LockSet: []locks.Kind{locks.KindCheck}},
	)
}

// Acknowledge opens an unscheduled maintenance window for a failing check and
// routes an acknowledgement message. The window is keyed by the check's ack
// hash so a repeated acknowledgement replaces rather than stacks.
// Params: context, check ID, operator summary, and window length in seconds
// (zero selects the configured default).
// Returns: stored window or lookup/store error.
func (m *Manager) Acknowledge(ctx context.Context, checkID, summary string, durationSec int64) (domain.MaintenanceWindow, error) {
	check, err := m.checks.Get(ctx, checkID)
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if durationSec <= 0 {
		durationSec = m.ackDurationSec
	}
	now := m.clock.Now().Unix()
	window := domain.MaintenanceWindow{
		ID:      check.AckHash,
		Start:   now,
		End:     now + durationSec,
		Summary: summary,
	}
	window, err = m.tracker.SetUnscheduled(ctx, checkID, window)
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}

	entry := domain.StateEntry{
		Condition: domain.ConditionAcknowledgement,
		Timestamp: now,
		Summary:   summary,
	}
	if err := m.appendEntry(ctx, checkID, entry); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if err := m.router.RouteAcknowledgement(ctx, check, entry, durationSec); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return window, nil
}

// AddScheduled inserts one pre-planned maintenance window for a known check.
// Params: context, check ID, and window payload.
// Returns: stored window with assigned ID, or lookup/validation error.
func (m *Manager) AddScheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	if err := m.validateKind(locks.KindWindow, window); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if _, err := m.checks.Get(ctx, checkID); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return m.tracker.AddScheduled(ctx, checkID, window)
}

// EndScheduled terminates one scheduled window at the given instant.
// Params: context, check ID, window ID, and unix-second instant.
// Returns: tracker error (ErrConflict for unknown windows).
func (m *Manager) EndScheduled(ctx context.Context, checkID, windowID string, at int64) error {
	if _, err := m.checks.Get(ctx, checkID); err != nil {
		return err
	}
	return m.tracker.EndWindow(ctx, checkID, domain.CollectionScheduled, windowID, at)
}

// SetUnscheduled opens one reactive maintenance window for a known check.
// Params: context, check ID, and window payload.
// Returns: stored window or lookup/validation error.
func (m *Manager) SetUnscheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	if err := m.validateKind(locks.KindWindow, window); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if _, err := m.checks.Get(ctx, checkID); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return m.tracker.SetUnscheduled(ctx, checkID, window)
}

// ClearUnscheduled ends the currently open unscheduled window.
// Params: context, check ID, and end instant.
// Returns: tracker error (ErrConflict when no window is open).
func (m *Manager) ClearUnscheduled(ctx context.Context, checkID string, at int64) error {
	if _, err := m.checks.Get(ctx, checkID); err != nil {
		return err
	}
	return m.tracker.ClearUnscheduled(ctx, checkID, m.clock.Now().Unix(), at)
}

// SetEnabled toggles routing for one check; history is accepted either way.
// Params: context, check ID, and target flag.
// Returns: registry error.
func (m *Manager) SetEnabled(ctx context.Context, checkID string, enabled bool) error {
	return m.checks.SetEnabled(ctx, checkID, enabled)
}

// Outages returns outage reports for one check or every check under a tag.
// Exactly one of checkID/tag must be set; the boundary validates that.
// Params: context, check ID or tag, and optional unix-second bounds.
// Returns: per-check outage slices keyed by check ID.
func (m *Manager) Outages(ctx context.Context, checkID, tag string, from, to *int64) (map[string][]domain.Outage, error) {
	ids, err := m.resolveReportTargets(ctx, checkID, tag)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Outage, len(ids))
	for _, id := range ids {
		outages, err := m.reports.Outages(ctx, id, from, to)
		if err != nil {
			return nil, fmt.Errorf("outages for %s: %w", id, err)
		}
		out[id] = outages
	}
	return out, nil
}

// Downtime returns maintenance-adjusted downtime for one check or a tag.
// Params: context, check ID or tag, and optional unix-second bounds.
// Returns: per-check downtime reports keyed by check ID.
func (m *Manager) Downtime(ctx context.Context, checkID, tag string, from, to *int64) (map[string]domain.DowntimeReport, error) {
	ids, err := m.resolveReportTargets(ctx, checkID, tag)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.DowntimeReport, len(ids))
	for _, id := range ids {
		rep, err := m.reports.Downtime(ctx, id, from, to)
		if err != nil {
			return nil, fmt.Errorf("downtime for %s: %w", id, err)
		}
		out[id] = rep
	}
	return out, nil
}

// resolveReportTargets expands a check/tag selector into check IDs.
// Params: context and exactly one non-empty selector.
// Returns: check IDs or ErrNotFound when nothing matches.
func (m *Manager) resolveReportTargets(ctx context.Context, checkID, tag string) ([]string, error) {
	if checkID != "" {
		if _, err := m.checks.Get(ctx, checkID); err != nil {
			return nil, err
		}
		return []string{checkID}, nil
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, domain.NewValidationError("check", errors.New("check or tag selector is required"))
	}
	matched, err := m.checks.ByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("tag %q: %w", tag, domain.ErrNotFound)
	}
	ids := make([]string, 0, len(matched))
	for _, check := range matched {
		ids = append(ids, check.ID)
	}
	return ids, nil
}

// ProcessQueuedNotification delivers one queued job via the dispatcher.
// Params: context and queued delivery job.
// Returns: delivery error for worker NAK/redelivery; permanent errors are
// already marked by the dispatcher.
func (m *Manager) ProcessQueuedNotification(ctx context.Context, job notifyqueue.Job) error {
	if err := m.dispatcher.Deliver(ctx, job); err != nil {
		metrics.NotificationsFailed.WithLabelValues(job.Channel).Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues(job.Channel).Inc()
	return nil
}
