package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/clock"
	"sentinel/internal/domain"
	"sentinel/internal/maintenance"
	"sentinel/internal/metrics"
	"sentinel/internal/notify"
	"sentinel/internal/notifyqueue"
	"sentinel/internal/rules"
	"sentinel/internal/templatefmt"
)

// Router turns state transitions into delivery queue jobs.
// Params: contact set, maintenance tracker for suppression, queue producer,
// and clock for throttling decisions.
// Returns: per-transition routing with sent bookkeeping.
type Router struct {
	contacts       []rules.Contact
	tracker        *maintenance.Tracker
	producer       notifyqueue.Producer
	clock          clock.Clock
	logger         *slog.Logger
	ackDurationSec int64

	mu sync.Mutex
	// notified records the severity last alerted per contact and check,
	// consumed by recovery and acknowledgement routing.
	notified map[string]map[string]domain.Severity
	media    map[string]*mediumState
}

// mediumState is the per-(contact, medium) delivery bookkeeping.
// Params: throttle timestamps and the alerting-check set for rollups.
// Returns: mutable routing state guarded by the router mutex.
type mediumState struct {
	lastNotified map[string]int64
	alerting     map[string]struct{}
	rolledUp     bool
}

// New creates the router.
// Params: resolved contacts, tracker, producer, clock, acknowledgement
// window length, and optional logger.
// Returns: ready router.
func New(contacts []rules.Contact, tracker *maintenance.Tracker, producer notifyqueue.Producer, clk clock.Clock, ackDurationSec int64, logger *slog.Logger) *Router {
	return &Router{
		contacts:       contacts,
		tracker:        tracker,
		producer:       producer,
		clock:          clk,
		logger:         logger,
		ackDurationSec: ackDurationSec,
		notified:       make(map[string]map[string]domain.Severity),
		media:          make(map[string]*mediumState),
	}
}

// Route fans one transition out to every interested contact medium.
// Disabled checks are skipped entirely; problem alerts are suppressed while
// the check sits in any maintenance window.
// Params: context, check registration, and the appended state entry.
// Returns: joined enqueue errors; routing decisions themselves never fail.
func (r *Router) Route(ctx context.Context, check domain.CheckInfo, entry domain.StateEntry) error {
	if !check.Enabled {
		return nil
	}
	now := r.clock.Now().Unix()

	switch {
	case entry.Condition == domain.ConditionAcknowledgement:
		return r.routePseudo(ctx, check, entry, templatefmt.KindAcknowledgement, now, r.ackDurationSec)
	case entry.Condition == domain.ConditionTest:
		return r.routePseudo(ctx, check, entry, templatefmt.KindTest, now, 0)
	case entry.Condition.Healthy():
		return r.routeRecovery(ctx, check, entry, now)
	case entry.Condition.Failing():
		return r.routeProblem(ctx, check, entry, now)
	default:
		return nil
	}
}

// routeProblem routes one failing transition, honoring maintenance
// suppression, per-medium throttling, and rollup thresholds.
// Params: context, check, failing entry, and current unix time.
// Returns: joined enqueue errors.
func (r *Router) routeProblem(ctx context.Context, check domain.CheckInfo, entry domain.StateEntry, now int64) error {
	if r.inAnyWindow(ctx, check.ID, now) {
		// A check under maintenance stops counting against rollups.
		r.clearAlerting(check.ID)
		return nil
	}
	severity := domain.SeverityFor(entry.Condition)

	var errs []error
	for _, contact := range r.contacts {
		media := rules.Resolve(contact, check.Entity, check.Tags, severity, now)
		if len(media) == 0 {
			continue
		}
		r.markNotified(contact.ID, check.ID, severity)
		for _, medium := range media {
			state := r.mediumStateFor(contact.ID, medium.Transport)
			if r.throttled(state, check.ID, medium, now) {
				continue
			}
			job := r.buildJob(contact, medium, check, entry, templatefmt.KindAlert, severity, now)

			r.mu.Lock()
			state.alerting[check.ID] = struct{}{}
			count := len(state.alerting)
			if medium.RollupThreshold > 0 && count >= medium.RollupThreshold {
				state.rolledUp = true
				job.Kind = string(templatefmt.KindRollup)
				job.AlertingCount = count
			}
			state.lastNotified[check.ID] = now
			r.mu.Unlock()

			job.ID = notifyqueue.BuildJobID(job)
			if err := r.enqueue(ctx, job); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// routeRecovery routes one ok transition to every medium previously alerted,
// downgrading to a rollup-recovery message when the medium leaves rollup mode.
// Params: context, check, recovery entry, and current unix time.
// Returns: joined enqueue errors.
func (r *Router) routeRecovery(ctx context.Context, check domain.CheckInfo, entry domain.StateEntry, now int64) error {
	var errs []error
	for _, contact := range r.contacts {
		severity, alerted := r.notifiedSeverity(contact.ID, check.ID)
		if !alerted {
			continue
		}
		r.clearNotified(contact.ID, check.ID)

		media := rules.Resolve(contact, check.Entity, check.Tags, severity, now)
		for _, medium := range media {
			state := r.mediumStateFor(contact.ID, medium.Transport)

			r.mu.Lock()
			delete(state.alerting, check.ID)
			delete(state.lastNotified, check.ID)
			count := len(state.alerting)
			leftRollup := state.rolledUp && (medium.RollupThreshold <= 0 || count < medium.RollupThreshold)
			if leftRollup {
				state.rolledUp = false
			}
			r.mu.Unlock()

			job := r.buildJob(contact, medium, check, entry, templatefmt.KindRecovery, severity, now)
			if leftRollup {
				job.Kind = string(templatefmt.KindRollupRecovery)
				job.AlertingCount = count
			}
			job.ID = notifyqueue.BuildJobID(job)
			if err := r.enqueue(ctx, job); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RouteAcknowledgement routes one acknowledgement entry carrying the actual
// maintenance window length instead of the configured default.
// Params: context, check, pseudo entry, and window length in seconds.
// Returns: joined enqueue errors.
func (r *Router) RouteAcknowledgement(ctx context.Context, check domain.CheckInfo, entry domain.StateEntry, durationSec int64) error {
	if !check.Enabled {
		return nil
	}
	if durationSec <= 0 {
		durationSec = r.ackDurationSec
	}
	now := r.clock.Now().Unix()
	return r.routePseudo(ctx, check, entry, templatefmt.KindAcknowledgement, now, durationSec)
}

// routePseudo routes acknowledgement/test entries through the matcher
// without touching alerting counters or throttles.
// Params: context, check, pseudo entry, message kind, current unix time, and
// acknowledgement window length.
// Returns: joined enqueue errors.
func (r *Router) routePseudo(ctx context.Context, check domain.CheckInfo, entry domain.StateEntry, kind templatefmt.Kind, now, durationSec int64) error {
	var errs []error
	for _, contact := range r.contacts {
		severity := domain.SeverityCritical
		if kind == templatefmt.KindAcknowledgement {
			if notified, ok := r.notifiedSeverity(contact.ID, check.ID); ok {
				severity = notified
			}
		}
		media := rules.Resolve(contact, check.Entity, check.Tags, severity, now)
		for _, medium := range media {
			job := r.buildJob(contact, medium, check, entry, kind, severity, now)
			if kind == templatefmt.KindAcknowledgement {
				job.DurationSec = durationSec
			}
			job.ID = notifyqueue.BuildJobID(job)
			if err := r.enqueue(ctx, job); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// buildJob assembles one queue job from routing output.
// Params: contact, medium, check, entry, kind, severity, and timestamp.
// Returns: job without an id (assigned after rollup adjustments).
func (r *Router) buildJob(contact rules.Contact, medium rules.Medium, check domain.CheckInfo, entry domain.StateEntry, kind templatefmt.Kind, severity domain.Severity, now int64) notifyqueue.Job {
	return notifyqueue.Job{
		Kind:        string(kind),
		Channel:     notify.ChannelForTransport(medium.Transport),
		Transport:   medium.Transport,
		Address:     medium.Address,
		ContactID:   contact.ID,
		ContactName: contact.Name,
		CheckID:     check.ID,
		Entity:      check.Entity,
		CheckName:   check.Name,
		Condition:   string(entry.Condition),
		Severity:    string(severity),
		Summary:     entry.Summary,
		Details:     entry.Details,
		Timestamp:   entry.Timestamp,
		CreatedAt:   time.Unix(now, 0).UTC(),
	}
}

// enqueue hands one job to the producer and records metrics.
// Params: context and finished job.
// Returns: wrapped enqueue error.
func (r *Router) enqueue(ctx context.Context, job notifyqueue.Job) error {
	if err := r.producer.Enqueue(ctx, job); err != nil {
		if r.logger != nil {
			r.logger.Error("enqueue failed", "job_id", job.ID, "check", job.CheckID, "channel", job.Channel, "error", err.Error())
		}
		return fmt.Errorf("enqueue %s for %s: %w", job.Kind, job.CheckID, err)
	}
	metrics.NotificationsEnqueued.WithLabelValues(job.Kind, job.Channel).Inc()
	if r.logger != nil {
		r.logger.Debug("notification enqueued", "job_id", job.ID, "kind", job.Kind, "check", job.CheckID, "contact", job.ContactID, "transport", job.Transport)
	}
	return nil
}

// inAnyWindow reports whether the check sits in a maintenance window now.
// Params: check id and current unix time.
// Returns: true when either collection covers now; tracker errors suppress
// conservatively only on a positive answer.
func (r *Router) inAnyWindow(ctx context.Context, checkID string, now int64) bool {
	for _, collection := range []domain.Collection{domain.CollectionScheduled, domain.CollectionUnscheduled} {
		covered, err := r.tracker.InWindow(ctx, checkID, collection, now)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("maintenance lookup failed", "check", checkID, "collection", string(collection), "error", err.Error())
			}
			continue
		}
		if covered {
			return true
		}
	}
	return false
}

// throttled reports whether a problem alert for the check is inside the
// medium's repeat interval.
// Params: medium state, check id, medium, and current unix time.
// Returns: true when the alert must be skipped.
func (r *Router) throttled(state *mediumState, checkID string, medium rules.Medium, now int64) bool {
	if medium.IntervalSec <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := state.lastNotified[checkID]
	return ok && now-last < medium.IntervalSec
}

// mediumStateFor returns (creating if needed) the bookkeeping for one medium.
// Params: contact id and medium transport.
// Returns: shared medium state.
func (r *Router) mediumStateFor(contactID, transport string) *mediumState {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contactID + "|" + transport
	state, ok := r.media[key]
	if !ok {
		state = &mediumState{
			lastNotified: make(map[string]int64),
			alerting:     make(map[string]struct{}),
		}
		r.media[key] = state
	}
	return state
}

// markNotified records the severity alerted for one contact and check.
// Params: contact id, check id, and severity.
// Returns: bookkeeping side-effect.
func (r *Router) markNotified(contactID, checkID string, severity domain.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCheck, ok := r.notified[contactID]
	if !ok {
		byCheck = make(map[string]domain.Severity)
		r.notified[contactID] = byCheck
	}
	// Critical sticks until recovery so the recovery routes through the
	// widest media set that was alerted.
	if existing, seen := byCheck[checkID]; !seen || existing != domain.SeverityCritical {
		byCheck[checkID] = severity
	}
}

// notifiedSeverity returns the recorded severity for one contact and check.
// Params: contact id and check id.
// Returns: severity and whether an alert is outstanding.
func (r *Router) notifiedSeverity(contactID, checkID string) (domain.Severity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	severity, ok := r.notified[contactID][checkID]
	return severity, ok
}

// clearNotified removes the outstanding-alert record for one contact/check.
// Params: contact id and check id.
// Returns: bookkeeping side-effect.
func (r *Router) clearNotified(contactID, checkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notified[contactID], checkID)
}

// clearAlerting drops one check from every medium's alerting set.
// Params: check id.
// Returns: bookkeeping side-effect used when maintenance starts.
func (r *Router) clearAlerting(checkID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.media {
		delete(state.alerting, checkID)
		delete(state.lastNotified, checkID)
	}
}
