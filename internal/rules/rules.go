package rules

import (
	"time"

	"sentinel/internal/domain"
)

// TimeRestriction is one recurring occurrence window for a rule.
// Params: weekday set, start-of-day offset, and duration, all anchored in
// the owning contact's timezone.
// Returns: recurrence descriptor evaluated by OccursAt.
type TimeRestriction struct {
	Weekdays    map[time.Weekday]bool
	StartOffset int64
	Duration    int64
}

// OccursAt reports whether t falls inside any occurrence of the restriction.
// Occurrences may cross midnight; such a window is anchored on the weekday
// it starts on.
// Params: instant already converted into the contact's location.
// Returns: true when the instant lies inside an occurrence.
func (tr TimeRestriction) OccursAt(t time.Time) bool {
	// Check the occurrence starting today and the one starting yesterday,
	// which may still be running when the window crosses midnight.
	for _, dayBack := range []int{0, 1} {
		day := t.AddDate(0, 0, -dayBack)
		if !tr.Weekdays[day.Weekday()] {
			continue
		}
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
		open := dayStart.Add(time.Duration(tr.StartOffset) * time.Second)
		close := open.Add(time.Duration(tr.Duration) * time.Second)
		if !t.Before(open) && t.Before(close) {
			return true
		}
	}
	return false
}

// Medium is one notification channel endpoint owned by a contact.
// Params: transport name, address, optional repeat interval, and rollup
// threshold.
// Returns: delivery target referenced by rule media sets via its transport.
type Medium struct {
	Transport       string
	Address         string
	IntervalSec     int64
	RollupThreshold int
}

// Rule is one notification rule owned by a contact.
// Params: entity/tag selectors, time restrictions, and per-severity media
// and blackhole settings.
// Returns: matching unit for the resolution pass.
type Rule struct {
	ID           string
	Entities     []string
	Tags         []string
	Restrictions []TimeRestriction
	Media        map[domain.Severity][]string
	Blackhole    map[domain.Severity]bool
}

// MatchEntity reports whether the rule selects the given entity.
// Params: entity name of the check.
// Returns: true when the entity set is empty or contains the entity.
func (r Rule) MatchEntity(entity string) bool {
	if len(r.Entities) == 0 {
		return true
	}
	for _, candidate := range r.Entities {
		if candidate == entity {
			return true
		}
	}
	return false
}

// MatchTags reports whether the rule's tag set is a subset of the check tags.
// Params: tags carried by the check.
// Returns: true when the rule tag set is empty or fully contained.
func (r Rule) MatchTags(checkTags []string) bool {
	if len(r.Tags) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(checkTags))
	for _, tag := range checkTags {
		have[tag] = struct{}{}
	}
	for _, tag := range r.Tags {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}

// ActiveAt reports whether the rule's time restrictions admit the instant.
// Params: instant already converted into the contact's location.
// Returns: true when no restriction exists or any occurrence covers it.
func (r Rule) ActiveAt(t time.Time) bool {
	if len(r.Restrictions) == 0 {
		return true
	}
	for _, restriction := range r.Restrictions {
		if restriction.OccursAt(t) {
			return true
		}
	}
	return false
}

// Specific reports whether the rule names concrete entities or tags.
// Params: none.
// Returns: true when either selector set is non-empty.
func (r Rule) Specific() bool {
	return len(r.Entities) > 0 || len(r.Tags) > 0
}

// MediaForSeverity returns the media set for one severity, honoring blackhole.
// Params: severity.
// Returns: configured media transports, or nothing when blackholed.
func (r Rule) MediaForSeverity(severity domain.Severity) []string {
	if r.Blackhole[severity] {
		return nil
	}
	return r.Media[severity]
}

// Contact owns media and notification rules.
// Params: identity, timezone for restriction evaluation, media, and rules.
// Returns: resolution input for the router.
type Contact struct {
	ID       string
	Name     string
	Location *time.Location
	Media    []Medium
	Rules    []Rule
}

// MediumByTransport returns the contact's medium for one transport.
// Params: transport name.
// Returns: medium and presence flag.
func (c Contact) MediumByTransport(transport string) (Medium, bool) {
	for _, medium := range c.Media {
		if medium.Transport == transport {
			return medium, true
		}
	}
	return Medium{}, false
}

// GeneralRule synthesizes the fallback rule: empty selectors, no restriction,
// all of the contact's media for every severity.
// Params: none.
// Returns: default-notify rule guaranteeing routing behavior.
func (c Contact) GeneralRule() Rule {
	transports := make([]string, 0, len(c.Media))
	for _, medium := range c.Media {
		transports = append(transports, medium.Transport)
	}
	return Rule{
		ID: "general:" + c.ID,
		Media: map[domain.Severity][]string{
			domain.SeverityWarning:  transports,
			domain.SeverityCritical: transports,
		},
		Blackhole: map[domain.Severity]bool{},
	}
}
