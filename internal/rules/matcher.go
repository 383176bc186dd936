package rules

import (
	"sort"
	"time"

	"sentinel/internal/domain"
)

// Resolve evaluates a contact's rule set for one check and state transition.
//
// Every applicable rule (entity match, tag subset, active restriction)
// contributes its severity media; results are unioned. Blackhole precedence:
// a blackholed applicable *specific* rule vetoes the severity outright, while
// a blackholed applicable *general* rule only removes general-rule media, so
// specific rules that explicitly enumerate the entity or tags still notify.
// With no applicable rule at all, the synthesized general rule applies.
//
// Params: contact, check entity/tags, severity, and unix-second instant.
// Returns: resolved media in stable transport order.
func Resolve(contact Contact, entity string, checkTags []string, severity domain.Severity, at int64) []Medium {
	location := contact.Location
	if location == nil {
		location = time.UTC
	}
	localTime := time.Unix(at, 0).In(location)

	var applicable []Rule
	for _, rule := range contact.Rules {
		if !rule.MatchEntity(entity) {
			continue
		}
		if !rule.MatchTags(checkTags) {
			continue
		}
		if !rule.ActiveAt(localTime) {
			continue
		}
		applicable = append(applicable, rule)
	}

	if len(applicable) == 0 {
		return mediaFromTransports(contact, contact.GeneralRule().MediaForSeverity(severity))
	}

	var (
		specificBlackhole bool
		generalBlackhole  bool
	)
	for _, rule := range applicable {
		if !rule.Blackhole[severity] {
			continue
		}
		if rule.Specific() {
			specificBlackhole = true
		} else {
			generalBlackhole = true
		}
	}
	if specificBlackhole {
		return nil
	}

	transports := make(map[string]struct{})
	for _, rule := range applicable {
		if generalBlackhole && !rule.Specific() {
			continue
		}
		for _, transport := range rule.MediaForSeverity(severity) {
			transports[transport] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(transports))
	for transport := range transports {
		ordered = append(ordered, transport)
	}
	sort.Strings(ordered)
	return mediaFromTransports(contact, ordered)
}

// mediaFromTransports maps transport names onto the contact's media entries.
// Transports without a configured medium are dropped.
// Params: contact and transport names.
// Returns: resolved media preserving input order.
func mediaFromTransports(contact Contact, transports []string) []Medium {
	out := make([]Medium, 0, len(transports))
	for _, transport := range transports {
		if medium, ok := contact.MediumByTransport(transport); ok {
			out = append(out, medium)
		}
	}
	return out
}
