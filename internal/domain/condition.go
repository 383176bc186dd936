package domain

// Condition is the reported health state of a check at one point in time.
// Params: health state constants plus notification-only pseudo states.
// Returns: classification used by report and routing layers.
type Condition string

const (
	// ConditionOK marks a healthy check.
	ConditionOK Condition = "ok"
	// ConditionWarning marks a degraded check.
	ConditionWarning Condition = "warning"
	// ConditionCritical marks a failed check.
	ConditionCritical Condition = "critical"
	// ConditionUnknown marks a check whose state could not be determined.
	ConditionUnknown Condition = "unknown"
	// ConditionAcknowledgement marks an operator acknowledgement event.
	ConditionAcknowledgement Condition = "acknowledgement"
	// ConditionTest marks a test notification event.
	ConditionTest Condition = "test"
)

// Severity classifies a state transition for notification rule media sets.
// Params: warning/critical constants keyed by rule media configuration.
// Returns: severity used by rule matching and queue jobs.
type Severity string

const (
	// SeverityWarning routes through warning media sets.
	SeverityWarning Severity = "warning"
	// SeverityCritical routes through critical media sets.
	SeverityCritical Severity = "critical"
)

// Healthy reports whether condition counts as recovered.
// Params: none.
// Returns: true for ok.
func (c Condition) Healthy() bool {
	return c == ConditionOK
}

// Pseudo reports whether condition is a notification-only pseudo state.
// Params: none.
// Returns: true for acknowledgement/test; never an outage boundary.
func (c Condition) Pseudo() bool {
	return c == ConditionAcknowledgement || c == ConditionTest
}

// Failing reports whether condition opens or continues an outage.
// Params: none.
// Returns: true for warning/critical/unknown.
func (c Condition) Failing() bool {
	return !c.Healthy() && !c.Pseudo()
}

// Valid reports whether condition is one of the supported constants.
// Params: none.
// Returns: true for known health and pseudo states.
func (c Condition) Valid() bool {
	switch c {
	case ConditionOK, ConditionWarning, ConditionCritical, ConditionUnknown,
		ConditionAcknowledgement, ConditionTest:
		return true
	}
	return false
}

// SeverityFor maps a failing condition onto a rule media severity.
// Params: reported condition.
// Returns: warning for warning, critical for critical/unknown, empty otherwise.
func SeverityFor(c Condition) Severity {
	switch c {
	case ConditionWarning:
		return SeverityWarning
	case ConditionCritical, ConditionUnknown:
		return SeverityCritical
	}
	return ""
}
