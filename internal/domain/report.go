package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StateReport is one normalized incoming check result.
// Params: check identity, condition, unix-second timestamp, and report text.
// Returns: validated ingestion payload for the state pipeline.
type StateReport struct {
	Entity    string    `json:"entity"`
	Check     string    `json:"check"`
	Condition Condition `json:"condition"`
	Timestamp int64     `json:"timestamp"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	Perfdata  string    `json:"perfdata,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// CheckID builds the canonical check identifier from entity and check name.
// Params: none.
// Returns: "entity:check" identifier.
func (r StateReport) CheckID() string {
	return r.Entity + ":" + r.Check
}

// Entry converts the report into an immutable history entry.
// Params: none.
// Returns: state entry carrying the report fields.
func (r StateReport) Entry() StateEntry {
	return StateEntry{
		Condition: r.Condition,
		Timestamp: r.Timestamp,
		Summary:   r.Summary,
		Details:   r.Details,
		Perfdata:  r.Perfdata,
	}
}

// DecodeStateReport decodes and validates one report payload.
// Params: JSON document bytes.
// Returns: validated report or decode/validation error.
func DecodeStateReport(raw []byte) (StateReport, error) {
	var report StateReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return StateReport{}, fmt.Errorf("decode state report: %w", err)
	}
	if err := report.Validate(); err != nil {
		return StateReport{}, err
	}
	return report, nil
}

// DecodeStateReportBatch decodes and validates one batch of report payloads.
// Params: reader positioned at one JSON array of reports.
// Returns: validated reports slice or decode/validation error.
func DecodeStateReportBatch(reader *json.Decoder) ([]StateReport, error) {
	var reports []StateReport
	if err := reader.Decode(&reports); err != nil {
		return nil, fmt.Errorf("decode state report batch: %w", err)
	}
	if len(reports) == 0 {
		return nil, NewValidationError("batch", errors.New("batch must contain at least one report"))
	}
	for i := range reports {
		if err := reports[i].Validate(); err != nil {
			return nil, fmt.Errorf("report[%d]: %w", i, err)
		}
	}
	return reports, nil
}

// Validate validates one report against the ingestion contract.
// Params: report fields parsed from transport.
// Returns: validation error when the contract is violated.
func (r StateReport) Validate() error {
	if strings.TrimSpace(r.Entity) == "" {
		return NewValidationError("entity", errors.New("entity is required"))
	}
	if strings.TrimSpace(r.Check) == "" {
		return NewValidationError("check", errors.New("check is required"))
	}
	if !r.Condition.Valid() {
		return NewValidationError("condition", fmt.Errorf("unsupported condition %q", r.Condition))
	}
	if r.Timestamp <= 0 {
		return NewValidationError("timestamp", errors.New("timestamp must be >0 unix seconds"))
	}
	return nil
}

// StateEntry is one immutable record in a check's state history.
// Params: condition, unix-second timestamp, and report text fields.
// Returns: append-only history unit.
type StateEntry struct {
	Condition Condition `json:"condition"`
	Timestamp int64     `json:"timestamp"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"`
	Perfdata  string    `json:"perfdata,omitempty"`
}
