package domain

// CheckInfo is the registry snapshot of one monitored check.
// Params: identity, tag set, and derived lifecycle flags.
// Returns: check metadata owned by the check registry.
type CheckInfo struct {
	ID      string   `json:"id"`
	Entity  string   `json:"entity"`
	Name    string   `json:"name"`
	Tags    []string `json:"tags,omitempty"`
	Enabled bool     `json:"enabled"`
	Failing bool     `json:"failing"`
	AckHash string   `json:"ack_hash,omitempty"`
}
