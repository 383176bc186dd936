package templatefmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Kind identifies one outbound message template.
// Params: alert/recovery/acknowledgement/rollup/test constants.
// Returns: template selector for the renderer.
type Kind string

const (
	// KindAlert renders one problem notification.
	KindAlert Kind = "alert"
	// KindRecovery renders one recovery notification.
	KindRecovery Kind = "recovery"
	// KindAcknowledgement renders one acknowledgement notification.
	KindAcknowledgement Kind = "acknowledgement"
	// KindRollup renders one batched summary notification.
	KindRollup Kind = "rollup"
	// KindRollupRecovery renders the all-clear after a rollup.
	KindRollupRecovery Kind = "rollup_recovery"
	// KindTest renders one test notification.
	KindTest Kind = "test"
)

// Kinds lists all template kinds in stable order.
// Params: none.
// Returns: kind slice for config validation.
func Kinds() []Kind {
	return []Kind{KindAlert, KindRecovery, KindAcknowledgement, KindRollup, KindRollupRecovery, KindTest}
}

var defaultBodies = map[Kind]string{
	KindAlert:           "{{.Condition | upper}}: {{.CheckID}} at {{.Time}} - {{.Summary}}",
	KindRecovery:        "RECOVERY: {{.CheckID}} at {{.Time}} - {{.Summary}}",
	KindAcknowledgement: "ACKNOWLEDGEMENT: {{.CheckID}} by {{.Summary}} ({{fmtDuration .Duration}})",
	KindRollup:          "{{.AlertingCount}} checks failing for {{.ContactName}} (latest: {{.CheckID}})",
	KindRollupRecovery:  "All clear for {{.ContactName}}: {{.AlertingCount}} checks still failing",
	KindTest:            "TEST: {{.CheckID}} - {{.Summary}}",
}

// AlertContext feeds alert, recovery, and test templates.
// Params: check identity and transition fields.
// Returns: typed template binding.
type AlertContext struct {
	CheckID   string
	Entity    string
	CheckName string
	Condition string
	Summary   string
	Details   string
	Time      string
}

// AcknowledgementContext feeds acknowledgement templates.
// Params: check identity and acknowledgement metadata.
// Returns: typed template binding.
type AcknowledgementContext struct {
	CheckID  string
	Summary  string
	Duration time.Duration
}

// RollupContext feeds rollup summary templates.
// Params: contact identity and alerting-check counters.
// Returns: typed template binding.
type RollupContext struct {
	ContactName   string
	CheckID       string
	AlertingCount int
}

// Renderer renders outbound messages from per-kind templates.
// Params: compiled templates keyed by kind.
// Returns: pure rendering behavior; no I/O.
type Renderer struct {
	templates map[Kind]*template.Template
}

// NewRenderer compiles defaults merged with configured overrides.
// Params: raw template bodies keyed by kind name; unknown kinds rejected.
// Returns: renderer or compile error.
func NewRenderer(overrides map[string]string) (*Renderer, error) {
	bodies := make(map[Kind]string, len(defaultBodies))
	for kind, body := range defaultBodies {
		bodies[kind] = body
	}
	for name, body := range overrides {
		kind := Kind(name)
		if _, ok := defaultBodies[kind]; !ok {
			return nil, fmt.Errorf("unknown template kind %q", name)
		}
		bodies[kind] = body
	}

	templates := make(map[Kind]*template.Template, len(bodies))
	for kind, body := range bodies {
		compiled, err := ParseNotificationTemplate(string(kind), body)
		if err != nil {
			return nil, fmt.Errorf("compile %s template: %w", kind, err)
		}
		templates[kind] = compiled
	}
	return &Renderer{templates: templates}, nil
}

// Render executes one kind's template against its typed context.
// Params: template kind and context struct for that kind.
// Returns: rendered message or execution error.
func (r *Renderer) Render(kind Kind, context any) (string, error) {
	compiled, ok := r.templates[kind]
	if !ok {
		return "", fmt.Errorf("no template for kind %q", kind)
	}
	var builder strings.Builder
	if err := compiled.Execute(&builder, context); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return builder.String(), nil
}

// FuncMap returns shared notification template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtDuration": FormatDuration,
		"json":        MarshalJSON,
		"upper":       strings.ToUpper,
	}
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: template value expected as time.Duration or *time.Duration.
// Returns: formatted duration string.
func FormatDuration(value any) string {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed == nil {
			return "0.0s"
		}
		duration = *typed
	default:
		return "0.0s"
	}

	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// MarshalJSON renders value into JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
