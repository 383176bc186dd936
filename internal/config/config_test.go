package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sentinel/internal/domain"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, t.TempDir(), "sentinel.toml", `
[service]
name = "monitoring"

[ingest.http]
enabled = true
`)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if cfg.Service.Mode != ServiceModeSingle {
		t.Fatalf("default mode = %q", cfg.Service.Mode)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Fatalf("default backend = %q", cfg.Store.Backend)
	}
	if cfg.Ingest.HTTP.Listen != ":8080" {
		t.Fatalf("default listen = %q", cfg.Ingest.HTTP.Listen)
	}
	if cfg.Ingest.NATS.Subject == "" || cfg.Queue.Stream == "" {
		t.Fatal("fixed stream routing keys must be derived")
	}
	if cfg.Notify.AckDurationSec != 4*60*60 {
		t.Fatalf("default ack duration = %d", cfg.Notify.AckDurationSec)
	}
}

func TestDirMergeLaterFragmentWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "10-base.toml", `
[ingest.http]
enabled = true
listen = ":9000"

[notify.telegram]
enabled = true
bot_token = "token"
chat_id = "42"
`)
	writeConfigFile(t, dir, "20-override.toml", `
[notify.telegram]
enabled = false
`)
	cfg, err := LoadSnapshot(Source{Dir: dir})
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if cfg.Ingest.HTTP.Listen != ":9000" {
		t.Fatalf("listen = %q", cfg.Ingest.HTTP.Listen)
	}
	if cfg.Notify.Telegram.Enabled {
		t.Fatal("explicit enabled = false in later fragment must win")
	}
	if cfg.Notify.Telegram.BotToken != "token" {
		t.Fatal("sibling telegram fields must survive the overlay")
	}
}

func TestContactsAccumulateAcrossFragments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, dir, "10-service.toml", `
[ingest.http]
enabled = true
`)
	writeConfigFile(t, dir, "20-ops.toml", `
[[contact]]
id = "ops"
name = "Ops"
  [[contact.medium]]
  transport = "email"
  address = "ops@example.com"
  interval_sec = 7200
`)
	writeConfigFile(t, dir, "30-dev.toml", `
[[contact]]
id = "dev"
name = "Dev"
  [[contact.medium]]
  transport = "telegram"
  address = "123"
`)
	cfg, err := LoadSnapshot(Source{Dir: dir})
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(cfg.Contact) != 2 {
		t.Fatalf("contacts = %d, want 2", len(cfg.Contact))
	}
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no ingest",
			body: `[service]
name = "x"`,
			want: "ingest",
		},
		{
			name: "bad mode",
			body: `[service]
mode = "sharded"

[ingest.http]
enabled = true`,
			want: "service.mode",
		},
		{
			name: "cluster without nats",
			body: `[service]
mode = "cluster"

[ingest.http]
enabled = true`,
			want: "cluster",
		},
		{
			name: "unknown transport",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"
  [[contact.medium]]
  transport = "carrier-pigeon"
  address = "roof"`,
			want: "transport",
		},
		{
			name: "throttled medium without interval",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"
  [[contact.medium]]
  transport = "sms"
  address = "+61400000000"`,
			want: "interval_sec",
		},
		{
			name: "pagerduty with interval",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"
  [[contact.medium]]
  transport = "pagerduty"
  address = "svc-key"
  interval_sec = 300`,
			want: "pagerduty",
		},
		{
			name: "rule references unowned medium",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"
  [[contact.medium]]
  transport = "telegram"
  address = "42"
  [[contact.rule]]
  critical_media = ["sms"]`,
			want: "does not own",
		},
		{
			name: "unknown weekday",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"
  [[contact.medium]]
  transport = "telegram"
  address = "42"
  [[contact.rule]]
  critical_media = ["telegram"]
    [[contact.rule.time_restriction]]
    weekdays = ["funday"]
    start_sec = 0
    duration_sec = 3600`,
			want: "weekday",
		},
		{
			name: "duplicate contact",
			body: `[ingest.http]
enabled = true

[[contact]]
id = "ops"

[[contact]]
id = "ops"`,
			want: "more than once",
		},
		{
			name: "broken template override",
			body: `[ingest.http]
enabled = true

[notify.templates]
alert = "{{.Broken"`,
			want: "notify.templates",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfigFile(t, t.TempDir(), "bad.toml", tc.body)
			_, err := LoadSnapshot(Source{File: path})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestToContactsConversion(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, t.TempDir(), "contacts.toml", `
[ingest.http]
enabled = true

[[contact]]
id = "ops"
name = "Ops"
timezone = "Australia/Sydney"
  [[contact.medium]]
  transport = "email"
  address = "ops@example.com"
  interval_sec = 7200
  rollup_threshold = 3
  [[contact.medium]]
  transport = "telegram"
  address = "42"
  [[contact.rule]]
  entities = ["web01"]
  tags = ["database"]
  warning_media = ["email"]
  critical_media = ["email", "telegram"]
  blackhole_warning = true
    [[contact.rule.time_restriction]]
    weekdays = ["monday", "tuesday", "wednesday", "thursday", "friday"]
    start_sec = 28800
    duration_sec = 36000
`)
	cfg, err := LoadSnapshot(Source{File: path})
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	contacts, err := cfg.ToContacts()
	if err != nil {
		t.Fatalf("ToContacts: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("contacts = %d", len(contacts))
	}
	contact := contacts[0]
	if contact.Location == nil || contact.Location.String() != "Australia/Sydney" {
		t.Fatalf("location = %v", contact.Location)
	}
	if len(contact.Media) != 2 {
		t.Fatalf("media = %d", len(contact.Media))
	}
	if contact.Media[0].RollupThreshold != 3 {
		t.Fatalf("rollup threshold = %d", contact.Media[0].RollupThreshold)
	}
	if len(contact.Rules) != 1 {
		t.Fatalf("rules = %d", len(contact.Rules))
	}
	rule := contact.Rules[0]
	if !rule.Blackhole[domain.SeverityWarning] || rule.Blackhole[domain.SeverityCritical] {
		t.Fatal("blackhole flags not mapped per severity")
	}
	if len(rule.Media[domain.SeverityCritical]) != 2 {
		t.Fatalf("critical media = %v", rule.Media[domain.SeverityCritical])
	}
	if len(rule.Restrictions) != 1 {
		t.Fatalf("restrictions = %d", len(rule.Restrictions))
	}
	if !rule.Restrictions[0].Weekdays[time.Monday] || rule.Restrictions[0].Weekdays[time.Sunday] {
		t.Fatal("weekday set not mapped")
	}
	if rule.Restrictions[0].StartOffset != 28800 || rule.Restrictions[0].Duration != 36000 {
		t.Fatal("restriction offsets not mapped")
	}
}
