package templatefmt

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultAlertTemplate(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	message, err := renderer.Render(KindAlert, AlertContext{
		CheckID:   "web01:ssh",
		Condition: "critical",
		Summary:   "connection refused",
		Time:      "2025-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(message, "CRITICAL: web01:ssh") {
		t.Fatalf("unexpected alert message: %q", message)
	}
	if !strings.Contains(message, "connection refused") {
		t.Fatalf("summary missing from message: %q", message)
	}
}

func TestOverrideReplacesDefault(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer(map[string]string{
		"recovery": "all clear on {{.CheckID}}",
	})
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	message, err := renderer.Render(KindRecovery, AlertContext{CheckID: "web01:ssh"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if message != "all clear on web01:ssh" {
		t.Fatalf("override not applied: %q", message)
	}
}

func TestUnknownOverrideKindRejected(t *testing.T) {
	t.Parallel()

	if _, err := NewRenderer(map[string]string{"pager": "x"}); err == nil {
		t.Fatal("expected error for unknown template kind")
	}
}

func TestBrokenOverrideRejected(t *testing.T) {
	t.Parallel()

	if _, err := NewRenderer(map[string]string{"alert": "{{.CheckID"}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestAcknowledgementDuration(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	message, err := renderer.Render(KindAcknowledgement, AcknowledgementContext{
		CheckID:  "db01:disk",
		Summary:  "looking into it",
		Duration: 4 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(message, "4.0h") {
		t.Fatalf("expected formatted duration in %q", message)
	}
}

func TestRollupTemplate(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	message, err := renderer.Render(KindRollup, RollupContext{
		ContactName:   "oncall",
		CheckID:       "web02:http",
		AlertingCount: 5,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(message, "5 checks failing for oncall") {
		t.Fatalf("unexpected rollup message: %q", message)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Second, "1.5m"},
		{2 * time.Hour, "2.0h"},
		{45 * time.Second, "45.0s"},
		{-30 * time.Second, "30.0s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := FormatDuration("bogus"); got != "0.0s" {
		t.Fatalf("non-duration value: got %q", got)
	}
}
