package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"nanoweb/pkg/nanobot"
)

func TestCronCommand_RegistersRunSubcommand(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"cron", "run", "job-123"})
	if err != nil {
		t.Fatalf("find cron run command: %v", err)
	}
	if cmd == nil {
		t.Fatal("expected command, got nil")
	}
	if got, want := cmd.Name(), "run"; got != want {
		t.Fatalf("expected command name %q, got %q", want, got)
	}
	if got, want := cmd.Parent(), cronCmd; got != want {
		t.Fatalf("expected parent command %q, got %q", want.Name(), got.Name())
	}
}

func TestCronRunCommand_RequiresExactlyOneArg(t *testing.T) {
	if err := cronRunCmd.Args(cronRunCmd, []string{}); err == nil {
		t.Fatal("expected args validation error for empty args")
	}
	if err := cronRunCmd.Args(cronRunCmd, []string{"job-123", "extra"}); err == nil {
		t.Fatal("expected args validation error for extra args")
	}
	if err := cronRunCmd.Args(cronRunCmd, []string{"job-123"}); err != nil {
		t.Fatalf("expected valid args, got error: %v", err)
	}
}

func resetCronFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		cronName, cronMessage = "", ""
		cronEvery = 0
		cronExpr, cronAt, cronTZ = "", "", ""
		cronDeliver = false
		cronTo, cronChannel = "", ""
	}
	reset()
	t.Cleanup(reset)
}

func TestCronRequestFromFlags(t *testing.T) {
	t.Run("every", func(t *testing.T) {
		resetCronFlags(t)
		cronName, cronMessage, cronEvery = "ping", "ping", 60

		req, err := cronRequestFromFlags()
		if err != nil {
			t.Fatalf("cronRequestFromFlags: %v", err)
		}
		if req.ScheduleType != nanobot.ScheduleEvery || req.ScheduleValue != 60 {
			t.Fatalf("unexpected schedule %q %v", req.ScheduleType, req.ScheduleValue)
		}
	})

	t.Run("cron with tz and delivery", func(t *testing.T) {
		resetCronFlags(t)
		cronName, cronMessage = "report", "daily report"
		cronExpr, cronTZ = "0 9 * * *", "UTC"
		cronDeliver, cronChannel, cronTo = true, "telegram", "12345"

		req, err := cronRequestFromFlags()
		if err != nil {
			t.Fatalf("cronRequestFromFlags: %v", err)
		}
		if req.TZ == nil || *req.TZ != "UTC" {
			t.Fatalf("expected tz UTC, got %v", req.TZ)
		}
		if req.Channel == nil || *req.Channel != "telegram" || req.To == nil || *req.To != "12345" {
			t.Fatalf("expected delivery target, got %+v", req)
		}
	})

	t.Run("no schedule", func(t *testing.T) {
		resetCronFlags(t)
		cronName, cronMessage = "x", "y"
		if _, err := cronRequestFromFlags(); err == nil {
			t.Fatal("expected error without a schedule")
		}
	})

	t.Run("bad expression", func(t *testing.T) {
		resetCronFlags(t)
		cronName, cronMessage, cronExpr = "x", "y", "not a cron"
		_, err := cronRequestFromFlags()
		if !errors.Is(err, nanobot.ErrInvalidJob) {
			t.Fatalf("expected ErrInvalidJob, got %v", err)
		}
	})
}

func TestFormatSchedule(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		schedule map[string]any
		want     string
	}{
		{"every", map[string]any{"kind": "every", "everyMs": json.Number("3600000")}, "Every 3600s"},
		{"every fraction", map[string]any{"kind": "every", "everyMs": json.Number("1500")}, "Every 1.5s"},
		{"cron", map[string]any{"kind": "cron", "expr": "0 9 * * *"}, "0 9 * * *"},
		{"cron tz", map[string]any{"kind": "cron", "expr": "0 9 * * *", "tz": "Europe/Berlin"}, "0 9 * * * (Europe/Berlin)"},
		{"at", map[string]any{"kind": "at", "atMs": json.Number("1767323045000")}, "One-time (at " + at.Format("2006-01-02 15:04:05") + ")"},
		{"unknown", map[string]any{"kind": "weekly"}, "weekly"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatSchedule(tc.schedule, time.UTC); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFormatMillisNever(t *testing.T) {
	for _, v := range []any{nil, json.Number("0"), "soon"} {
		if got := formatMillis(v, time.UTC); got != "Never" {
			t.Fatalf("expected Never for %v, got %q", v, got)
		}
	}
}

func TestWriteJobTable(t *testing.T) {
	jobs := []map[string]any{
		{
			"id":       "abc123",
			"name":     "daily",
			"enabled":  true,
			"schedule": map[string]any{"kind": "cron", "expr": "0 9 * * *"},
			"state":    map[string]any{"lastStatus": "ok"},
		},
		{
			"id":       "def456",
			"name":     "paused",
			"enabled":  false,
			"schedule": map[string]any{"kind": "every", "everyMs": json.Number("60000")},
		},
	}

	var buf bytes.Buffer
	if err := writeJobTable(&buf, jobs, time.UTC); err != nil {
		t.Fatalf("writeJobTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("expected header first, got %q", lines[0])
	}
	for _, want := range []string{"abc123", "daily", "yes", "0 9 * * *", "ok"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("expected %q in %q", want, lines[1])
		}
	}
	for _, want := range []string{"def456", "no", "Every 60s", "Never", "None"} {
		if !strings.Contains(lines[2], want) {
			t.Fatalf("expected %q in %q", want, lines[2])
		}
	}
}
