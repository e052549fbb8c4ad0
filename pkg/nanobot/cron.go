package nanobot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"nanoweb/pkg/remote"
)

const cronRunTimeout = 60 * time.Second

// Schedule types understood by "nanobot cron add".
const (
	ScheduleEvery = "every"
	ScheduleCron  = "cron"
	ScheduleAt    = "at"
)

// AddJobRequest describes a job for "nanobot cron add".
// ScheduleValue is seconds for every, an expression for cron and an
// ISO-8601 timestamp for at.
type AddJobRequest struct {
	Name          string  `json:"name"`
	Message       string  `json:"message"`
	ScheduleType  string  `json:"schedule_type"`
	ScheduleValue any     `json:"schedule_value"`
	TZ            *string `json:"tz,omitempty"`
	Deliver       bool    `json:"deliver"`
	To            *string `json:"to,omitempty"`
	Channel       *string `json:"channel,omitempty"`
}

// fieldParser accepts exactly the five-field form "nanobot cron add --cron"
// takes. Descriptors and TZ prefixes are refused; the zone goes in --tz.
var fieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var atLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func invalidJob(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidJob, fmt.Sprintf(format, args...))
}

// scheduleString renders a JSON schedule value without float formatting.
func scheduleString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}

// Command validates req and builds the CLI invocation.
func (req AddJobRequest) Command() (string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", invalidJob("name is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", invalidJob("message is required")
	}

	var b strings.Builder
	b.WriteString("nanobot cron add --name ")
	b.WriteString(remote.ShellQuote(req.Name))
	b.WriteString(" --message ")
	b.WriteString(remote.ShellQuote(req.Message))

	value := scheduleString(req.ScheduleValue)
	switch req.ScheduleType {
	case ScheduleEvery:
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			return "", invalidJob("every must be a positive number of seconds, got %q", value)
		}
		b.WriteString(" --every ")
		b.WriteString(strconv.Itoa(secs))
	case ScheduleCron:
		if strings.HasPrefix(value, "TZ=") || strings.HasPrefix(value, "CRON_TZ=") {
			return "", invalidJob("cron expression %q: set the time zone with tz", value)
		}
		if _, err := fieldParser.Parse(value); err != nil {
			return "", invalidJob("cron expression %q: %v", value, err)
		}
		b.WriteString(" --cron ")
		b.WriteString(remote.ShellQuote(value))
		if req.TZ != nil && strings.TrimSpace(*req.TZ) != "" {
			tz := strings.TrimSpace(*req.TZ)
			if _, err := time.LoadLocation(tz); err != nil {
				return "", invalidJob("unknown time zone %q", tz)
			}
			b.WriteString(" --tz ")
			b.WriteString(remote.ShellQuote(tz))
		}
	case ScheduleAt:
		if !parsesAsTimestamp(value) {
			return "", invalidJob("at must be an ISO-8601 timestamp, got %q", value)
		}
		b.WriteString(" --at ")
		b.WriteString(remote.ShellQuote(value))
	default:
		return "", invalidJob("schedule_type must be every, cron or at, got %q", req.ScheduleType)
	}

	if req.Deliver {
		b.WriteString(" --deliver")
		if req.To != nil && *req.To != "" {
			b.WriteString(" --to ")
			b.WriteString(remote.ShellQuote(*req.To))
		}
		if req.Channel != nil && *req.Channel != "" {
			b.WriteString(" --channel ")
			b.WriteString(remote.ShellQuote(*req.Channel))
		}
	}
	return b.String(), nil
}

func parsesAsTimestamp(value string) bool {
	for _, layout := range atLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// ListJobs returns the "jobs" array of the cron file. A missing or
// unparsable file is an empty list.
func (m *Manager) ListJobs(ctx context.Context) ([]any, error) {
	raw, err := m.exec.ReadFile(ctx, m.paths.CronPath)
	if errors.Is(err, remote.ErrNotFound) {
		return []any{}, nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := DecodeDocument([]byte(raw))
	if err != nil {
		return []any{}, nil
	}
	jobs, ok := doc["jobs"].([]any)
	if !ok {
		return []any{}, nil
	}
	return jobs, nil
}

// AddJob registers a job through the nanobot CLI.
func (m *Manager) AddJob(ctx context.Context, req AddJobRequest) (string, error) {
	cmd, err := req.Command()
	if err != nil {
		return "", err
	}
	return m.cronCLI(ctx, cmd, 0)
}

// RemoveJob deletes a job.
func (m *Manager) RemoveJob(ctx context.Context, id string) (string, error) {
	if err := validateJobID(id); err != nil {
		return "", err
	}
	return m.cronCLI(ctx, "nanobot cron remove "+remote.ShellQuote(id), 0)
}

// ToggleJob enables or disables a job.
func (m *Manager) ToggleJob(ctx context.Context, id string, enabled bool) (string, error) {
	if err := validateJobID(id); err != nil {
		return "", err
	}
	cmd := "nanobot cron enable " + remote.ShellQuote(id)
	if !enabled {
		cmd += " --disable"
	}
	return m.cronCLI(ctx, cmd, 0)
}

// RunJob runs a job immediately, even when disabled.
func (m *Manager) RunJob(ctx context.Context, id string) (string, error) {
	if err := validateJobID(id); err != nil {
		return "", err
	}
	return m.cronCLI(ctx, "nanobot cron run "+remote.ShellQuote(id)+" --force", cronRunTimeout)
}

func validateJobID(id string) error {
	if strings.TrimSpace(id) == "" || strings.HasPrefix(id, "-") || strings.ContainsAny(id, "\x00\n\r") {
		return invalidJob("job id %q", id)
	}
	return nil
}

func (m *Manager) cronCLI(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	var (
		res *remote.Result
		err error
	)
	if timeout > 0 {
		res, err = m.exec.ExecTimeout(ctx, cmd, timeout)
	} else {
		res, err = m.exec.Exec(ctx, cmd)
	}
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", commandError(res.Stdout, res.Stderr, fmt.Sprintf("exit status %d", res.ExitCode))
	}
	return strings.TrimSpace(res.Stdout), nil
}
