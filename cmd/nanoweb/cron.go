package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"nanoweb/pkg/nanobot"
)

var (
	cronName    string
	cronMessage string
	cronEvery   int
	cronExpr    string
	cronAt      string
	cronTZ      string
	cronDeliver bool
	cronTo      string
	cronChannel string
	cronOutput  string
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage nanobot scheduled jobs",
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE: withClient(func(ctx context.Context, env *clientEnv) error {
		jobs, err := env.client.CronJobs(ctx)
		if err != nil {
			return err
		}
		if cronOutput != "" {
			return writeValue(stdout, cronOutput, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(stdout, "No scheduled jobs found")
			return nil
		}
		return writeJobTable(stdout, jobs, time.Local)
	}),
}

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add a scheduled job. Exactly one of --every, --cron or --at is required.

Examples:
  nanoweb cron add --name report --message "daily report" --cron "0 9 * * *" --tz Europe/Berlin
  nanoweb cron add --name ping --message "ping" --every 3600
  nanoweb cron add --name once --message "hello" --at 2026-12-31T23:59:59 --deliver --channel telegram --to 12345`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := cronRequestFromFlags()
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, env *clientEnv) error {
			res, err := env.client.AddCronJob(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, statusText(res.Message, "Job added"))
			return nil
		})(cmd, args)
	},
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: cronIDAction(func(ctx context.Context, env *clientEnv, id string) (string, error) {
		res, err := env.client.RemoveCronJob(ctx, id)
		if err != nil {
			return "", err
		}
		return statusText(res.Message, "Job removed"), nil
	}),
}

var cronEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  cronToggle(true),
}

var cronDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  cronToggle(false),
}

var cronRunCmd = &cobra.Command{
	Use:   "run <id>",
	Short: "Run a job now, even when disabled",
	Args:  cobra.ExactArgs(1),
	RunE: cronIDAction(func(ctx context.Context, env *clientEnv, id string) (string, error) {
		fmt.Fprintln(stdout, "Executing job...")
		res, err := env.client.RunCronJob(ctx, id)
		if err != nil {
			return "", err
		}
		return statusText(res.Message, "Job executed"), nil
	}),
}

func init() {
	cronListCmd.Flags().StringVarP(&cronOutput, "output", "o", "", "print raw jobs as json or yaml")

	f := cronAddCmd.Flags()
	f.StringVar(&cronName, "name", "", "job name")
	f.StringVarP(&cronMessage, "message", "m", "", "message sent to the agent")
	f.IntVar(&cronEvery, "every", 0, "run every N seconds")
	f.StringVar(&cronExpr, "cron", "", "cron expression, e.g. \"0 9 * * *\"")
	f.StringVar(&cronAt, "at", "", "run once at an ISO-8601 time")
	f.StringVar(&cronTZ, "tz", "", "time zone for --cron")
	f.BoolVar(&cronDeliver, "deliver", false, "deliver the response to a channel")
	f.StringVar(&cronTo, "to", "", "recipient for --deliver")
	f.StringVar(&cronChannel, "channel", "", "channel for --deliver")
	cronAddCmd.MarkFlagsMutuallyExclusive("every", "cron", "at")

	cronCmd.AddCommand(cronListCmd, cronAddCmd, cronRemoveCmd, cronEnableCmd, cronDisableCmd, cronRunCmd)
	rootCmd.AddCommand(cronCmd)
}

func cronIDAction(fn func(ctx context.Context, env *clientEnv, id string) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, env *clientEnv) error {
			msg, err := fn(ctx, env, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, msg)
			return nil
		})(cmd, args)
	}
}

func cronToggle(enabled bool) func(*cobra.Command, []string) error {
	return cronIDAction(func(ctx context.Context, env *clientEnv, id string) (string, error) {
		res, err := env.client.ToggleCronJob(ctx, id, enabled)
		if err != nil {
			return "", err
		}
		fallback := "Job disabled"
		if enabled {
			fallback = "Job enabled"
		}
		return statusText(res.Message, fallback), nil
	})
}

func statusText(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}

func cronRequestFromFlags() (nanobot.AddJobRequest, error) {
	req := nanobot.AddJobRequest{
		Name:    cronName,
		Message: cronMessage,
		Deliver: cronDeliver,
	}
	switch {
	case cronEvery > 0:
		req.ScheduleType = nanobot.ScheduleEvery
		req.ScheduleValue = cronEvery
	case cronExpr != "":
		req.ScheduleType = nanobot.ScheduleCron
		req.ScheduleValue = cronExpr
		if cronTZ != "" {
			req.TZ = &cronTZ
		}
	case cronAt != "":
		req.ScheduleType = nanobot.ScheduleAt
		req.ScheduleValue = cronAt
	default:
		return req, fmt.Errorf("one of --every, --cron or --at is required")
	}
	if cronDeliver {
		if cronTo != "" {
			req.To = &cronTo
		}
		if cronChannel != "" {
			req.Channel = &cronChannel
		}
	}
	// Validate locally so obvious mistakes never reach the host.
	if _, err := req.Command(); err != nil {
		return req, err
	}
	return req, nil
}

func writeJobTable(w io.Writer, jobs []map[string]any, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tSCHEDULE\tNEXT RUN\tLAST RUN\tLAST STATUS")
	for _, job := range jobs {
		schedule := objectField(job, "schedule")
		state := objectField(job, "state")
		lastStatus := stringField(state, "lastStatus")
		if lastStatus == "" {
			lastStatus = "None"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			stringField(job, "id"),
			stringField(job, "name"),
			yesNo(job["enabled"] == true),
			formatSchedule(schedule, loc),
			formatMillis(state["nextRunAtMs"], loc),
			formatMillis(state["lastRunAtMs"], loc),
			lastStatus,
		)
	}
	return tw.Flush()
}

// formatSchedule renders a job's schedule record the way the web console
// shows it.
func formatSchedule(schedule map[string]any, loc *time.Location) string {
	kind := stringField(schedule, "kind")
	switch kind {
	case nanobot.ScheduleEvery:
		ms, _ := numberField(schedule["everyMs"])
		return "Every " + strconv.FormatFloat(ms/1000, 'f', -1, 64) + "s"
	case nanobot.ScheduleCron:
		expr := stringField(schedule, "expr")
		if tz := stringField(schedule, "tz"); tz != "" {
			return expr + " (" + tz + ")"
		}
		return expr
	case nanobot.ScheduleAt:
		return "One-time (at " + formatMillis(schedule["atMs"], loc) + ")"
	}
	return kind
}

func formatMillis(v any, loc *time.Location) string {
	ms, ok := numberField(v)
	if !ok || ms == 0 {
		return "Never"
	}
	return time.UnixMilli(int64(ms)).In(loc).Format("2006-01-02 15:04:05")
}

func numberField(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func objectField(obj map[string]any, key string) map[string]any {
	if m, ok := obj[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
