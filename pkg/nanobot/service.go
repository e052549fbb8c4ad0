package nanobot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nanoweb/pkg/remote"
)

const (
	DefaultLogLines = 100
	MaxLogLines     = 5000
)

// ClampLogLines bounds a requested line count. Non-positive means default.
func ClampLogLines(n int) int {
	switch {
	case n <= 0:
		return DefaultLogLines
	case n > MaxLogLines:
		return MaxLogLines
	}
	return n
}

// Logs returns recent output from the journal, falling back to the log file.
func (m *Manager) Logs(ctx context.Context, lines int) (string, error) {
	n := strconv.Itoa(ClampLogLines(lines))
	cmd := "journalctl -u " + remote.ShellQuote(m.paths.ServiceName) + " --no-pager -n " + n + " 2>/dev/null" +
		" || tail -n " + n + " " + remote.QuotePath(m.paths.LogFile) + " 2>/dev/null" +
		" || echo 'No logs found'"
	res, err := m.exec.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Restart restarts nanobot through systemd, or kills and relaunches the
// gateway in the background when there is no unit.
func (m *Manager) Restart(ctx context.Context) (string, error) {
	res, err := m.exec.Exec(ctx, "systemctl restart "+remote.ShellQuote(m.paths.ServiceName)+" 2>/dev/null")
	if err != nil {
		return "", err
	}
	if res.ExitCode == 0 {
		return "Restarted via systemctl", nil
	}

	for _, cmd := range []string{
		"pkill -f 'nanobot' 2>/dev/null || true",
		"pkill -f 'python.*nanobot' 2>/dev/null || true",
	} {
		if _, err := m.exec.Exec(ctx, cmd); err != nil {
			return "", err
		}
	}

	launch := "python3 -m nanobot gateway"
	res, err = m.exec.Exec(ctx, "command -v nanobot")
	if err != nil {
		return "", err
	}
	if res.ExitCode == 0 {
		launch = "nanobot gateway"
	}

	res, err = m.exec.Exec(ctx, "nohup "+launch+" > "+remote.QuotePath(m.paths.LogFile)+" 2>&1 & echo $!")
	if err != nil {
		return "", err
	}
	pid := strings.TrimSpace(res.Stdout)
	if res.ExitCode == 0 && pid != "" {
		m.log.Info("Started nanobot gateway", zap.String("pid", pid))
		return fmt.Sprintf("Started with PID %s", pid), nil
	}
	return "", commandError("", res.Stderr, "Failed to start nanobot")
}

const (
	chatTimeout   = 130 * time.Second
	noAPIKeyReply = "Error: No API key configured. Please go to Settings/Config to add your provider API keys."
)

// Chat sends one message to the nanobot agent CLI and returns its reply.
// A failed agent run is reported in the reply text, not as an error.
func (m *Manager) Chat(ctx context.Context, message string) (string, error) {
	quoted := remote.ShellQuote(message)
	cmd := "timeout 120 nanobot agent --message " + quoted + " 2>/dev/null || " +
		"timeout 120 python3 -m nanobot agent --message " + quoted + " 2>/dev/null"

	res, err := m.exec.ExecTimeout(ctx, cmd, chatTimeout)
	if err != nil {
		return "", err
	}
	return chatReply(res), nil
}

func chatReply(res *remote.Result) string {
	if reply := strings.TrimSpace(res.Stdout); reply != "" {
		return reply
	}
	stderr := strings.TrimSpace(res.Stderr)
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "No API key configured") {
			return noAPIKeyReply
		}
		if stderr == "" {
			stderr = "Unknown error"
		}
		return fmt.Sprintf("Error (%d): %s", res.ExitCode, stderr)
	}
	if stderr != "" {
		return stderr
	}
	return "No response from nanobot."
}
