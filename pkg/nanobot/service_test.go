package nanobot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nanoweb/pkg/remote"
)

func TestLogsCommand(t *testing.T) {
	tests := []struct {
		lines int
		want  string
	}{
		{0, "-n 100 "},
		{50, "-n 50 "},
		{999999, "-n 5000 "},
	}
	for _, tc := range tests {
		exec := newFakeExec()
		if _, err := newTestManager(exec).Logs(context.Background(), tc.lines); err != nil {
			t.Fatalf("logs: %v", err)
		}
		cmd := exec.lastCommand()
		if !strings.HasPrefix(cmd, "journalctl -u 'nanobot' --no-pager "+tc.want) {
			t.Fatalf("unexpected logs command for %d: %s", tc.lines, cmd)
		}
		if !strings.HasSuffix(cmd, "|| echo 'No logs found'") {
			t.Fatalf("missing fallback: %s", cmd)
		}
	}
}

func TestRestartViaSystemctl(t *testing.T) {
	msg, err := newTestManager(newFakeExec()).Restart(context.Background())
	if err != nil || msg != "Restarted via systemctl" {
		t.Fatalf("unexpected result %q, %v", msg, err)
	}
}

func TestRestartFallsBackToNohup(t *testing.T) {
	exec := newFakeExec()
	exec.handler = func(cmd string) *remote.Result {
		switch {
		case strings.HasPrefix(cmd, "systemctl restart"):
			return &remote.Result{ExitCode: 5}
		case cmd == "command -v nanobot":
			return &remote.Result{ExitCode: 1}
		case strings.HasPrefix(cmd, "nohup "):
			return &remote.Result{Stdout: "31337\n"}
		}
		return nil
	}

	msg, err := newTestManager(exec).Restart(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if msg != "Started with PID 31337" {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := exec.lastCommand(); got != "nohup python3 -m nanobot gateway > '/tmp/nanobot.log' 2>&1 & echo $!" {
		t.Fatalf("unexpected launch command: %s", got)
	}
}

func TestRestartFailure(t *testing.T) {
	exec := newFakeExec()
	exec.handler = func(cmd string) *remote.Result {
		switch {
		case strings.HasPrefix(cmd, "systemctl restart"):
			return &remote.Result{ExitCode: 1}
		case strings.HasPrefix(cmd, "nohup "):
			return &remote.Result{ExitCode: 127, Stderr: "nohup: not found"}
		}
		return nil
	}

	_, err := newTestManager(exec).Restart(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Output != "nohup: not found" {
		t.Fatalf("expected CommandError with stderr, got %v", err)
	}
}

func TestChatReply(t *testing.T) {
	tests := []struct {
		name string
		res  remote.Result
		want string
	}{
		{"stdout", remote.Result{Stdout: "  Hello!\n"}, "Hello!"},
		{"no api key", remote.Result{ExitCode: 1, Stderr: "Error: No API key configured"}, noAPIKeyReply},
		{"failure", remote.Result{ExitCode: 124, Stderr: "timed out\n"}, "Error (124): timed out"},
		{"unknown failure", remote.Result{ExitCode: 2}, "Error (2): Unknown error"},
		{"stderr only", remote.Result{Stderr: "warning only"}, "warning only"},
		{"empty", remote.Result{}, "No response from nanobot."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.res
			if got := chatReply(&res); got != tc.want {
				t.Fatalf("chatReply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChatCommand(t *testing.T) {
	exec := newFakeExec()
	exec.handler = func(cmd string) *remote.Result {
		return &remote.Result{Stdout: "pong"}
	}

	reply, err := newTestManager(exec).Chat(context.Background(), "it's a test")
	if err != nil || reply != "pong" {
		t.Fatalf("unexpected reply %q, %v", reply, err)
	}
	want := `timeout 120 nanobot agent --message 'it'"'"'s a test' 2>/dev/null || ` +
		`timeout 120 python3 -m nanobot agent --message 'it'"'"'s a test' 2>/dev/null`
	if got := exec.lastCommand(); got != want {
		t.Fatalf("unexpected command:\n got %s\nwant %s", got, want)
	}
	if exec.timeouts[0] != 130*time.Second {
		t.Fatalf("expected 130s timeout, got %v", exec.timeouts[0])
	}
}
