package nanobot

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"nanoweb/pkg/remote"
)

func TestSummarize(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{
  "agents": {"defaults": {"model": "openai/gpt-4o", "max_tokens": 4096}},
  "channels": {
    "telegram": {"enabled": true},
    "discord": {"enabled": false},
    "slack": {"enabled": 1},
    "broken": "not an object"
  },
  "providers": {
    "openai": {"apiKey": "sk-1"},
    "anthropic": {"api_key": "sk-2"},
    "groq": {"apiKey": ""},
    "junk": 3
  },
  "tools": {"mcp_servers": {"fs": {}, "browser": {}}, "restrictToWorkspace": true}
}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	d := Summarize(doc)

	if !reflect.DeepEqual(d.Channels.Enabled, []string{"slack", "telegram"}) || d.Channels.Total != 3 {
		t.Fatalf("unexpected channels: %+v", d.Channels)
	}
	if !reflect.DeepEqual(d.Providers.Active, []string{"anthropic", "openai"}) || d.Providers.Total != 3 {
		t.Fatalf("unexpected providers: %+v", d.Providers)
	}
	if !reflect.DeepEqual(d.Tools.MCPServers, []string{"browser", "fs"}) || d.Tools.RestrictToWorkspace != true {
		t.Fatalf("unexpected tools: %+v", d.Tools)
	}
	if d.ConfigSummary.Model != "openai/gpt-4o" || d.ConfigSummary.MaxTokens != json.Number("4096") {
		t.Fatalf("unexpected summary: %+v", d.ConfigSummary)
	}
	if d.ConfigSummary.Provider != "auto" || d.ConfigSummary.Workspace != "~/.nanobot/workspace" {
		t.Fatalf("defaults not applied: %+v", d.ConfigSummary)
	}
}

func TestSummarizeEmptyConfig(t *testing.T) {
	d := Summarize(Document{})
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"model":"anthropic/claude-opus-4-5"`,
		`"max_tokens":8192`,
		`"temperature":0.1`,
		`"enabled":[]`,
		`"mcp_servers":[]`,
		`"restrict_to_workspace":false`,
	} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestStatus(t *testing.T) {
	exec := newFakeExec()
	exec.handler = func(cmd string) *remote.Result {
		switch cmd {
		case cmdPgrep:
			return &remote.Result{Stdout: "4242\n4243\n"}
		case cmdUptime:
			return &remote.Result{Stdout: "up 3 days\n"}
		case cmdUname:
			return &remote.Result{Stdout: "Linux 6.1.0 x86_64\n"}
		case cmdFree:
			return &remote.Result{Stdout: "7.7Gi 2.1Gi\n"}
		case cmdDisk:
			return &remote.Result{Stdout: ""}
		case cmdPython:
			return &remote.Result{Stdout: "Python 3.12.1\n"}
		}
		return nil
	}

	st, err := newTestManager(exec).Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Running || st.PID == nil || *st.PID != "4242" {
		t.Fatalf("unexpected process state: %+v", st)
	}
	if st.Uptime != "up 3 days" || st.System.OS != "Linux 6.1.0 x86_64" || st.System.Python != "Python 3.12.1" {
		t.Fatalf("unexpected system info: %+v", st.System)
	}
	if st.System.Memory == nil || st.System.Memory.Free != "?" || st.System.Memory.Used != "2.1Gi" {
		t.Fatalf("unexpected memory: %+v", st.System.Memory)
	}
	if st.System.Disk != nil {
		t.Fatalf("disk should be absent when df prints nothing: %+v", st.System.Disk)
	}
}

func TestStatusNotRunning(t *testing.T) {
	st, err := newTestManager(newFakeExec()).Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	out, _ := json.Marshal(st)
	if !strings.Contains(string(out), `"running":false,"pid":null`) {
		t.Fatalf("expected null pid, got %s", out)
	}
}
