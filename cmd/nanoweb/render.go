package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"nanoweb/pkg/console"
	"nanoweb/pkg/nanobot"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// stdout is where commands print; tests swap it.
var stdout io.Writer = os.Stdout

// Output formats accepted by -o.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func writeValue(w io.Writer, format string, v any) error {
	switch format {
	case "", formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		out, err := yaml.Marshal(normalizeNumbers(v))
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	return fmt.Errorf("unknown output format %q (json or yaml)", format)
}

// normalizeNumbers turns json.Number values into int64 or float64 so YAML
// does not quote them.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeNumbers(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeNumbers(val)
		}
		return out
	}
	return v
}

// readDataFile loads a JSON or YAML object from path, or from stdin when
// path is "-".
func readDataFile(path string) (map[string]any, error) {
	raw, err := readInput(path)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("an input file is required (-f FILE, or -f - for stdin)")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func decodeObject(raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("input is empty")
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
		return obj, nil
	}

	var obj map[string]any
	if err := yaml.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if obj == nil {
		return nil, errors.New("input must be an object")
	}
	return obj, nil
}

func badge(ok bool, yes, no string) string {
	if ok {
		return okStyle.Render(yes)
	}
	return badStyle.Render(no)
}

func row(label string, value any) string {
	return labelStyle.Render(label) + " " + display(value)
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		if t == "" {
			return "-"
		}
		return t
	case []string:
		if len(t) == 0 {
			return "none"
		}
		return strings.Join(t, ", ")
	}
	return fmt.Sprint(v)
}

func renderDashboard(d *nanobot.Dashboard, info *console.ServerInfo) string {
	var b strings.Builder

	title := "nanobot"
	if info != nil {
		title = fmt.Sprintf("nanobot on %s@%s:%d", info.Username, info.Host, info.Port)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	var status []string
	if st := d.Status; st != nil {
		pid := "-"
		if st.PID != nil {
			pid = *st.PID
		}
		status = append(status,
			row("Process", badge(st.Running, "running", "stopped")),
			row("PID", pid),
			row("Uptime", st.Uptime),
			row("OS", st.System.OS),
			row("Python", st.System.Python),
		)
		if mem := st.System.Memory; mem != nil {
			status = append(status, row("Memory", fmt.Sprintf("%s used of %s (%s free)", mem.Used, mem.Total, mem.Free)))
		}
		if disk := st.System.Disk; disk != nil {
			status = append(status, row("Disk", fmt.Sprintf("%s used of %s (%s)", disk.Used, disk.Total, disk.Usage)))
		}
	}

	summary := []string{
		row("Model", d.ConfigSummary.Model),
		row("Provider", d.ConfigSummary.Provider),
		row("Max tokens", d.ConfigSummary.MaxTokens),
		row("Temperature", d.ConfigSummary.Temperature),
		row("Workspace", d.ConfigSummary.Workspace),
		row("Channels", fmt.Sprintf("%s (%d configured)", display(d.Channels.Enabled), d.Channels.Total)),
		row("Providers", fmt.Sprintf("%s (%d configured)", display(d.Providers.Active), d.Providers.Total)),
		row("MCP servers", d.Tools.MCPServers),
		row("Restricted", d.Tools.RestrictToWorkspace),
	}

	boxes := []string{boxStyle.Render(strings.Join(summary, "\n"))}
	if len(status) > 0 {
		boxes = append([]string{boxStyle.Render(strings.Join(status, "\n"))}, boxes...)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")
	return b.String()
}

func renderConnectivity(res *console.Connectivity) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Connectivity for " + res.Host))
	b.WriteString("\n")

	ports := make([]int, 0, len(res.Results))
	for p := range res.Results {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		ports = append(ports, n)
	}
	sort.Ints(ports)
	for _, p := range ports {
		open := res.Results[strconv.Itoa(p)]
		fmt.Fprintf(&b, "  %-6d %s\n", p, badge(open, "open", "closed"))
	}
	if res.Suggestion != "" {
		b.WriteString(res.Suggestion)
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
