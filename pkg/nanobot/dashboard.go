package nanobot

import (
	"context"
	"encoding/json"
	"sort"
)

// Dashboard is the overview page payload.
type Dashboard struct {
	Status        *Status        `json:"status"`
	ConfigSummary ConfigSummary  `json:"config_summary"`
	Channels      ChannelSummary `json:"channels"`
	Providers     ProviderStats  `json:"providers"`
	Tools         ToolSummary    `json:"tools"`
}

// ConfigSummary holds agents.defaults values as stored, with defaults
// for absent keys.
type ConfigSummary struct {
	Model       any `json:"model"`
	Provider    any `json:"provider"`
	MaxTokens   any `json:"max_tokens"`
	Temperature any `json:"temperature"`
	Workspace   any `json:"workspace"`
}

type ChannelSummary struct {
	Enabled []string `json:"enabled"`
	Total   int      `json:"total"`
}

type ProviderStats struct {
	Active []string `json:"active"`
	Total  int      `json:"total"`
}

type ToolSummary struct {
	MCPServers          []string `json:"mcp_servers"`
	RestrictToWorkspace any      `json:"restrict_to_workspace"`
}

// Dashboard combines Status with a summary of the config.
func (m *Manager) Dashboard(ctx context.Context) (*Dashboard, error) {
	st, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := m.configOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	d := Summarize(doc)
	d.Status = st
	return d, nil
}

// Summarize computes the config-derived part of the dashboard.
// Name lists are sorted.
func Summarize(doc Document) *Dashboard {
	channels := asObject(doc["channels"])
	providers := asObject(doc["providers"])
	tools := asObject(doc["tools"])
	defaults := asObject(asObject(doc["agents"])["defaults"])

	d := &Dashboard{
		ConfigSummary: ConfigSummary{
			Model:       lookup(defaults, "anthropic/claude-opus-4-5", "model"),
			Provider:    lookup(defaults, "auto", "provider"),
			MaxTokens:   lookup(defaults, json.Number("8192"), "maxTokens", "max_tokens"),
			Temperature: lookup(defaults, json.Number("0.1"), "temperature"),
			Workspace:   lookup(defaults, "~/.nanobot/workspace", "workspace"),
		},
		Channels:  ChannelSummary{Enabled: []string{}},
		Providers: ProviderStats{Active: []string{}},
		Tools: ToolSummary{
			MCPServers:          []string{},
			RestrictToWorkspace: lookup(tools, false, "restrictToWorkspace", "restrict_to_workspace"),
		},
	}

	for name, raw := range channels {
		ch, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		d.Channels.Total++
		if truthy(ch["enabled"]) {
			d.Channels.Enabled = append(d.Channels.Enabled, name)
		}
	}

	for name, raw := range providers {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		d.Providers.Total++
		if truthy(lookup(p, "", "apiKey", "api_key")) {
			d.Providers.Active = append(d.Providers.Active, name)
		}
	}

	for name := range asObject(lookup(tools, nil, "mcpServers", "mcp_servers")) {
		d.Tools.MCPServers = append(d.Tools.MCPServers, name)
	}

	sort.Strings(d.Channels.Enabled)
	sort.Strings(d.Providers.Active)
	sort.Strings(d.Tools.MCPServers)
	return d
}

func asObject(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Document:
		return m
	}
	return nil
}

// lookup returns the first present key, else fallback. A key that is present
// wins even when its value is null.
func lookup(obj map[string]any, fallback any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return fallback
}

// truthy follows JSON-ish truthiness: null, false, 0, "" and empty
// containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}
