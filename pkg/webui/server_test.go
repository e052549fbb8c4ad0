package webui

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nanoweb/pkg/remote"
	"nanoweb/pkg/version"
)

func TestLoginIssuesTokenAndMeReturnsSession(t *testing.T) {
	env := newTestEnv(t)

	var tok map[string]string
	code := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"host": "10.0.0.5", "port": 2222, "username": "admin", "password": "secret",
	}, &tok)
	if code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	if tok["token_type"] != "bearer" || tok["access_token"] == "" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	if len(env.remote.verified) != 1 || env.remote.verified[0].Password != "secret" {
		t.Fatalf("expected one verify with the given password, got %+v", env.remote.verified)
	}

	var me map[string]any
	if code := env.do(t, http.MethodGet, "/api/auth/me", tok["access_token"], nil, &me); code != http.StatusOK {
		t.Fatalf("me status = %d", code)
	}
	if me["host"] != "10.0.0.5" || me["username"] != "admin" || me["port"] != float64(2222) {
		t.Fatalf("unexpected me response: %+v", me)
	}
	if _, leaked := me["password"]; leaked {
		t.Fatalf("me must not expose the password")
	}
}

func TestLoginAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.SSH.DefaultHost = "10.9.9.9"

	if code := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"password": "pw"}, nil); code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	got := env.remote.verified[0]
	if got.Host != "10.9.9.9" || got.Port != 22 || got.Username != "root" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestLoginRejectsMissingPassword(t *testing.T) {
	env := newTestEnv(t)
	env.server.config.SSH.DefaultHost = "10.9.9.9"

	for _, req := range []map[string]any{
		{},
		{"host": "10.0.0.5", "username": "root", "password": ""},
	} {
		var body map[string]string
		code := env.do(t, http.MethodPost, "/api/auth/login", "", req, &body)
		if code != http.StatusBadRequest || body["detail"] != "Password is required" {
			t.Fatalf("request %+v: expected 400 Password is required, got %d %+v", req, code, body)
		}
	}
	if len(env.remote.verified) != 0 {
		t.Fatalf("verify must not run without a password, got %+v", env.remote.verified)
	}
}

func TestLoginRejectsMissingHost(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	code := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"username": "root"}, &body)
	if code != http.StatusBadRequest || body["detail"] != "Host is required" {
		t.Fatalf("expected 400 Host is required, got %d %+v", code, body)
	}
	if len(env.remote.verified) != 0 {
		t.Fatalf("verify must not run without a host")
	}
}

func TestLoginFailureIncludesSuggestions(t *testing.T) {
	env := newTestEnv(t)
	env.remote.verifyErr = &remote.DialError{Kind: remote.KindAuth, Host: "10.0.0.5", Port: 22}

	var body map[string]string
	code := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"host": "10.0.0.5", "username": "root", "password": "wrong",
	}, &body)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	want := "Authentication failed. Check username/password.\n\nSuggestions:\n" +
		"• Verify username and password are correct\n" +
		"• Check if SSH key authentication is required instead"
	if body["detail"] != want {
		t.Fatalf("detail = %q\nwant %q", body["detail"], want)
	}
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	env := newTestEnv(t)

	payloadless := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "root",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noPayload, err := payloadless.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		detail string
	}{
		{"missing", "", "Not authenticated"},
		{"garbage", "not-a-jwt", "Invalid or expired token"},
		{"missing claims", noPayload, "Invalid token payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body map[string]string
			code := env.do(t, http.MethodGet, "/api/dashboard", tc.token, nil, &body)
			if code != http.StatusUnauthorized || body["detail"] != tc.detail {
				t.Fatalf("expected 401 %q, got %d %+v", tc.detail, code, body)
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	if code := env.do(t, http.MethodPost, "/api/auth/logout", tok, nil, nil); code != http.StatusOK {
		t.Fatalf("logout status = %d", code)
	}

	var body map[string]string
	code := env.do(t, http.MethodGet, "/api/auth/me", tok, nil, &body)
	if code != http.StatusUnauthorized || body["detail"] != "Invalid or expired token" {
		t.Fatalf("revoked token still accepted: %d %+v", code, body)
	}
}

func TestConfigRoutes(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	var body map[string]any
	if code := env.do(t, http.MethodGet, "/api/config", tok, nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing config, got %d", code)
	}
	if body["detail"] != "Config file not found on server" {
		t.Fatalf("unexpected detail: %+v", body)
	}

	section := map[string]any{"data": map[string]any{"defaults": map[string]any{"model": "m1", "maxTokens": 4096}}}
	if code := env.do(t, http.MethodPut, "/api/config/agents", tok, section, nil); code != http.StatusOK {
		t.Fatalf("save section status = %d", code)
	}
	saved, ok := env.remote.file("~/.nanobot/config.json")
	if !ok || !strings.Contains(saved, `"maxTokens": 4096`) {
		t.Fatalf("config not written as expected:\n%s", saved)
	}

	var agents map[string]any
	if code := env.do(t, http.MethodGet, "/api/config/agents", tok, nil, &agents); code != http.StatusOK {
		t.Fatalf("get section status = %d", code)
	}
	defaults, _ := agents["defaults"].(map[string]any)
	if defaults["model"] != "m1" {
		t.Fatalf("unexpected section: %+v", agents)
	}

	body = nil
	if code := env.do(t, http.MethodGet, "/api/config/nope", tok, nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing section, got %d", code)
	}
	if body["detail"] != "Section 'nope' not found" {
		t.Fatalf("unexpected detail: %+v", body)
	}

	if code := env.do(t, http.MethodPut, "/api/providers/openai", tok, map[string]any{"data": map[string]any{"apiKey": "sk"}}, nil); code != http.StatusOK {
		t.Fatalf("save provider status = %d", code)
	}
	var providers map[string]any
	env.do(t, http.MethodGet, "/api/providers", tok, nil, &providers)
	if _, ok := providers["openai"]; !ok {
		t.Fatalf("provider not saved: %+v", providers)
	}

	opened, closed := env.remote.counts()
	if opened == 0 || opened != closed {
		t.Fatalf("every remote client must be closed: opened=%d closed=%d", opened, closed)
	}
}

func TestSaveConfigRequiresObject(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	code := env.do(t, http.MethodPut, "/api/config", env.token(t), map[string]any{"config": "nope"}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %+v", code, body)
	}
}

func TestSkillRoutes(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)
	env.remote.files["~/.nanobot/workspace/skills/demo/SKILL.md"] = "# demo"

	var body map[string]string
	code := env.do(t, http.MethodPost, "/api/skills", tok, map[string]string{"name": "demo", "content": "x"}, &body)
	if code != http.StatusConflict || body["detail"] != "Skill 'demo' already exists" {
		t.Fatalf("expected 409, got %d %+v", code, body)
	}

	body = nil
	code = env.do(t, http.MethodPost, "/api/skills", tok, map[string]string{"name": "fresh", "content": "# fresh"}, &body)
	if code != http.StatusOK || body["name"] != "fresh" {
		t.Fatalf("create skill: %d %+v", code, body)
	}
	if got, _ := env.remote.file("~/.nanobot/workspace/skills/fresh/SKILL.md"); got != "# fresh" {
		t.Fatalf("skill not written: %q", got)
	}

	body = nil
	code = env.do(t, http.MethodPost, "/api/skills", tok, map[string]string{"name": "../etc", "content": "x"}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal name, got %d", code)
	}

	body = nil
	code = env.do(t, http.MethodGet, "/api/skills/missing", tok, nil, &body)
	if code != http.StatusNotFound || body["detail"] != "Skill 'missing' not found" {
		t.Fatalf("expected 404, got %d %+v", code, body)
	}
}

func TestMemoryRejectsPathOutsideMemory(t *testing.T) {
	env := newTestEnv(t)

	code := env.do(t, http.MethodPut, "/api/memory", env.token(t), map[string]string{
		"path": "/etc/passwd", "content": "x",
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if _, ok := env.remote.file("/etc/passwd"); ok {
		t.Fatalf("file outside memory must not be written")
	}
}

func TestCronRoutes(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)
	env.remote.handler = func(cmd string) *remote.Result {
		switch {
		case strings.Contains(cmd, "cron add"):
			return &remote.Result{Stdout: "Added job abc123\n"}
		case strings.Contains(cmd, "cron remove"):
			return &remote.Result{Stderr: "Job not found", ExitCode: 1}
		}
		return nil
	}

	var body map[string]string
	code := env.do(t, http.MethodPost, "/api/cron", tok, map[string]any{
		"name": "daily", "message": "hi", "schedule_type": "every", "schedule_value": "soon",
	}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad schedule, got %d %+v", code, body)
	}

	body = nil
	code = env.do(t, http.MethodPost, "/api/cron", tok, map[string]any{
		"name": "daily", "message": "hi", "schedule_type": "every", "schedule_value": 3600,
	}, &body)
	if code != http.StatusOK || body["message"] != "Added job abc123" {
		t.Fatalf("add job: %d %+v", code, body)
	}

	body = nil
	code = env.do(t, http.MethodDelete, "/api/cron/abc123", tok, nil, &body)
	if code != http.StatusInternalServerError || body["detail"] != "Job not found" {
		t.Fatalf("expected 500 with stderr, got %d %+v", code, body)
	}

	var jobs []any
	if code := env.do(t, http.MethodGet, "/api/cron", tok, nil, &jobs); code != http.StatusOK || len(jobs) != 0 {
		t.Fatalf("expected empty job list, got %d %+v", code, jobs)
	}
}

func TestToggleCronRequiresEnabled(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	var body map[string]string
	code := env.do(t, http.MethodPut, "/api/cron/abc123/toggle", tok, map[string]any{}, &body)
	if code != http.StatusBadRequest || body["detail"] != "enabled is required" {
		t.Fatalf("expected 400 enabled is required, got %d %+v", code, body)
	}
	env.remote.mu.Lock()
	sent := len(env.remote.commands)
	env.remote.mu.Unlock()
	if sent != 0 {
		t.Fatalf("no command should run without enabled, got %v", env.remote.commands)
	}

	body = nil
	code = env.do(t, http.MethodPut, "/api/cron/abc123/toggle", tok, map[string]any{"enabled": false}, &body)
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("disable job: %d %+v", code, body)
	}
	env.remote.mu.Lock()
	last := env.remote.commands[len(env.remote.commands)-1]
	env.remote.mu.Unlock()
	if last != "nanobot cron enable 'abc123' --disable" {
		t.Fatalf("unexpected toggle command: %s", last)
	}
}

func TestTestConnectivity(t *testing.T) {
	env := newTestEnv(t)
	env.server.probe = func(ctx context.Context, host string, ports []int, timeout time.Duration) []remote.PortResult {
		out := make([]remote.PortResult, len(ports))
		for i, p := range ports {
			out[i] = remote.PortResult{Port: p, Open: p == 22 || p == 2222}
		}
		return out
	}

	var body map[string]string
	if code := env.do(t, http.MethodPost, "/api/test-connectivity", "", map[string]string{"host": " "}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty host, got %d", code)
	}

	var res struct {
		Host       string          `json:"host"`
		Results    map[string]bool `json:"results"`
		OpenPorts  []int           `json:"open_ports"`
		Suggestion string          `json:"suggestion"`
	}
	if code := env.do(t, http.MethodPost, "/api/test-connectivity", "", map[string]string{"host": "10.0.0.5"}, &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(res.Results) != len(remote.ConnectivityPorts) || !res.Results["22"] || res.Results["222"] {
		t.Fatalf("unexpected results: %+v", res.Results)
	}
	if res.Suggestion != "Try ports: 22, 2222" {
		t.Fatalf("suggestion = %q", res.Suggestion)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	var health map[string]string
	if code := env.do(t, http.MethodGet, "/api/health", "", nil, &health); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if health["status"] != "ok" || health["version"] != version.Version {
		t.Fatalf("unexpected health: %+v", health)
	}

	resp, err := env.http.Client().Get(env.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `nanoweb_http_requests_total{code="200",method="GET",route="/api/health"} 1`) {
		t.Fatalf("health request not counted:\n%s", data)
	}
}
