package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nanoweb/pkg/nanobot"
)

// ErrUnauthorized is matched by every 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// Is makes 401 responses match ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ServerInfo identifies the session behind the current token.
type ServerInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
}

// LoginRequest holds SSH credentials. Empty fields use the gateway defaults.
type LoginRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// StatusResponse is the {status, message} reply of write operations.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Connectivity is the result of a port probe.
type Connectivity struct {
	Host       string          `json:"host"`
	Results    map[string]bool `json:"results"`
	OpenPorts  []int           `json:"open_ports"`
	Suggestion string          `json:"suggestion"`
}

// Health is the gateway liveness reply.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Client calls the gateway REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, tokens *TokenStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Chat and cron runs can take minutes on the remote side.
		http:   &http.Client{Timeout: 3 * time.Minute},
		tokens: tokens,
	}
}

// BaseURL returns the gateway URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens returns the token store used for requests.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.tokens.Get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.tokens.Clear()
		return &APIError{Status: resp.StatusCode, Detail: errorDetail(resp, data, "Unauthorized")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: errorDetail(resp, data, "")}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorDetail picks detail, then message, then error from a JSON body,
// falling back to the status text.
func errorDetail(resp *http.Response, data []byte, fallback string) string {
	var body map[string]any
	if json.Unmarshal(data, &body) == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// Auth

// Login verifies the credentials and stores the returned token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	var tok Token
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &tok); err != nil {
		return nil, err
	}
	if err := c.tokens.Set(tok.AccessToken); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Logout revokes the token on the gateway and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Dashboard

func (c *Client) Dashboard(ctx context.Context) (*nanobot.Dashboard, error) {
	var d nanobot.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Config

func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var doc map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) UpdateConfig(ctx context.Context, doc map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/config", map[string]any{"config": doc}, nil)
}

func (c *Client) ConfigSection(ctx context.Context, section string) (any, error) {
	var data any
	if err := c.do(ctx, http.MethodGet, "/api/config/"+url.PathEscape(section), nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) UpdateConfigSection(ctx context.Context, section string, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/config/"+url.PathEscape(section), map[string]any{"data": data}, nil)
}

// Channels and providers

func (c *Client) Channels(ctx context.Context) (map[string]any, error) {
	return c.object(ctx, "/api/channels")
}

func (c *Client) UpdateChannel(ctx context.Context, name string, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/channels/"+url.PathEscape(name), map[string]any{"data": data}, nil)
}

func (c *Client) Providers(ctx context.Context) (map[string]any, error) {
	return c.object(ctx, "/api/providers")
}

func (c *Client) UpdateProvider(ctx context.Context, name string, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/providers/"+url.PathEscape(name), map[string]any{"data": data}, nil)
}

// Agents

func (c *Client) Agents(ctx context.Context) (*nanobot.Agents, error) {
	var a nanobot.Agents
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) UpdateAgentsMD(ctx context.Context, content string) error {
	return c.do(ctx, http.MethodPut, "/api/agents/md", map[string]string{"content": content}, nil)
}

func (c *Client) UpdateAgentsConfig(ctx context.Context, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/agents/config", map[string]any{"data": data}, nil)
}

// Skills

func (c *Client) Skills(ctx context.Context) ([]nanobot.Skill, error) {
	var out struct {
		Skills []nanobot.Skill `json:"skills"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/skills", nil, &out); err != nil {
		return nil, err
	}
	return out.Skills, nil
}

func (c *Client) Skill(ctx context.Context, name string) (*nanobot.Skill, error) {
	var s nanobot.Skill
	if err := c.do(ctx, http.MethodGet, "/api/skills/"+url.PathEscape(name), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSkill(ctx context.Context, name, content string) error {
	return c.do(ctx, http.MethodPut, "/api/skills/"+url.PathEscape(name), map[string]string{"content": content}, nil)
}

func (c *Client) CreateSkill(ctx context.Context, name, content string) error {
	return c.do(ctx, http.MethodPost, "/api/skills", map[string]string{"name": name, "content": content}, nil)
}

// Tools

func (c *Client) Tools(ctx context.Context) (map[string]any, error) {
	return c.object(ctx, "/api/tools")
}

func (c *Client) UpdateTools(ctx context.Context, data map[string]any) error {
	return c.do(ctx, http.MethodPut, "/api/tools", map[string]any{"data": data}, nil)
}

// Memory

func (c *Client) Memory(ctx context.Context) ([]nanobot.MemoryFile, error) {
	var out struct {
		Files []nanobot.MemoryFile `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/memory", nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) UpdateMemory(ctx context.Context, path, content string) error {
	return c.do(ctx, http.MethodPut, "/api/memory", map[string]string{"path": path, "content": content}, nil)
}

// Logs

func (c *Client) Logs(ctx context.Context, lines int) (string, error) {
	var out struct {
		Logs string `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/logs?lines="+strconv.Itoa(lines), nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

// Cron

func (c *Client) CronJobs(ctx context.Context) ([]map[string]any, error) {
	var jobs []map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/cron", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) AddCronJob(ctx context.Context, req nanobot.AddJobRequest) (*StatusResponse, error) {
	return c.status(ctx, http.MethodPost, "/api/cron", req)
}

func (c *Client) RemoveCronJob(ctx context.Context, id string) (*StatusResponse, error) {
	return c.status(ctx, http.MethodDelete, "/api/cron/"+url.PathEscape(id), nil)
}

func (c *Client) ToggleCronJob(ctx context.Context, id string, enabled bool) (*StatusResponse, error) {
	return c.status(ctx, http.MethodPut, "/api/cron/"+url.PathEscape(id)+"/toggle", map[string]bool{"enabled": enabled})
}

func (c *Client) RunCronJob(ctx context.Context, id string) (*StatusResponse, error) {
	return c.status(ctx, http.MethodPost, "/api/cron/"+url.PathEscape(id)+"/run", nil)
}

// Service

func (c *Client) RestartService(ctx context.Context) (*StatusResponse, error) {
	return c.status(ctx, http.MethodPost, "/api/service/restart", nil)
}

// Public

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) TestConnectivity(ctx context.Context, host string) (*Connectivity, error) {
	var out Connectivity
	if err := c.do(ctx, http.MethodPost, "/api/test-connectivity", map[string]string{"host": host}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) object(ctx context.Context, path string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) status(ctx context.Context, method, path string, body any) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
