package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"nanoweb/pkg/auth"
	"nanoweb/pkg/nanobot"
	"nanoweb/pkg/remote"
	"nanoweb/pkg/version"
)

const probeTimeout = 5 * time.Second

type loginRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type configBody struct {
	Config map[string]any `json:"config"`
}

type sectionBody struct {
	Data map[string]any `json:"data"`
}

type contentBody struct {
	Content string `json:"content"`
}

type skillCreateBody struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type memoryBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type toggleBody struct {
	Enabled *bool `json:"enabled"`
}

// decodeBody reads a JSON body keeping numbers as written.
func decodeBody(c *echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// --- Auth ---

func (s *Server) handleLogin(c *echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.ObserveLogin("bad_request")
		return detail(c, http.StatusBadRequest, "invalid request")
	}

	sess := s.loginSession(req)
	if sess.Host == "" {
		s.metrics.ObserveLogin("bad_request")
		return detail(c, http.StatusBadRequest, "Host is required")
	}
	if sess.Password == "" {
		s.metrics.ObserveLogin("bad_request")
		return detail(c, http.StatusBadRequest, "Password is required")
	}

	ctx := c.Request().Context()
	if err := s.remote.Verify(ctx, sess); err != nil {
		s.metrics.ObserveLogin(loginResult(err))
		s.logger.Warn("Login failed",
			zap.String("host", sess.Host),
			zap.Int("port", sess.Port),
			zap.String("username", sess.Username),
			zap.Error(err),
		)
		return detail(c, http.StatusUnauthorized, loginFailure(err))
	}

	token, err := s.tokens.Issue(auth.Session{
		Host:     sess.Host,
		Port:     sess.Port,
		Username: sess.Username,
		Password: sess.Password,
	})
	if err != nil {
		s.metrics.ObserveLogin("error")
		s.logger.Error("Token generation failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "token generation failed")
	}

	s.metrics.ObserveLogin("ok")
	s.logger.Info("Login succeeded", zap.String("host", sess.Host), zap.Int("port", sess.Port), zap.String("username", sess.Username))
	return c.JSON(http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// loginSession fills empty host, port and user from the ssh config section.
// The password always comes from the request.
func (s *Server) loginSession(req loginRequest) remote.Session {
	sshCfg := s.config.SSH
	sess := remote.Session{
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
	}
	if sess.Host == "" {
		sess.Host = sshCfg.DefaultHost
	}
	if sess.Port == 0 {
		sess.Port = sshCfg.DefaultPort
	}
	if sess.Port == 0 {
		sess.Port = 22
	}
	if sess.Username == "" {
		sess.Username = sshCfg.DefaultUser
	}
	if sess.Username == "" {
		sess.Username = "root"
	}
	return sess
}

func loginFailure(err error) string {
	msg := err.Error()
	var dialErr *remote.DialError
	if errors.As(err, &dialErr) {
		if hints := dialErr.Suggestions(); len(hints) > 0 {
			lines := make([]string, len(hints))
			for i, h := range hints {
				lines[i] = "• " + h
			}
			msg += "\n\nSuggestions:\n" + strings.Join(lines, "\n")
		}
	}
	return msg
}

func loginResult(err error) string {
	var dialErr *remote.DialError
	if !errors.As(err, &dialErr) {
		return "error"
	}
	switch dialErr.Kind {
	case remote.KindAuth:
		return "auth"
	case remote.KindHostKey:
		return "host_key"
	case remote.KindUnreachable, remote.KindNoRoute, remote.KindNetwork:
		return "unreachable"
	}
	return "error"
}

func (s *Server) handleMe(c *echo.Context) error {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return detail(c, http.StatusUnauthorized, "Invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return detail(c, http.StatusUnauthorized, "Invalid token payload")
	}
	host, _ := claims["host"].(string)
	username, _ := claims["username"].(string)
	port, _ := claims["port"].(float64)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"host":     host,
		"port":     int(port),
		"username": username,
	})
}

func (s *Server) handleLogout(c *echo.Context) error {
	claims := claimsFrom(c)
	if err := s.tokens.Revoke(c.Request().Context(), claims); err != nil {
		s.logger.Error("Token revocation failed", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "Failed to revoke token")
	}
	if claims != nil {
		s.logger.Info("Logged out", zap.String("host", claims.Host), zap.String("username", claims.Username))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- Remote helpers ---

// withManager opens a remote client for the request's session and closes
// it once fn returns.
func (s *Server) withManager(c *echo.Context, fn func(ctx context.Context, m *nanobot.Manager) error) error {
	sess := sessionFrom(c)
	if sess == nil {
		return detail(c, http.StatusUnauthorized, "Not authenticated")
	}
	client := s.remote.Open(remote.Session{
		Host:     sess.Host,
		Port:     sess.Port,
		Username: sess.Username,
		Password: sess.Password,
	})
	defer client.Close()
	return fn(c.Request().Context(), nanobot.NewManager(client, s.nanobotPaths(), s.logger))
}

// remoteError maps an operation failure to a response. fallback, when set,
// replaces messages of failures that are not the caller's fault.
func (s *Server) remoteError(c *echo.Context, err error, fallback string) error {
	var cmdErr *nanobot.CommandError
	var dialErr *remote.DialError
	switch {
	case errors.Is(err, nanobot.ErrInvalidName),
		errors.Is(err, nanobot.ErrInvalidPath),
		errors.Is(err, nanobot.ErrInvalidJob):
		return detail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &cmdErr):
		s.logger.Warn("Remote command failed", zap.String("route", c.Path()), zap.String("output", cmdErr.Output))
		return detail(c, http.StatusInternalServerError, cmdErr.Output)
	case errors.As(err, &dialErr):
		s.logger.Warn("Remote host unavailable", zap.String("host", dialErr.Host), zap.Int("port", dialErr.Port), zap.Error(err))
		return detail(c, http.StatusInternalServerError, dialErr.Error())
	}

	s.logger.Error("Remote operation failed", zap.String("route", c.Path()), zap.Error(err))
	if fallback != "" {
		return detail(c, http.StatusInternalServerError, fallback)
	}
	return detail(c, http.StatusInternalServerError, err.Error())
}

func statusOK(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func statusMessage(c *echo.Context, msg string) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": msg})
}

// --- Dashboard ---

func (s *Server) handleDashboard(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		d, err := m.Dashboard(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, d)
	})
}

// --- Config ---

func (s *Server) handleGetConfig(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		doc, err := m.GetConfig(ctx)
		if errors.Is(err, nanobot.ErrConfigNotFound) {
			return detail(c, http.StatusNotFound, "Config file not found on server")
		}
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, doc)
	})
}

func (s *Server) handleSaveConfig(c *echo.Context) error {
	var body configBody
	if err := decodeBody(c, &body); err != nil || body.Config == nil {
		return detail(c, http.StatusBadRequest, "config must be an object")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		if err := m.SaveConfig(ctx, nanobot.Document(body.Config)); err != nil {
			return s.remoteError(c, err, "Failed to save config")
		}
		return statusOK(c)
	})
}

func (s *Server) handleGetConfigSection(c *echo.Context) error {
	section := c.Param("section")
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		data, err := m.GetSection(ctx, section)
		switch {
		case errors.Is(err, nanobot.ErrConfigNotFound):
			return detail(c, http.StatusNotFound, "Config not found")
		case errors.Is(err, nanobot.ErrSectionNotFound):
			return detail(c, http.StatusNotFound, fmt.Sprintf("Section '%s' not found", section))
		case err != nil:
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, data)
	})
}

func (s *Server) handleSaveConfigSection(c *echo.Context) error {
	return s.sectionSetter(c.Param("section"))(c)
}

func readSectionBody(c *echo.Context) (map[string]any, error) {
	var body sectionBody
	if err := decodeBody(c, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		return nil, errors.New("data must be an object")
	}
	return body.Data, nil
}

// sectionGetter serves one top-level config key, {} when absent.
func (s *Server) sectionGetter(section string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
			data, err := m.SectionOrEmpty(ctx, section)
			if err != nil {
				return s.remoteError(c, err, "")
			}
			return c.JSON(http.StatusOK, data)
		})
	}
}

// sectionSetter replaces one top-level config key with the {"data"} body.
func (s *Server) sectionSetter(section string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		data, err := readSectionBody(c)
		if err != nil {
			return detail(c, http.StatusBadRequest, "data must be an object")
		}
		return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
			if err := m.SetSection(ctx, section, data); err != nil {
				return s.remoteError(c, err, "Failed to save config")
			}
			return statusOK(c)
		})
	}
}

// nestedSetter replaces config[section][param] with the {"data"} body.
func (s *Server) nestedSetter(section, param string) echo.HandlerFunc {
	return func(c *echo.Context) error {
		key := c.Param(param)
		data, err := readSectionBody(c)
		if err != nil {
			return detail(c, http.StatusBadRequest, "data must be an object")
		}
		return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
			if err := m.SetNested(ctx, section, key, data); err != nil {
				return s.remoteError(c, err, "Failed to save config")
			}
			return statusOK(c)
		})
	}
}

// --- Agents ---

func (s *Server) handleGetAgents(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		agents, err := m.Agents(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, agents)
	})
}

func (s *Server) handleSaveAgentsMD(c *echo.Context) error {
	var body contentBody
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		if err := m.SaveAgentsMD(ctx, body.Content); err != nil {
			return s.remoteError(c, err, "Failed to save AGENTS.md")
		}
		return statusOK(c)
	})
}

// --- Skills ---

func (s *Server) handleListSkills(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		skills, err := m.ListSkills(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"skills": skills})
	})
}

func (s *Server) handleGetSkill(c *echo.Context) error {
	name := c.Param("name")
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		skill, err := m.GetSkill(ctx, name)
		if errors.Is(err, nanobot.ErrSkillNotFound) {
			return detail(c, http.StatusNotFound, fmt.Sprintf("Skill '%s' not found", name))
		}
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, skill)
	})
}

func (s *Server) handleUpdateSkill(c *echo.Context) error {
	name := c.Param("name")
	var body contentBody
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		if err := m.UpdateSkill(ctx, name, body.Content); err != nil {
			return s.remoteError(c, err, "Failed to save skill")
		}
		return statusOK(c)
	})
}

func (s *Server) handleCreateSkill(c *echo.Context) error {
	var body skillCreateBody
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		err := m.CreateSkill(ctx, body.Name, body.Content)
		if errors.Is(err, nanobot.ErrSkillExists) {
			return detail(c, http.StatusConflict, fmt.Sprintf("Skill '%s' already exists", body.Name))
		}
		if err != nil {
			return s.remoteError(c, err, "Failed to create skill")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "name": body.Name})
	})
}

// --- Memory ---

func (s *Server) handleListMemory(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		files, err := m.ListMemory(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"files": files})
	})
}

func (s *Server) handleUpdateMemory(c *echo.Context) error {
	var body memoryBody
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		if err := m.UpdateMemory(ctx, body.Path, body.Content); err != nil {
			return s.remoteError(c, err, "Failed to save memory file")
		}
		return statusOK(c)
	})
}

// --- Logs ---

func (s *Server) handleLogs(c *echo.Context) error {
	lines := nanobot.DefaultLogLines
	if raw := c.QueryParam("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return detail(c, http.StatusBadRequest, "lines must be an integer")
		}
		lines = n
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		logs, err := m.Logs(ctx, lines)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, map[string]string{"logs": logs})
	})
}

// --- Cron ---

func (s *Server) handleListCron(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		jobs, err := m.ListJobs(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return c.JSON(http.StatusOK, jobs)
	})
}

func (s *Server) handleAddCron(c *echo.Context) error {
	var req nanobot.AddJobRequest
	if err := decodeBody(c, &req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		msg, err := m.AddJob(ctx, req)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return statusMessage(c, msg)
	})
}

func (s *Server) handleRemoveCron(c *echo.Context) error {
	id := c.Param("id")
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		msg, err := m.RemoveJob(ctx, id)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return statusMessage(c, msg)
	})
}

func (s *Server) handleToggleCron(c *echo.Context) error {
	id := c.Param("id")
	var body toggleBody
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	if body.Enabled == nil {
		return detail(c, http.StatusBadRequest, "enabled is required")
	}
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		msg, err := m.ToggleJob(ctx, id, *body.Enabled)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return statusMessage(c, msg)
	})
}

func (s *Server) handleRunCron(c *echo.Context) error {
	id := c.Param("id")
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		msg, err := m.RunJob(ctx, id)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		return statusMessage(c, msg)
	})
}

// --- Service ---

func (s *Server) handleRestart(c *echo.Context) error {
	return s.withManager(c, func(ctx context.Context, m *nanobot.Manager) error {
		msg, err := m.Restart(ctx)
		if err != nil {
			return s.remoteError(c, err, "")
		}
		s.logger.Info("Nanobot restarted", zap.String("result", msg))
		return statusMessage(c, msg)
	})
}

// --- Public ---

func (s *Server) handleTestConnectivity(c *echo.Context) error {
	var body struct {
		Host string `json:"host"`
	}
	if err := c.Bind(&body); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request")
	}
	host := strings.TrimSpace(body.Host)
	if host == "" {
		return detail(c, http.StatusBadRequest, "Host is required")
	}

	results := s.probe(c.Request().Context(), host, remote.ConnectivityPorts, probeTimeout)
	byPort := make(map[string]bool, len(results))
	for _, r := range results {
		byPort[strconv.Itoa(r.Port)] = r.Open
	}
	open := remote.OpenPorts(results)

	suggestion := "No open SSH ports found. Server may be down or firewalled."
	if len(open) > 0 {
		names := make([]string, len(open))
		for i, p := range open {
			names[i] = strconv.Itoa(p)
		}
		suggestion = "Try ports: " + strings.Join(names, ", ")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"host":       host,
		"results":    byPort,
		"open_ports": open,
		"suggestion": suggestion,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}
