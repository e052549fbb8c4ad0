// Package webui provides the nanoweb gateway: a REST and WebSocket API that
// turns console requests into SSH commands on a nanobot host.
// It uses Echo v5 for HTTP routing with JWT authentication.
package webui

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"

	"nanoweb/pkg/auth"
	"nanoweb/pkg/config"
	"nanoweb/pkg/logger"
	"nanoweb/pkg/metrics"
	"nanoweb/pkg/nanobot"
	"nanoweb/pkg/remote"
	"nanoweb/pkg/webui/frontend"
)

// probeFunc matches remote.Probe.
type probeFunc func(ctx context.Context, host string, ports []int, timeout time.Duration) []remote.PortResult

// Server is the gateway HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	config     *config.Config
	logger     *logger.Logger
	tokens     *auth.Manager
	metrics    *metrics.Metrics
	remote     Remote
	probe      probeFunc
	startedAt  time.Time
}

// NewServer creates a new gateway server.
func NewServer(cfg *config.Config, log *logger.Logger, tokens *auth.Manager, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		config:    cfg,
		logger:    log,
		tokens:    tokens,
		metrics:   m,
		remote:    newSSHRemote(cfg, log, m),
		probe:     remote.Probe,
		startedAt: time.Now(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.config.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(s.recordRoute)

	// Public routes
	e.POST("/api/auth/login", s.handleLogin)
	e.POST("/api/test-connectivity", s.handleTestConnectivity)
	e.GET("/api/health", s.handleHealth)

	// Chat WebSocket (auth handled inside via the first frame)
	e.GET("/ws/chat", s.handleChatWS)

	if s.config.Server.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	// Protected API routes. requireSession answers auth failures in the
	// console's {"detail"} format; echojwt then exposes the parsed token.
	api := e.Group("/api")
	api.Use(s.requireSession)
	api.Use(echojwt.WithConfig(echojwt.Config{
		KeyFunc: func(t *jwt.Token) (interface{}, error) {
			return s.tokens.KeyFunc(t)
		},
	}))

	// Auth
	api.GET("/auth/me", s.handleMe)
	api.POST("/auth/logout", s.handleLogout)

	// Dashboard
	api.GET("/dashboard", s.handleDashboard)

	// Config
	api.GET("/config", s.handleGetConfig)
	api.PUT("/config", s.handleSaveConfig)
	api.GET("/config/:section", s.handleGetConfigSection)
	api.PUT("/config/:section", s.handleSaveConfigSection)

	// Channels and providers
	api.GET("/channels", s.sectionGetter("channels"))
	api.PUT("/channels/:channel", s.nestedSetter("channels", "channel"))
	api.GET("/providers", s.sectionGetter("providers"))
	api.PUT("/providers/:provider", s.nestedSetter("providers", "provider"))

	// Agents
	api.GET("/agents", s.handleGetAgents)
	api.PUT("/agents/md", s.handleSaveAgentsMD)
	api.PUT("/agents/config", s.sectionSetter("agents"))

	// Skills
	api.GET("/skills", s.handleListSkills)
	api.POST("/skills", s.handleCreateSkill)
	api.GET("/skills/:name", s.handleGetSkill)
	api.PUT("/skills/:name", s.handleUpdateSkill)

	// Tools
	api.GET("/tools", s.sectionGetter("tools"))
	api.PUT("/tools", s.sectionSetter("tools"))

	// Memory
	api.GET("/memory", s.handleListMemory)
	api.PUT("/memory", s.handleUpdateMemory)

	// Logs
	api.GET("/logs", s.handleLogs)

	// Cron
	api.GET("/cron", s.handleListCron)
	api.POST("/cron", s.handleAddCron)
	api.DELETE("/cron/:id", s.handleRemoveCron)
	api.PUT("/cron/:id/toggle", s.handleToggleCron)
	api.POST("/cron/:id/run", s.handleRunCron)

	// Service control
	api.POST("/service/restart", s.handleRestart)

	// Landing page
	distFS, err := fs.Sub(frontend.Dist, "dist")
	if err == nil {
		fileServer := http.FileServer(http.FS(distFS))
		e.GET("/*", echo.WrapHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, err := distFS.Open(r.URL.Path[1:])
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
			fileServer.ServeHTTP(w, r)
		})))
	}

	s.echo = e
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.echo)
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Start starts the gateway server.
func (s *Server) Start() error {
	addr := s.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info("Gateway server starting", zap.String("addr", addr))

	// Use http.Server directly so we can control shutdown from fx lifecycle
	// (Echo v5's e.Start() manages its own signal handling which conflicts with fx).
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Gateway server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Gateway server stopping", zap.Duration("uptime", time.Since(s.startedAt)))
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) nanobotPaths() nanobot.Paths {
	p := s.config.NanobotPaths()
	return nanobot.Paths{
		ConfigPath:    p.ConfigPath,
		WorkspacePath: p.WorkspacePath,
		CronPath:      p.CronPath,
		LogFile:       p.LogFile,
		ServiceName:   p.ServiceName,
	}
}
