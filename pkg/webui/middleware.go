package webui

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"nanoweb/pkg/auth"
)

const (
	ctxSession = "session"
	ctxClaims  = "claims"
)

// requireSession validates the bearer token and stores the session it
// carries. Failures use the {"detail"} body the console understands.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return detail(c, http.StatusUnauthorized, "Not authenticated")
		}

		sess, claims, err := s.tokens.Parse(c.Request().Context(), token)
		switch {
		case errors.Is(err, auth.ErrInvalidPayload):
			return detail(c, http.StatusUnauthorized, "Invalid token payload")
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrRevoked):
			return detail(c, http.StatusUnauthorized, "Invalid or expired token")
		case err != nil:
			s.logger.Error("Token check failed", zap.Error(err))
			return detail(c, http.StatusInternalServerError, "Failed to check token")
		}

		c.Set(ctxSession, sess)
		c.Set(ctxClaims, claims)
		return next(c)
	}
}

func sessionFrom(c *echo.Context) *auth.Session {
	sess, _ := c.Get(ctxSession).(*auth.Session)
	return sess
}

func claimsFrom(c *echo.Context) *auth.Claims {
	claims, _ := c.Get(ctxClaims).(*auth.Claims)
	return claims
}

type routeKey struct{}

// routeHolder carries the matched route pattern back out of the router.
type routeHolder struct {
	route string
}

// recordRoute stores the matched route pattern for the metrics wrapper.
func (s *Server) recordRoute(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if h, ok := c.Request().Context().Value(routeKey{}).(*routeHolder); ok {
			h.route = c.Path()
		}
		return next(c)
	}
}

// instrument wraps h with request metrics and debug logging.
func (s *Server) instrument(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		holder := &routeHolder{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), routeKey{}, holder)))

		route := holder.route
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, rec.status, elapsed)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// statusRecorder captures the response status. It keeps Flush and Hijack
// working so WebSocket upgrades pass through.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func detail(c *echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}
