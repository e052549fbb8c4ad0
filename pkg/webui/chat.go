package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"
	"go.uber.org/zap"

	"nanoweb/pkg/logger"
	"nanoweb/pkg/nanobot"
	"nanoweb/pkg/remote"
)

const (
	chatReadTimeout  = 120 * time.Second
	chatPingInterval = 30 * time.Second
	chatWriteTimeout = 10 * time.Second
	chatReadLimit    = 65536
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type chatAuthFrame struct {
	Token string `json:"token"`
}

type chatInFrame struct {
	Message string `json:"message"`
}

// chatEnvelope is every server-to-client frame.
type chatEnvelope struct {
	Type    string `json:"type"` // "connected", "thinking", "response", "error"
	Message string `json:"message"`
}

// chatConn serializes writes; gorilla allows one concurrent writer.
type chatConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (cc *chatConn) send(typ, msg string) error {
	data, err := json.Marshal(chatEnvelope{Type: typ, Message: msg})
	if err != nil {
		return err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conn.SetWriteDeadline(time.Now().Add(chatWriteTimeout))
	return cc.conn.WriteMessage(websocket.TextMessage, data)
}

func (cc *chatConn) ping() error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conn.SetWriteDeadline(time.Now().Add(chatWriteTimeout))
	return cc.conn.WriteMessage(websocket.PingMessage, nil)
}

func (cc *chatConn) read() ([]byte, error) {
	cc.conn.SetReadDeadline(time.Now().Add(chatReadTimeout))
	_, data, err := cc.conn.ReadMessage()
	return data, err
}

// handleChatWS relays chat messages to the nanobot agent. The first frame
// carries the bearer token; the remote connection is reused for the whole
// socket.
func (s *Server) handleChatWS(c *echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("Chat WS upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()

	connID := uuid.NewString()[:8]
	log := s.logger.WithFields(zap.String("conn_id", connID))
	cc := &chatConn{conn: conn}

	conn.SetReadLimit(chatReadLimit)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(chatReadTimeout))
		return nil
	})

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	raw, err := cc.read()
	if err != nil {
		log.Debug("Chat WS closed before auth", zap.Error(err))
		return nil
	}
	var authFrame chatAuthFrame
	if err := json.Unmarshal(raw, &authFrame); err != nil || strings.TrimSpace(authFrame.Token) == "" {
		s.rejectChat(cc, log, "missing token")
		return nil
	}
	sess, _, err := s.tokens.Parse(ctx, authFrame.Token)
	if err != nil {
		s.rejectChat(cc, log, err.Error())
		return nil
	}

	client := s.remote.Open(remote.Session{
		Host:     sess.Host,
		Port:     sess.Port,
		Username: sess.Username,
		Password: sess.Password,
	})
	defer client.Close()
	m := nanobot.NewManager(client, s.nanobotPaths(), s.logger)

	if err := cc.send("connected", "Connected to nanobot chat"); err != nil {
		return nil
	}
	s.metrics.ChatSessions.Inc()
	defer s.metrics.ChatSessions.Dec()
	log.Info("Chat WS connected", zap.String("host", sess.Host), zap.String("username", sess.Username))

	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(chatPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := cc.ping(); err != nil {
					return
				}
			case <-pingDone:
				return
			}
		}
	}()
	defer close(pingDone)

	for {
		raw, err := cc.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Chat WS read error", zap.Error(err))
			}
			log.Info("Chat WS disconnected")
			return nil
		}

		var in chatInFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			cc.send("error", "invalid message format")
			continue
		}
		text := strings.TrimSpace(in.Message)
		if text == "" {
			continue
		}

		s.metrics.ChatMessages.Inc()
		if err := cc.send("thinking", "Processing..."); err != nil {
			return nil
		}

		reply, err := m.Chat(ctx, text)
		if err != nil {
			log.Warn("Chat command failed", zap.Error(err))
			if err := cc.send("error", err.Error()); err != nil {
				return nil
			}
			continue
		}
		if err := cc.send("response", reply); err != nil {
			return nil
		}
	}
}

func (s *Server) rejectChat(cc *chatConn, log *logger.Logger, reason string) {
	log.Warn("Chat WS authentication failed", zap.String("reason", reason))
	cc.send("error", "Authentication failed")
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
		time.Now().Add(chatWriteTimeout))
}
