package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/metrics"
)

// CloseUnauthenticated is sent when the presented session token does
// not resolve to a user. 4000-4999 is the application close-code range.
const CloseUnauthenticated = 4401

// SessionValidator resolves a session token to its owner. The token
// is re-checked against the store on every connection attempt; the
// gateway holds no validity cache.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (string, bool, error)
}

type Gateway struct {
	hub      *Hub
	sessions SessionValidator
	cfg      config.PushConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, sessions SessionValidator, cfg config.PushConfig, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The session token authenticates the connection; the
			// Origin header does not.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades GET /ws?token=... into a push-channel connection.
// The token travels in the query string because the socket is opened
// before any API call could set a header.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")

	sock, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		g.log.Debug().Err(err).Msg("push upgrade failed")
		return
	}

	if token == "" {
		metrics.PushUpgradeRejected.WithLabelValues("missing_token").Inc()
		g.reject(sock, websocket.ClosePolicyViolation, "token required")
		return
	}

	uid, ok, err := g.sessions.ValidateSession(c.Request.Context(), token)
	if err != nil {
		g.log.Error().Err(err).Msg("push session validation")
		g.reject(sock, websocket.CloseInternalServerErr, "validation failed")
		return
	}
	if !ok {
		metrics.PushUpgradeRejected.WithLabelValues("invalid_token").Inc()
		g.reject(sock, CloseUnauthenticated, "invalid session")
		return
	}

	conn := newConn(sock)
	g.hub.Register(uid, conn)

	// Exactly one teardown regardless of which path (read error, idle
	// timeout, write error, server shutdown) gets there first.
	var teardown sync.Once
	cleanup := func() {
		teardown.Do(func() {
			g.hub.Unregister(uid, conn)
			conn.Close()
		})
	}

	go g.writeLoop(conn, cleanup)
	go g.readLoop(conn, cleanup)

	ack, _ := NewEvent(EventConnected, uid, nil).encode()
	conn.enqueue(ack)
}

func (g *Gateway) reject(sock *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(g.cfg.WriteTimeout)
	_ = sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = sock.Close()
}

// readLoop consumes inbound frames. The only meaningful client
// message is a liveness ping; everything else, malformed JSON
// included, is dropped. Any inbound frame refreshes the idle
// deadline, so a silent client is cut off after cfg.IdleTimeout.
func (g *Gateway) readLoop(conn *Conn, cleanup func()) {
	defer cleanup()

	_ = conn.sock.SetReadDeadline(time.Now().Add(g.cfg.IdleTimeout))

	for {
		_, payload, err := conn.sock.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.sock.SetReadDeadline(time.Now().Add(g.cfg.IdleTimeout))

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			pong, _ := NewEvent(EventPong, "", nil).encode()
			conn.enqueue(pong)
		}
	}
}

func (g *Gateway) writeLoop(conn *Conn, cleanup func()) {
	defer cleanup()

	for {
		select {
		case frame := <-conn.send:
			_ = conn.sock.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := conn.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-conn.closed:
			return
		}
	}
}
