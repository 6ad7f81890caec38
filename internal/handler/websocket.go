package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/config"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/Harshitk-cp/sketchhive/internal/session"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WebSocketHandler upgrades drawing clients and runs their pumps
type WebSocketHandler struct {
	ctx      context.Context
	log      *slog.Logger
	config   *config.Config
	hub      session.Hub
	limiter  session.Limiter
	metrics  metrics.Collector
	upgrader websocket.Upgrader
	connSeq  atomic.Uint64
}

// NewWebSocketHandler creates a new WebSocket handler. Sessions live until
// ctx is done or their connection drops. limiter may be nil.
func NewWebSocketHandler(ctx context.Context, log *slog.Logger, cfg *config.Config, h session.Hub, limiter session.Limiter, m metrics.Collector) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:   cfg.WebSocket.WriteBufferSize,
		EnableCompression: cfg.WebSocket.EnableCompression,
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.HTTP.EnableCORS {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			// No list, or a lone "*", allows everyone
			if len(cfg.HTTP.AllowedOrigins) == 0 || lo.Contains(cfg.HTTP.AllowedOrigins, "*") {
				return true
			}

			return lo.Contains(cfg.HTTP.AllowedOrigins, origin)
		},
	}

	return &WebSocketHandler{
		ctx:      ctx,
		log:      log,
		config:   cfg,
		hub:      h,
		limiter:  limiter,
		metrics:  m,
		upgrader: upgrader,
	}
}

// ServeHTTP handles HTTP requests for WebSocket connections
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error
		h.log.Warn("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	h.metrics.ClientConnected()

	remote := clientIP(r, h.config.HTTP.TrustForwardedFor)
	conn := newWSConn(h.config.WebSocket.SendQueueSize)
	sess := session.New(h.log, h.hub, conn, h.limiter, h.metrics, connKey(remote, h.connSeq.Add(1)))

	ws.SetReadLimit(h.config.WebSocket.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.config.WebSocket.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.WebSocket.PongWait))
	})

	h.log.Debug("Client connected", "remote_addr", remote)

	go h.writePump(ws, conn)
	go h.readPump(ws, conn, sess)
}

// readPump feeds frames into the session until the socket fails or the
// session ends. Closing the queue hands the socket to the write pump for
// the close handshake.
func (h *WebSocketHandler) readPump(ws *websocket.Conn, conn *wsConn, sess *session.Session) {
	defer func() {
		sess.Close()
		conn.Close()
		h.metrics.ClientDisconnected()
	}()

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := sess.Handle(h.ctx, frame); err != nil {
			if !errors.Is(err, session.ErrRejected) {
				h.log.Warn("Ending session", "state", sess.State().String(), "error", err)
			}
			return
		}
	}
}

// writePump sends queued frames, one websocket message each, and pings
// the client every ping period
func (h *WebSocketHandler) writePump(ws *websocket.Conn, conn *wsConn) {
	ticker := time.NewTicker(h.config.WebSocket.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WebSocket.WriteWait))
			if !ok {
				// Queue closed and drained
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.config.WebSocket.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// connKey names one connection. Connections sharing an address never
// share a key.
func connKey(remote string, seq uint64) string {
	return fmt.Sprintf("%s#%d", remote, seq)
}

// clientIP returns the peer address. With trustProxy set, the first
// forwarded address wins.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
