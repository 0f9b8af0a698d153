package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/target/console-gate/internal/service"
)

const (
	wsReadBufferSize  = 4096
	wsWriteBufferSize = 4096
	wsMaxMessageSize  = 1 << 20

	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
)

// WSHandler upgrades console clients to WebSocket connections. Admission
// runs before the upgrade so capacity and auth rejections go out as plain
// HTTP status codes the client can interpret.
type WSHandler struct {
	Admission *service.AdmissionController
	Lifecycle *service.LifecycleCoordinator

	// SessionCookieName names the cookie carrying the signed session token.
	// Connections without the cookie are admitted on the anonymous path.
	SessionCookieName string

	// AllowedOrigins lists Origin header values accepted for the upgrade.
	// Empty means same-origin only.
	AllowedOrigins []string

	Logger *slog.Logger
}

func (h *WSHandler) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Connect handles the WebSocket endpoint.
// GET /ws.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var token string
	if cookie, err := r.Cookie(h.SessionCookieName); err == nil {
		token = cookie.Value
	}

	adm, err := h.Admission.Admit(ctx, token, ClientIP(r), r.UserAgent())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	// If the handshake never completes, the slot goes back here. Once the
	// lifecycle coordinator takes over, this becomes a no-op. The release
	// context is detached: the request context is already canceled by the
	// time a dropped client reaches this point.
	releaseCtx := context.WithoutCancel(ctx)
	defer adm.ReleaseIfPending(releaseCtx)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger().WarnContext(ctx, "websocket upgrade failed", "error", err, "ip", ClientIP(r))
		return
	}
	defer wsConn.Close()

	conn := h.Lifecycle.Connect(ctx, adm)
	defer h.Lifecycle.Disconnect(releaseCtx, conn)

	h.serve(wsConn, conn)
}

// serve runs the read loop until the peer disconnects or errors. Messages
// are echoed back; a ping ticker keeps intermediaries from idling out the
// connection.
func (h *WSHandler) serve(wsConn *websocket.Conn, conn *service.Conn) {
	wsConn.SetReadLimit(wsMaxMessageSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	// Single-writer discipline: the ping loop and the echo path share one
	// mutex because gorilla connections do not support concurrent writes.
	var writeMu sync.Mutex
	write := func(msgType int, payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = wsConn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return wsConn.WriteMessage(msgType, payload)
	}

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(write, done)

	for {
		msgType, payload, err := wsConn.ReadMessage()
		if err != nil {
			// Only a clean peer close counts as normal; anything else
			// (abnormal close codes, read timeouts, broken transport) is
			// surfaced as a distinct disconnect reason.
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.SetCloseReason("error")
				h.logger().Debug("websocket closed unexpectedly", "client_id", conn.ClientID, "error", err)
			}
			return
		}

		if err := write(msgType, payload); err != nil {
			conn.SetCloseReason("error")
			h.logger().Debug("websocket write failed", "client_id", conn.ClientID, "error", err)
			return
		}
	}
}

func (h *WSHandler) pingLoop(write func(int, []byte) error, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.AllowedOrigins) == 0 {
		// Same-origin default.
		return origin == schemeFor(r)+"://"+r.Host
	}
	for _, allowed := range h.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func schemeFor(r *http.Request) string {
	if r.TLS != nil || isForwardedHTTPS(r) {
		return "https"
	}
	return "http"
}
