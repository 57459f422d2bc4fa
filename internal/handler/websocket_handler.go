package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"studio-site/internal/apierror"
	"studio-site/internal/middleware"
	"studio-site/internal/security"
	ws "studio-site/internal/websocket"
)

// WebSocketHandler upgrades admin sessions to the live contact feed.
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	devMode  bool
}

// NewWebSocketHandler builds the handler. Upgrades are accepted from
// same-origin pages and from allowedOrigins.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, devMode bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		devMode: devMode,
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// HandleConnection serves GET /ws/admin. The route is protected by the
// request gate, which places the verified session in the context.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetSession(r.Context()); !ok {
		apierror.Write(w, apierror.Unauthorized("Not authenticated"), h.devMode)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, security.ClientIP(r))
	if !h.hub.Register(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
