package ws

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// SessionResolver maps a presented token to an identity, exactly once
// per connection attempt. This is the only credential check a
// connection ever goes through; an Active connection is trusted for
// its whole lifetime.
type SessionResolver interface {
	Resolve(token string) (domain.UserID, error)
}

// Handler upgrades HTTP requests to websocket connections and walks
// them through Pending -> Authenticated -> Active.
type Handler struct {
	log        *slog.Logger
	sessions   SessionResolver
	router     contract.IRouter
	registry   contract.IRegistry
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewHandler(log *slog.Logger, sessions SessionResolver, router contract.IRouter,
	registry contract.IRegistry, bufferSize int) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
		router:   router,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		bufferSize: bufferSize,
	}
}

// ServeHTTP authenticates the token carried in the query string, then
// upgrades and registers the connection. A bad token means the
// connection goes straight to Closed: nothing is upgraded, nothing is
// registered, and the router never hears about it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	user, err := h.sessions.Resolve(token)
	if err != nil {
		h.log.Info("Rejecting connection with invalid token", "remote", r.RemoteAddr)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(h.log, conn, user, h.router, h.registry, h.bufferSize)
	h.registry.Register(user, client)
	h.log.Info("Connection active", "user_id", user, "conn_id", client.ID(), "remote", r.RemoteAddr)

	go client.WriteLoop()
	client.ReadLoop(r.Context())
}
