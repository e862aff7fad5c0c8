// Package web exposes the HTTP surface: account routes, the direct
// message history read, and the websocket upgrade endpoint.
package web

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/services"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

// API bundles the HTTP handlers and their dependencies.
type API struct {
	log      *slog.Logger
	auth     services.IAuthService
	sessions *auth.Sessions
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
	ws       http.Handler
}

func NewAPI(log *slog.Logger, authService services.IAuthService, sessions *auth.Sessions,
	users repositories.IUserRepository, messages repositories.IMessageRepository,
	ws http.Handler) *API {
	return &API{
		log:      log,
		auth:     authService,
		sessions: sessions,
		users:    users,
		messages: messages,
		ws:       ws,
	}
}

// Routes wires all application endpoints into a ServeMux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", a.handleRegister)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /messages", a.handleMessages)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /ws", a.ws)
	return mux
}

// CreateServer applies production timeouts around a handler.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := a.auth.Register(req.Username, req.Password)
	if err != nil {
		a.writeError(w, errors.MapToStatus(err), userFacing(err))
		return
	}

	a.writeJSON(w, http.StatusCreated, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := a.auth.Login(req.Username, req.Password)
	if err != nil {
		a.writeError(w, errors.MapToStatus(err), userFacing(err))
		return
	}

	a.writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}

type historyResponse struct {
	Messages []domain.Envelope `json:"messages"`
	Cursor   *string           `json:"cursor,omitempty"`
}

// handleMessages returns the direct-message history between the
// authenticated user and ?with=<username>, newest first. This is the
// catch-up path for recipients that were offline during fan-out; ids
// match the ones live envelopes carried.
func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	me, err := a.authenticate(r)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	withName := r.URL.Query().Get("with")
	if withName == "" {
		a.writeError(w, http.StatusBadRequest, "missing 'with' parameter")
		return
	}
	other, err := a.users.GetUserByName(withName)
	if err != nil {
		a.writeError(w, errors.MapToStatus(err), userFacing(err))
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	stored, next, err := a.messages.GetConversation(me, domain.UserID(other.ID), cursor)
	if err != nil {
		a.writeError(w, errors.MapToStatus(err), userFacing(err))
		return
	}

	a.writeJSON(w, http.StatusOK, historyResponse{
		Messages: lo.Map(stored, func(m repositories.StoredMessage, _ int) domain.Envelope {
			return domain.NewPrivateEnvelope(domain.MessageID(m.ID),
				domain.UserID(m.Sender), domain.UserID(m.Receiver), m.Content, m.At)
		}),
		Cursor: next,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (a *API) authenticate(r *http.Request) (domain.UserID, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return 0, errors.ErrUnauthenticated
	}
	return a.sessions.Resolve(token)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error("Encoding response failed", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, detail string) {
	a.writeJSON(w, status, map[string]string{"detail": detail})
}

// userFacing keeps internal error details out of responses; only the
// sentinel's own message crosses the boundary.
func userFacing(err error) string {
	for _, sentinel := range []error{
		errors.ErrInvalidUsername,
		errors.ErrInvalidPassword,
		errors.ErrUserAlreadyExists,
		errors.ErrInvalidCredentials,
		errors.ErrUnauthenticated,
		errors.ErrNotFound,
	} {
		if stderrors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
