package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/web"
	"chat-relay/infrastructure/ws"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server   *httptest.Server
	sessions *auth.Sessions
	registry *runtime.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users, err := repositories.NewUserRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = users.Close() })
	groups, err := repositories.NewGroupRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = groups.Close() })
	messages, err := repositories.NewMessageRepository(db, log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = messages.Close() })

	sessions := auth.NewSessions("test-secret", time.Hour)
	registry := runtime.NewRegistry(log)
	router := services.NewRouter(log, users, groups, messages, registry)
	wsHandler := ws.NewHandler(log, sessions, router, registry, 16)
	api := web.NewAPI(log, services.NewAuthService(users, sessions), sessions, users, messages, wsHandler)

	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)

	return &fixture{server: server, sessions: sessions, registry: registry}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func (f *fixture) register(t *testing.T, username, password string) string {
	t.Helper()
	resp := f.postJSON(t, "/register", map[string]string{"username": username, "password": password})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func (f *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	f.register(t, "alice_01", "correct_horse_battery")

	resp := f.postJSON(t, "/login", map[string]string{
		"username": "alice_01",
		"password": "correct_horse_battery",
	})
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var session struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&session))
	req.NotEmpty(session.Token)
	req.Greater(session.ExpiresAt, time.Now().Unix())

	user, err := f.sessions.Resolve(session.Token)
	req.NoError(err)
	req.Equal(domain.UserID(1), user)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	f.register(t, "alice_01", "correct_horse_battery")

	resp := f.postJSON(t, "/register", map[string]string{
		"username": "alice_01",
		"password": "another_password",
	})
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Detail string `json:"detail"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("username already exists", body.Detail)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	f.register(t, "alice_01", "correct_horse_battery")

	resp := f.postJSON(t, "/login", map[string]string{
		"username": "alice_01",
		"password": "wrong_password",
	})
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal("ok", string(body))
}

func TestWebsocketRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=bogus"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Nil(conn)
	req.NotNil(resp)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

// TestDirectMessageRoundTrip drives the full path: two registered
// users connect over websocket, one sends, the receiver gets the
// envelope live, the sender gets the echo, and both legs show up in
// the /messages history afterwards.
func TestDirectMessageRoundTrip(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	aliceToken := f.register(t, "alice_01", "correct_horse_battery")
	bobToken := f.register(t, "bob_the_second", "hunter2hunter2")

	alice := f.dial(t, aliceToken)
	bob := f.dial(t, bobToken)

	// Registration happens server side just after the handshake; wait
	// for both identities to show up before fanning out.
	req.Eventually(func() bool {
		return f.registry.IsOnline(1) && f.registry.IsOnline(2)
	}, 2*time.Second, 10*time.Millisecond)

	frame := map[string]string{
		"type":     "SEND_MESSAGE",
		"receiver": "bob_the_second",
		"message":  "hello bob",
	}
	payload, err := json.Marshal(frame)
	req.NoError(err)
	req.NoError(alice.WriteMessage(websocket.TextMessage, payload))

	var delivered, echoed domain.Envelope
	_, raw, err := bob.ReadMessage()
	req.NoError(err)
	req.NoError(json.Unmarshal(raw, &delivered))
	_, raw, err = alice.ReadMessage()
	req.NoError(err)
	req.NoError(json.Unmarshal(raw, &echoed))

	req.Equal(delivered, echoed)
	req.Equal("private", delivered.Type)
	req.Equal("hello bob", delivered.Message)
	req.Equal(domain.UserID(1), delivered.Sender)
	req.Equal(domain.UserID(2), delivered.Receiver)
	req.NotZero(delivered.ID)

	resp, err := getWithToken(f.server.URL+"/messages?with=bob_the_second", aliceToken)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var history struct {
		Messages []domain.Envelope `json:"messages"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&history))
	req.Len(history.Messages, 1)
	req.Equal(delivered.ID, history.Messages[0].ID)
	req.Equal("hello bob", history.Messages[0].Message)
}

// TestDeliveryOrderMatchesSubmissionOrder sends a burst of messages on
// one sender connection and checks the receiver sees them in the order
// they were submitted.
func TestDeliveryOrderMatchesSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	aliceToken := f.register(t, "alice_01", "correct_horse_battery")
	bobToken := f.register(t, "bob_the_second", "hunter2hunter2")

	alice := f.dial(t, aliceToken)
	bob := f.dial(t, bobToken)

	req.Eventually(func() bool {
		return f.registry.IsOnline(1) && f.registry.IsOnline(2)
	}, 2*time.Second, 10*time.Millisecond)

	const count = 10
	for i := 0; i < count; i++ {
		payload, err := json.Marshal(map[string]string{
			"type":     "SEND_MESSAGE",
			"receiver": "bob_the_second",
			"message":  fmt.Sprintf("message %d", i),
		})
		req.NoError(err)
		req.NoError(alice.WriteMessage(websocket.TextMessage, payload))
	}

	for i := 0; i < count; i++ {
		var envelope domain.Envelope
		_, raw, err := bob.ReadMessage()
		req.NoError(err)
		req.NoError(json.Unmarshal(raw, &envelope))
		req.Equal(fmt.Sprintf("message %d", i), envelope.Message)
	}
}

func TestSendToUnknownUserYieldsNotice(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	aliceToken := f.register(t, "alice_01", "correct_horse_battery")
	alice := f.dial(t, aliceToken)

	frame := map[string]string{
		"type":     "SEND_MESSAGE",
		"receiver": "nobody_here",
		"message":  "hello?",
	}
	payload, err := json.Marshal(frame)
	req.NoError(err)
	req.NoError(alice.WriteMessage(websocket.TextMessage, payload))

	var notice struct {
		Info string `json:"info"`
	}
	_, raw, err := alice.ReadMessage()
	req.NoError(err)
	req.NoError(json.Unmarshal(raw, &notice))
	req.Equal(`user "nobody_here" does not exist`, notice.Info)
}

func TestMessagesRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	req := require.New(t)

	resp, err := http.Get(f.server.URL + "/messages?with=anyone")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, err = getWithToken(f.server.URL+"/messages?with=anyone", "forged")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func getWithToken(url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	return http.DefaultClient.Do(req)
}
