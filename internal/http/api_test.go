package http_test

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apphttp "chatwire/internal/http"
	"chatwire/internal/repository/sqlite"
	"chatwire/internal/service"
	"chatwire/internal/ws"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ackPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type userRow struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Img      *string `json:"img"`
}

type rosterEntry struct {
	ConnectionID string `json:"connectionId"`
	Email        string `json:"email"`
	LoginAt      string `json:"loginAt"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewUserRepository(db)
	if err := repo.Init(t.Context()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	users := service.NewUserService(repo, nil, service.ImagePolicyClearMissing)
	tokens := service.NewTokenIssuer("test-secret", time.Hour)

	hub := ws.NewHub(logger)
	hub.Bind(ws.NewEventHandlers(logger, users, tokens, hub))
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	apphttp.NewHandler(logger, hub, t.TempDir()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// waitFor reads frames until the named event arrives, skipping unrelated
// ones, and decodes its payload into out.
func waitFor(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("decode %s payload: %v", event, err)
			}
		}
		return
	}
}

// syncConn completes a get_users round trip, proving the connection is
// registered with the hub and its pumps are running.
func syncConn(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendEvent(t, conn, "get_users", struct{}{})
	waitFor(t, conn, "users_data", nil)
}

// expectSilence fails if the named event arrives within the window.
func expectSilence(t *testing.T, conn *websocket.Conn, event string) {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var env envelope
		err := conn.ReadJSON(&env)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatalf("read while expecting silence: %v", err)
		}
		if env.Event == event {
			t.Fatalf("unexpected %s event", event)
		}
	}
}

func TestRootPage(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "WebSocket Server is Running!" {
		t.Fatalf("root page body = %q", body)
	}
}

func TestGetUsers_Empty(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	sendEvent(t, conn, "get_users", struct{}{})

	var rows []userRow
	waitFor(t, conn, "users_data", &rows)
	if len(rows) != 0 {
		t.Fatalf("users_data rows = %d, want 0", len(rows))
	}
}

func TestLifecycle(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	// add a user
	sendEvent(t, conn, "add_user", map[string]string{"email": "a@x.com", "password": "p"})

	var ack ackPayload
	waitFor(t, conn, "user_added", &ack)
	if !ack.Success {
		t.Fatalf("user_added = %+v", ack)
	}

	// the successful mutation re-broadcasts the collection to everyone
	var rows []userRow
	waitFor(t, conn, "users_data", &rows)
	if len(rows) != 1 || rows[0].ID != 1 || rows[0].Email != "a@x.com" {
		t.Fatalf("users_data = %+v", rows)
	}
	if rows[0].Password == "p" {
		t.Fatal("password broadcast in plain text")
	}
	if rows[0].Img != nil {
		t.Fatalf("img = %q, want null", *rows[0].Img)
	}

	// log in; the registry broadcast precedes the direct response
	sendEvent(t, conn, "login_request", map[string]string{"email": "a@x.com", "password": "p"})

	var roster []rosterEntry
	waitFor(t, conn, "userListUpdate", &roster)
	if len(roster) != 1 || roster[0].Email != "a@x.com" {
		t.Fatalf("roster = %+v", roster)
	}
	if roster[0].ConnectionID == "" || roster[0].LoginAt == "" {
		t.Fatalf("roster entry incomplete: %+v", roster[0])
	}

	var login ackPayload
	waitFor(t, conn, "login_response", &login)
	if !login.Success || login.Token == "" {
		t.Fatalf("login_response = %+v", login)
	}
	if !strings.Contains(login.Message, "a@x.com") {
		t.Fatalf("login message = %q", login.Message)
	}

	// a second observer sees the logged-in user leave
	observer := dialWS(t, srv)
	syncConn(t, observer)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	waitFor(t, observer, "userListUpdate", &roster)
	if len(roster) != 0 {
		t.Fatalf("roster after disconnect = %+v", roster)
	}
}

func TestAddUser_Duplicate(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	observer := dialWS(t, srv)
	syncConn(t, observer)

	sendEvent(t, conn, "add_user", map[string]string{"email": "a@x.com", "password": "p"})
	var ack ackPayload
	waitFor(t, conn, "user_added", &ack)
	waitFor(t, observer, "users_data", nil)

	sendEvent(t, conn, "add_user", map[string]string{"email": "a@x.com", "password": "other"})
	waitFor(t, conn, "user_added", &ack)
	if ack.Success {
		t.Fatal("duplicate add_user reported success")
	}
	if ack.Message != "email already exists" {
		t.Fatalf("duplicate message = %q", ack.Message)
	}

	// a failed mutation answers the requester only
	expectSilence(t, observer, "users_data")
}

func TestEditUser(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	sendEvent(t, conn, "add_user", map[string]string{"email": "a@x.com", "password": "p"})
	var ack ackPayload
	waitFor(t, conn, "user_added", &ack)
	waitFor(t, conn, "users_data", nil)

	// unknown oldEmail is an ordinary negative result
	sendEvent(t, conn, "edit_user", map[string]string{
		"email": "b@x.com", "password": "p", "oldEmail": "nobody@x.com",
	})
	waitFor(t, conn, "user_edited", &ack)
	if ack.Success || ack.Message != "user not found" {
		t.Fatalf("user_edited = %+v", ack)
	}

	sendEvent(t, conn, "edit_user", map[string]string{
		"email": "b@x.com", "password": "p2", "oldEmail": "a@x.com",
	})
	waitFor(t, conn, "user_edited", &ack)
	if !ack.Success {
		t.Fatalf("user_edited = %+v", ack)
	}

	var rows []userRow
	waitFor(t, conn, "users_data", &rows)
	if len(rows) != 1 || rows[0].Email != "b@x.com" || rows[0].ID != 1 {
		t.Fatalf("users_data after edit = %+v", rows)
	}
}

func TestLogin_Failure(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	observer := dialWS(t, srv)
	syncConn(t, observer)

	sendEvent(t, conn, "add_user", map[string]string{"email": "a@x.com", "password": "p"})
	waitFor(t, conn, "user_added", nil)
	waitFor(t, observer, "users_data", nil)

	sendEvent(t, conn, "login_request", map[string]string{"email": "a@x.com", "password": "wrong"})

	var login ackPayload
	waitFor(t, conn, "login_response", &login)
	if login.Success {
		t.Fatal("login with wrong password succeeded")
	}

	// the registry is untouched, so nobody gets a roster update
	expectSilence(t, observer, "userListUpdate")
}

func TestChatMessage_BroadcastToAll(t *testing.T) {
	srv := newTestServer(t)
	sender := dialWS(t, srv)
	receiver := dialWS(t, srv)
	syncConn(t, receiver)

	sendEvent(t, sender, "chat message", "hello everyone")

	var got string
	waitFor(t, sender, "chat message", &got)
	if got != "hello everyone" {
		t.Fatalf("sender echo = %q", got)
	}
	waitFor(t, receiver, "chat message", &got)
	if got != "hello everyone" {
		t.Fatalf("receiver got %q", got)
	}
}

func TestDisconnect_UnauthenticatedStillBroadcasts(t *testing.T) {
	srv := newTestServer(t)
	leaver := dialWS(t, srv)
	observer := dialWS(t, srv)
	syncConn(t, observer)
	syncConn(t, leaver)

	if err := leaver.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var roster []rosterEntry
	waitFor(t, observer, "userListUpdate", &roster)
	if len(roster) != 0 {
		t.Fatalf("roster = %+v, want empty", roster)
	}
}
