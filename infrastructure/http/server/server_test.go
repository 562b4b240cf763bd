package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"moonshop/auth"
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/repositories"
	"moonshop/runtime"
	"moonshop/runtime/workers"
	"moonshop/services"
	"moonshop/sink"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	server   *httptest.Server
	registry *runtime.Registry
	users    *repositories.UserRepository
	tokens   *auth.TokenManager
}

func newTestApp(t *testing.T, authRequired bool) *testApp {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	messages, err := repositories.NewMessageRepository(db, log)
	req.NoError(err)
	users, err := repositories.NewUserRepository(db)
	req.NoError(err)
	notifications, err := repositories.NewNotificationRepository(db)
	req.NoError(err)
	t.Cleanup(func() {
		_ = messages.Close()
		_ = users.Close()
		_ = notifications.Close()
	})

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	notificationService := services.NewNotificationService(notifications, 20)
	notificationSink := sink.NewNotificationSink(16)
	registry := runtime.NewRegistry()
	relay := runtime.NewRelay(registry, messages, notificationSink, log)
	if authRequired {
		relay.WithTokenVerifier(tokens)
	}

	ctx, cancel := context.WithCancel(context.Background())
	supervisor := workers.NewSupervisor(log, 10*time.Millisecond)
	supervisor.Add(workers.NewNotificationWorker(notificationSink.Events, users, notificationService, log))
	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	handler := NewRouter(Handlers{
		Chat:         NewChatHandler(services.NewChatService(messages, users), log),
		Auth:         NewAuthHandler(services.NewAuthService(users, tokens), log),
		Notification: NewNotificationHandler(notificationService, log),
		Websocket:    NewWebsocketHandler(relay, []string{"*"}, 8, time.Second, log),
	}, tokens, RouterConfig{AuthRequired: authRequired, AllowedOrigins: []string{"*"}}, log)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.CloseClientConnections()
		server.Close()
		cancel()
		<-supervisorDone
	})
	return &testApp{server: server, registry: registry, users: users, tokens: tokens}
}

func (a *testApp) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect opens a socket for userID and waits until the registry sees it.
func (a *testApp) connect(t *testing.T, userID int64, token string) *websocket.Conn {
	t.Helper()
	conn := a.dial(t)
	before, _ := a.registry.Lookup(chat.UserID(userID))
	send(t, conn, map[string]any{"type": "auth", "userId": userID, "token": token})
	require.Eventually(t, func() bool {
		current, ok := a.registry.Lookup(chat.UserID(userID))
		return ok && current != before
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func receive(t *testing.T, conn *websocket.Conn) chat.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt chat.ServerEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

// nothingReceived checks no event shows up within a short window.
func nothingReceived(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func (a *testApp) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	r, err := http.NewRequest(method, a.server.URL+path, &payload)
	require.NoError(t, err)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *testApp) seedUser(t *testing.T, name string) account.User {
	t.Helper()
	user, err := a.users.CreateUser(account.User{
		Name:   name,
		Email:  strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@moonshop.com",
		Role:   account.RoleBuyer,
		Avatar: account.DefaultAvatar(name),
	})
	require.NoError(t, err)
	return user
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)

	var body map[string]string
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, "/healthz", "", nil, &body))
	req.Equal("ok", body["status"])
}

func TestRelay_Online_Receiver_Gets_Message_And_Conversation_Shows_It(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)

	// Given users 7 and 9 are connected
	sender := app.connect(t, 7, "")
	receiver := app.connect(t, 9, "")

	// When 7 sends hello to 9
	send(t, sender, map[string]any{"type": "chat", "senderId": 7, "receiverId": 9, "text": "hello"})

	// Then 9 receives it unread
	pushed := receive(t, receiver)
	req.Equal(chat.EventChat, pushed.Type)
	req.Equal("hello", pushed.Message.Message)
	req.Equal(int64(7), pushed.Message.SenderID)
	req.Equal(0, pushed.Message.IsRead)

	// And 7 gets the acknowledgement with the same id
	ack := receive(t, sender)
	req.Equal(chat.EventChatSent, ack.Type)
	req.Equal(pushed.Message.ID, ack.Message.ID)

	// And the conversation list of 9 shows it as unread
	for _, path := range []string{"/conversations/9", "/api/chat/conversations/9"} {
		var conversations []conversationResponse
		req.Equal(http.StatusOK, app.do(t, http.MethodGet, path, "", nil, &conversations))
		req.Len(conversations, 1)
		req.Equal(int64(7), conversations[0].OtherUserID)
		req.Equal("hello", conversations[0].LastMessage)
		req.Equal(1, conversations[0].UnreadCount)
	}
}

func TestRelay_Offline_Receiver_Reads_Later(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)

	// Given only 7 is connected
	sender := app.connect(t, 7, "")

	// When 7 sends to 9
	send(t, sender, map[string]any{"type": "chat", "senderId": 7, "receiverId": 9, "text": "hello"})

	// Then 7 is acknowledged
	ack := receive(t, sender)
	req.Equal(chat.EventChatSent, ack.Type)

	// And 9 reading the transcript sees the message flipped to read
	var transcript []chat.MessageView
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, "/messages/9/7", "", nil, &transcript))
	req.Len(transcript, 1)
	req.Equal(ack.Message.ID, transcript[0].ID)
	req.Equal(1, transcript[0].IsRead)

	// And the conversation no longer counts it as unread
	var conversations []conversationResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, "/api/chat/conversations/9", "", nil, &conversations))
	req.Equal(0, conversations[0].UnreadCount)
}

func TestRelay_Reconnect_Keeps_Newest_Socket(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)

	// Given 9 connected on A then on B
	connA := app.connect(t, 9, "")
	connB := app.connect(t, 9, "")
	bound, _ := app.registry.Lookup(9)

	// When A goes away
	req.NoError(connA.Close())
	time.Sleep(50 * time.Millisecond)

	// Then B is still the live socket and receives messages
	current, ok := app.registry.Lookup(9)
	req.True(ok)
	req.Equal(bound, current)

	sender := app.connect(t, 7, "")
	send(t, sender, map[string]any{"type": "chat", "senderId": 7, "receiverId": 9, "text": "still here?"})
	req.Equal("still here?", receive(t, connB).Message.Message)
}

func TestRelay_Chat_Before_Auth_Is_Rejected(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)
	receiver := app.connect(t, 9, "")
	anonymous := app.dial(t)

	send(t, anonymous, map[string]any{"type": "chat", "senderId": 7, "receiverId": 9, "text": "sneaky"})

	rejected := receive(t, anonymous)
	req.Equal(chat.EventError, rejected.Type)
	req.Equal(chat.ErrCodeUnauthenticated, rejected.Error)
	nothingReceived(t, receiver)

	var transcript []chat.MessageView
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, "/messages/9/7", "", nil, &transcript))
	req.Empty(transcript)
}

func TestRelay_Notifies_Receiver_With_Sender_Name(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)
	vendor := app.seedUser(t, "Lunar Tech")
	buyer := app.seedUser(t, "Neil Explorer")

	sender := app.connect(t, int64(vendor.ID), "")
	send(t, sender, map[string]any{"type": "chat", "senderId": vendor.ID, "receiverId": buyer.ID, "text": "your order shipped"})
	receive(t, sender)

	path := fmt.Sprintf("/api/users/%d/notifications", buyer.ID)
	var notifications []notificationResponse
	req.Eventually(func() bool {
		notifications = nil
		return app.do(t, http.MethodGet, path, "", nil, &notifications) == http.StatusOK && len(notifications) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal("New message from Lunar Tech", notifications[0].Message)
	req.Equal("message", notifications[0].Type)
	req.Equal(0, notifications[0].IsRead)

	// The conversation is enriched with the counterpart profile
	var conversations []conversationResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, fmt.Sprintf("/conversations/%d", buyer.ID), "", nil, &conversations))
	req.Equal("Lunar Tech", conversations[0].OtherUserName)
	req.Equal(vendor.Avatar, conversations[0].OtherUserAvatar)

	// Marking one then all as read
	var ok successResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", notifications[0].ID), "", nil, &ok))
	req.True(ok.Success)
	req.Equal(http.StatusNotFound, app.do(t, http.MethodPut, "/api/notifications/999/read", "", nil, nil))
	req.Equal(http.StatusOK, app.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d/notifications/read-all", buyer.ID), "", nil, &ok))

	req.Equal(http.StatusOK, app.do(t, http.MethodGet, path, "", nil, &notifications))
	req.Equal(1, notifications[0].IsRead)
}

func TestAccounts(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, false)
	signup := map[string]string{
		"name":     "Lunar Tech",
		"email":    "vendor@moonshop.com",
		"password": "ComplexPass123!",
		"role":     "vendor",
	}

	var created authResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodPost, "/api/auth/signup", "", signup, &created))
	req.True(created.Success)
	req.Equal("vendor", created.User.Role)
	req.Equal("https://api.dicebear.com/7.x/avataaars/svg?seed=LunarTech", created.User.Avatar)
	req.NotEmpty(created.Token)

	var failure errorResponse
	req.Equal(http.StatusConflict, app.do(t, http.MethodPost, "/api/auth/signup", "", signup, &failure))
	req.False(failure.Success)

	signup["email"] = "other@moonshop.com"
	signup["password"] = "weak"
	req.Equal(http.StatusBadRequest, app.do(t, http.MethodPost, "/api/auth/signup", "", signup, nil))

	var logged authResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "VENDOR@moonshop.com", "password": "ComplexPass123!"}, &logged))
	req.Equal(created.User.ID, logged.User.ID)

	req.Equal(http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "vendor@moonshop.com", "password": "WrongPass123!"}, nil))

	var profile map[string]any
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", created.User.ID), "", nil, &profile))
	req.Equal("Lunar Tech", profile["name"])
	req.NotContains(profile, "password_hash")

	req.Equal(http.StatusNotFound, app.do(t, http.MethodGet, "/api/users/999", "", nil, nil))
	req.Equal(http.StatusBadRequest, app.do(t, http.MethodGet, "/api/users/abc", "", nil, nil))
}

func TestAuthRequired(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, true)
	token7, err := app.tokens.Generate(account.User{ID: 7})
	req.NoError(err)
	token9, err := app.tokens.Generate(account.User{ID: 9})
	req.NoError(err)

	// HTTP
	req.Equal(http.StatusUnauthorized, app.do(t, http.MethodGet, "/conversations/9", "", nil, nil))
	req.Equal(http.StatusForbidden, app.do(t, http.MethodGet, "/conversations/9", token7, nil, nil))
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, "/conversations/9", token9, nil, nil))
	req.Equal(http.StatusForbidden, app.do(t, http.MethodGet, "/api/users/9/notifications", token7, nil, nil))

	// WebSocket: a token for someone else is refused
	conn := app.dial(t)
	send(t, conn, map[string]any{"type": "auth", "userId": 9, "token": token7})
	rejected := receive(t, conn)
	req.Equal(chat.ErrCodeUnauthorized, rejected.Error)

	// And the right token binds
	app.connect(t, 9, token9)
}

func TestProfileUpdate_Feeds_Conversations_And_Login(t *testing.T) {
	req := require.New(t)
	app := newTestApp(t, true)

	var vendor, buyer authResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Lunar Tech", "email": "vendor@moonshop.com", "password": "ComplexPass123!", "role": "vendor",
	}, &vendor))
	req.Equal(http.StatusOK, app.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": "Neil Explorer", "email": "neil@moonshop.com", "password": "ComplexPass123!",
	}, &buyer))
	vendorPath := fmt.Sprintf("/api/users/%d", vendor.User.ID)

	// Someone else cannot edit the vendor
	req.Equal(http.StatusForbidden, app.do(t, http.MethodPut, vendorPath, buyer.Token,
		map[string]string{"name": "Hijacked"}, nil))

	// The vendor renames itself and moves to a new address with a new password
	var updated profileResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodPut, vendorPath, vendor.Token, map[string]string{
		"name":     "Lunar Tech Labs",
		"email":    "labs@moonshop.com",
		"avatar":   "https://cdn.moonshop.com/lunar.png",
		"password": "NewComplexPass456?",
	}, &updated))
	req.True(updated.Success)
	req.Equal("Lunar Tech Labs", updated.User.Name)
	req.Equal("labs@moonshop.com", updated.User.Email)
	req.Equal("https://cdn.moonshop.com/lunar.png", updated.User.Avatar)
	req.Equal("vendor", updated.User.Role)

	// The buyer cannot take the new address
	var failure errorResponse
	req.Equal(http.StatusConflict, app.do(t, http.MethodPut, fmt.Sprintf("/api/users/%d", buyer.User.ID), buyer.Token,
		map[string]string{"email": "LABS@moonshop.com"}, &failure))
	req.False(failure.Success)

	// Login follows the new email and password only
	req.Equal(http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "vendor@moonshop.com", "password": "ComplexPass123!"}, nil))
	req.Equal(http.StatusOK, app.do(t, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "labs@moonshop.com", "password": "NewComplexPass456?"}, nil))

	// The buyer's conversation list shows the new name and avatar
	conn := app.connect(t, int64(buyer.User.ID), buyer.Token)
	send(t, conn, map[string]any{"type": "chat", "senderId": buyer.User.ID, "receiverId": vendor.User.ID, "text": "is the lamp in stock?"})
	req.Equal(chat.EventChatSent, receive(t, conn).Type)

	var conversations []conversationResponse
	req.Equal(http.StatusOK, app.do(t, http.MethodGet, fmt.Sprintf("/conversations/%d", buyer.User.ID), buyer.Token, nil, &conversations))
	req.Len(conversations, 1)
	req.Equal("Lunar Tech Labs", conversations[0].OtherUserName)
	req.Equal("https://cdn.moonshop.com/lunar.png", conversations[0].OtherUserAvatar)
}
