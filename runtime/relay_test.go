package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"moonshop/domain/chat"
	"moonshop/domain/event"
	"moonshop/errors"
	"moonshop/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var storedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type relayFixture struct {
	relay    *Relay
	registry *Registry
	messages *mocks.MockIMessageRepository
	events   *mocks.MockEventSink
}

func newRelayFixture(t *testing.T) relayFixture {
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	messages := mocks.NewMockIMessageRepository(ctrl)
	events := mocks.NewMockEventSink(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	return relayFixture{
		relay:    NewRelay(registry, messages, events, log),
		registry: registry,
		messages: messages,
		events:   events,
	}
}

func frame(t *testing.T, v map[string]any) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func authFrame(t *testing.T, userID int64) []byte {
	return frame(t, map[string]any{"type": "auth", "userId": userID})
}

func chatFrame(t *testing.T, senderID, receiverID int64, text string) []byte {
	return frame(t, map[string]any{"type": "chat", "senderId": senderID, "receiverId": receiverID, "text": text})
}

func (f relayFixture) connect(t *testing.T, userID int64) (*Session, *recordingConn) {
	conn := &recordingConn{}
	session := f.relay.Open(conn)
	f.relay.Handle(context.Background(), session, authFrame(t, userID))
	require.Equal(t, StateAuthenticated, session.State())
	return session, conn
}

func TestRelay_Delivers_To_Online_Receiver(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	ctx := context.Background()

	// Given users 7 and 9 are both connected
	sender, senderConn := f.connect(t, 7)
	_, receiverConn := f.connect(t, 9)

	stored := chat.Message{ID: 1, SenderID: 7, ReceiverID: 9, Body: "hello", CreatedAt: storedAt}
	gomock.InOrder(
		f.messages.EXPECT().StoreMessage(chat.UserID(7), chat.UserID(9), "hello").Return(stored, nil),
		f.events.EXPECT().Consume(gomock.Any(), event.MessageStored{Message: stored}).Return(nil),
	)

	// When 7 sends a message to 9
	f.relay.Handle(ctx, sender, chatFrame(t, 7, 9, "hello"))

	// Then 9 receives it live
	received := receiverConn.Events()
	req.Len(received, 1)
	req.Equal(chat.EventChat, received[0].Type)
	req.Equal("hello", received[0].Message.Message)
	req.Equal(0, received[0].Message.IsRead)

	// And 7 gets an acknowledgement carrying the same id
	acks := senderConn.Events()
	req.Len(acks, 1)
	req.Equal(chat.EventChatSent, acks[0].Type)
	req.Equal(received[0].Message.ID, acks[0].Message.ID)
}

func TestRelay_Offline_Receiver_Still_Acknowledged(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	// Given only 7 is connected
	sender, senderConn := f.connect(t, 7)

	stored := chat.Message{ID: 3, SenderID: 7, ReceiverID: 9, Body: "are you there?", CreatedAt: storedAt}
	f.messages.EXPECT().StoreMessage(chat.UserID(7), chat.UserID(9), "are you there?").Return(stored, nil)
	f.events.EXPECT().Consume(gomock.Any(), event.MessageStored{Message: stored}).Return(nil)

	// When 7 writes to 9
	f.relay.Handle(context.Background(), sender, chatFrame(t, 7, 9, "are you there?"))

	// Then the message is stored and acknowledged
	acks := senderConn.Events()
	req.Len(acks, 1)
	req.Equal(chat.EventChatSent, acks[0].Type)
	req.Equal(uint64(3), acks[0].Message.ID)
}

func TestRelay_Chat_Before_Auth_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	conn := &recordingConn{}
	session := f.relay.Open(conn)

	// Nothing may reach the store or the notification sink
	f.messages.EXPECT().StoreMessage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.events.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	f.relay.Handle(context.Background(), session, chatFrame(t, 7, 9, "hello"))

	req.Equal(StateUnauthenticated, session.State())
	events := conn.Events()
	req.Len(events, 1)
	req.Equal(chat.EventError, events[0].Type)
	req.Equal(chat.ErrCodeUnauthenticated, events[0].Error)
}

func TestRelay_Sender_Mismatch_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	session, conn := f.connect(t, 7)

	f.messages.EXPECT().StoreMessage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// 7 pretends to be 8
	f.relay.Handle(context.Background(), session, chatFrame(t, 8, 9, "spoofed"))

	events := conn.Events()
	req.Len(events, 1)
	req.Equal(chat.ErrCodeSenderMismatch, events[0].Error)
}

func TestRelay_Store_Failure_Aborts_Send(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	sender, senderConn := f.connect(t, 7)
	_, receiverConn := f.connect(t, 9)

	f.messages.EXPECT().StoreMessage(chat.UserID(7), chat.UserID(9), "hello").
		Return(chat.Message{}, fmt.Errorf("disk full"))
	f.events.EXPECT().Consume(gomock.Any(), gomock.Any()).Times(0)

	f.relay.Handle(context.Background(), sender, chatFrame(t, 7, 9, "hello"))

	// No push, no ack, only an explicit failure
	req.Empty(receiverConn.Events())
	events := senderConn.Events()
	req.Len(events, 1)
	req.Equal(chat.EventError, events[0].Type)
	req.Equal(chat.ErrCodeSendFailed, events[0].Error)
}

func TestRelay_Delivery_Failure_Is_Swallowed(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	sender, senderConn := f.connect(t, 7)
	_, receiverConn := f.connect(t, 9)
	receiverConn.err = errors.ErrConnectionClosed

	stored := chat.Message{ID: 5, SenderID: 7, ReceiverID: 9, Body: "hello", CreatedAt: storedAt}
	f.messages.EXPECT().StoreMessage(chat.UserID(7), chat.UserID(9), "hello").Return(stored, nil)
	f.events.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	f.relay.Handle(context.Background(), sender, chatFrame(t, 7, 9, "hello"))

	acks := senderConn.Events()
	req.Len(acks, 1)
	req.Equal(chat.EventChatSent, acks[0].Type)
}

func TestRelay_Reauth_Replaces_Binding_And_Stale_Close_Keeps_It(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	// Given user 9 authenticates on A then on B
	sessionA, _ := f.connect(t, 9)
	_, connB := f.connect(t, 9)

	found, ok := f.registry.Lookup(9)
	req.True(ok)
	req.Same(connB, found)

	// When A closes
	f.relay.Close(sessionA)

	// Then B is still the live connection
	found, ok = f.registry.Lookup(9)
	req.True(ok)
	req.Same(connB, found)
	req.Equal(StateClosed, sessionA.State())
}

func TestRelay_Auth_For_Another_User_Is_Refused(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	session, conn := f.connect(t, 7)

	f.relay.Handle(context.Background(), session, authFrame(t, 8))

	req.Equal(chat.UserID(7), session.UserID())
	events := conn.Events()
	req.Len(events, 1)
	req.Equal(chat.ErrCodeAlreadyAuthenticated, events[0].Error)
	_, ok := f.registry.Lookup(8)
	req.False(ok)
}

func TestRelay_Reauth_Same_User_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	session, conn := f.connect(t, 7)

	f.relay.Handle(context.Background(), session, authFrame(t, 7))

	req.Equal(StateAuthenticated, session.State())
	req.Empty(conn.Events())
	found, ok := f.registry.Lookup(7)
	req.True(ok)
	req.Same(conn, found)
}

func TestRelay_Malformed_Frames_Are_Ignored(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	session, conn := f.connect(t, 7)
	f.messages.EXPECT().StoreMessage(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	for _, raw := range [][]byte{
		[]byte("not json"),
		[]byte(`{"type":"typing"}`),
		[]byte(`{"type":"chat","senderId":7,"receiverId":9}`),
		[]byte(`{"type":"chat","senderId":7,"text":"no receiver"}`),
		[]byte(`{"type":"auth"}`),
	} {
		f.relay.Handle(context.Background(), session, raw)
	}

	req.Equal(StateAuthenticated, session.State())
	req.Equal(chat.UserID(7), session.UserID())
	req.Empty(conn.Events())
}

func TestRelay_Close_Before_Auth_And_Frames_After_Close(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	conn := &recordingConn{}
	session := f.relay.Open(conn)

	f.relay.Close(session)
	f.relay.Handle(context.Background(), session, authFrame(t, 7))

	req.Equal(StateClosed, session.State())
	_, ok := f.registry.Lookup(7)
	req.False(ok)
	req.Empty(conn.Events())
}

func TestRelay_Close_Unbinds(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)
	session, _ := f.connect(t, 7)

	f.relay.Close(session)

	_, ok := f.registry.Lookup(7)
	req.False(ok)
}

func TestRelay_Moderator_Censors_Before_Store(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newRelayFixture(t)
	moderator := mocks.NewMockModerator(ctrl)
	f.relay.WithModerator(moderator)
	session, conn := f.connect(t, 7)

	moderator.EXPECT().Censor("you badger").Return("you ******", []string{"badger"})
	stored := chat.Message{ID: 1, SenderID: 7, ReceiverID: 9, Body: "you ******", CreatedAt: storedAt}
	f.messages.EXPECT().StoreMessage(chat.UserID(7), chat.UserID(9), "you ******").Return(stored, nil)
	f.events.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil)

	f.relay.Handle(context.Background(), session, chatFrame(t, 7, 9, "you badger"))

	req.Equal("you ******", conn.Events()[0].Message.Message)
}

func TestRelay_Token_Required(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newRelayFixture(t)
	tokens := mocks.NewMockTokenVerifier(ctrl)
	f.relay.WithTokenVerifier(tokens)

	t.Run("should refuse a token issued for someone else", func(t *testing.T) {
		req := require.New(t)
		conn := &recordingConn{}
		session := f.relay.Open(conn)
		tokens.EXPECT().Verify("token-of-8").Return(chat.UserID(8), nil)

		f.relay.Handle(context.Background(), session,
			frame(t, map[string]any{"type": "auth", "userId": 7, "token": "token-of-8"}))

		req.Equal(StateUnauthenticated, session.State())
		req.Equal(chat.ErrCodeUnauthorized, conn.Events()[0].Error)
	})

	t.Run("should refuse an invalid token", func(t *testing.T) {
		req := require.New(t)
		conn := &recordingConn{}
		session := f.relay.Open(conn)
		tokens.EXPECT().Verify("").Return(chat.UserID(0), errors.ErrUnauthenticated)

		f.relay.Handle(context.Background(), session, authFrame(t, 7))

		req.Equal(StateUnauthenticated, session.State())
		req.Equal(chat.ErrCodeUnauthorized, conn.Events()[0].Error)
	})

	t.Run("should bind with a matching token", func(t *testing.T) {
		req := require.New(t)
		conn := &recordingConn{}
		session := f.relay.Open(conn)
		tokens.EXPECT().Verify("token-of-7").Return(chat.UserID(7), nil)

		f.relay.Handle(context.Background(), session,
			frame(t, map[string]any{"type": "auth", "userId": 7, "token": "token-of-7"}))

		req.Equal(StateAuthenticated, session.State())
		req.Empty(conn.Events())
	})
}
