// Package runtime routes chat frames between live connections and the message store.
package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"moonshop/contract"
	"moonshop/domain/chat"
	"moonshop/domain/event"
	"moonshop/repositories"

	"github.com/go-playground/validator/v10"
)

// Relay drives the per-connection state machine:
// Unauthenticated -> Authenticated(user) -> Closed.
//
// Frames of one connection are handled sequentially by its read loop.
// A message is always persisted before it is pushed or acknowledged.
type Relay struct {
	registry  contract.IRegistry
	messages  repositories.IMessageRepository
	events    contract.EventSink
	moderator contract.Moderator
	tokens    contract.TokenVerifier
	validate  *validator.Validate
	log       *slog.Logger
}

func NewRelay(registry contract.IRegistry, messages repositories.IMessageRepository,
	events contract.EventSink, log *slog.Logger) *Relay {
	return &Relay{
		registry: registry,
		messages: messages,
		events:   events,
		validate: validator.New(),
		log:      log,
	}
}

// WithModerator censors every message before it is stored.
func (r *Relay) WithModerator(moderator contract.Moderator) *Relay {
	r.moderator = moderator
	return r
}

// WithTokenVerifier makes auth frames carry a token issued for the claimed user.
func (r *Relay) WithTokenVerifier(tokens contract.TokenVerifier) *Relay {
	r.tokens = tokens
	return r
}

// Open starts a session for a freshly accepted connection.
func (r *Relay) Open(conn contract.Connection) *Session {
	session := newSession(conn)
	r.log.Debug("Session opened", "session_id", session.ID)
	return session
}

// Handle processes one raw frame received on the session's connection.
// Protocol errors are logged and leave the session untouched.
func (r *Relay) Handle(ctx context.Context, session *Session, raw []byte) {
	if session.state == StateClosed {
		return
	}

	var frame chat.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Warn("Malformed frame", "session_id", session.ID, "error", err)
		return
	}

	switch frame.Type {
	case chat.FrameAuth:
		r.handleAuth(ctx, session, frame.ToAuthCommand())
	case chat.FrameChat:
		r.handleChat(ctx, session, frame.ToSendMessageCommand())
	default:
		r.log.Warn("Unknown frame type", "session_id", session.ID, "type", frame.Type)
	}
}

// Close ends the session. The registry entry is only removed when it still
// points at this session's connection.
func (r *Relay) Close(session *Session) {
	if session.state == StateAuthenticated {
		removed := r.registry.Unbind(session.userID, session.conn)
		r.log.Debug("Session closed", "session_id", session.ID,
			"user_id", session.userID, "unbound", removed)
	}
	session.state = StateClosed
}

func (r *Relay) handleAuth(ctx context.Context, session *Session, cmd chat.AuthCommand) {
	if err := r.validate.Struct(cmd); err != nil {
		r.log.Warn("Invalid auth frame", "session_id", session.ID, "error", err)
		return
	}

	if r.tokens != nil {
		userID, err := r.tokens.Verify(cmd.Token)
		if err != nil || userID != cmd.UserID {
			r.log.Info("Auth rejected", "session_id", session.ID, "user_id", cmd.UserID, "error", err)
			r.reject(ctx, session, chat.ErrCodeUnauthorized, "invalid token for this user")
			return
		}
	}

	if session.state == StateAuthenticated {
		if session.userID != cmd.UserID {
			r.reject(ctx, session, chat.ErrCodeAlreadyAuthenticated, "connection is bound to another user")
			return
		}
		r.log.Debug("Re-binding session", "session_id", session.ID, "user_id", cmd.UserID)
	}

	session.state = StateAuthenticated
	session.userID = cmd.UserID
	r.registry.Bind(cmd.UserID, session.conn)
	r.log.Info("User connected", "session_id", session.ID, "user_id", cmd.UserID)
}

func (r *Relay) handleChat(ctx context.Context, session *Session, cmd chat.SendMessageCommand) {
	if err := r.validate.Struct(cmd); err != nil {
		r.log.Warn("Invalid chat frame", "session_id", session.ID, "error", err)
		return
	}
	if session.state != StateAuthenticated {
		r.reject(ctx, session, chat.ErrCodeUnauthenticated, "send an auth frame first")
		return
	}
	if cmd.SenderID != session.userID {
		r.reject(ctx, session, chat.ErrCodeSenderMismatch, "senderId must be the authenticated user")
		return
	}

	text := cmd.Text
	if r.moderator != nil {
		var words []string
		if text, words = r.moderator.Censor(text); len(words) > 0 {
			r.log.Info("Message censored", "session_id", session.ID, "user_id", session.userID, "count", len(words))
		}
	}

	message, err := r.messages.StoreMessage(cmd.SenderID, cmd.ReceiverID, text)
	if err != nil {
		r.log.Error("Unable to store message", "session_id", session.ID, "user_id", session.userID, "error", err)
		r.reject(ctx, session, chat.ErrCodeSendFailed, "message could not be stored")
		return
	}

	if receiver, ok := r.registry.Lookup(cmd.ReceiverID); ok {
		if err := receiver.Send(ctx, chat.NewChatEvent(message)); err != nil {
			r.log.Debug("Live delivery failed", "message_id", message.ID, "user_id", cmd.ReceiverID, "error", err)
		}
	}

	if err := session.conn.Send(ctx, chat.NewChatSentEvent(message)); err != nil {
		r.log.Debug("Acknowledgement failed", "message_id", message.ID, "user_id", session.userID, "error", err)
	}

	if err := r.events.Consume(ctx, event.MessageStored{Message: message}); err != nil {
		r.log.Warn("Notification not published", "message_id", message.ID, "error", err)
	}
}

func (r *Relay) reject(ctx context.Context, session *Session, code chat.ErrorCode, detail string) {
	if err := session.conn.Send(ctx, chat.NewErrorEvent(code, detail)); err != nil {
		r.log.Debug("Error event not delivered", "session_id", session.ID, "code", code, "error", err)
	}
}
