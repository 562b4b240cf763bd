package chat

import "time"

type EventType string

const (
	EventChat     EventType = "chat"
	EventChatSent EventType = "chat_sent"
	EventError    EventType = "error"
)

// ErrorCode tells a client why one of its frames was rejected.
type ErrorCode string

const (
	ErrCodeUnauthenticated      ErrorCode = "unauthenticated"
	ErrCodeUnauthorized         ErrorCode = "unauthorized"
	ErrCodeAlreadyAuthenticated ErrorCode = "already_authenticated"
	ErrCodeSenderMismatch       ErrorCode = "sender_mismatch"
	ErrCodeSendFailed           ErrorCode = "send_failed"
)

// MessageView is the wire representation of a Message.
// is_read is kept numeric (0/1) for compatibility with existing clients.
type MessageView struct {
	ID         uint64    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     int       `json:"is_read"`
}

// ServerEvent is every frame the server pushes to a client.
type ServerEvent struct {
	Type    EventType    `json:"type"`
	Message *MessageView `json:"message,omitempty"`
	Error   ErrorCode    `json:"error,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

func ToMessageView(m Message) MessageView {
	isRead := 0
	if m.IsRead {
		isRead = 1
	}
	return MessageView{
		ID:         m.ID,
		SenderID:   int64(m.SenderID),
		ReceiverID: int64(m.ReceiverID),
		Message:    m.Body,
		CreatedAt:  m.CreatedAt,
		IsRead:     isRead,
	}
}

func NewChatEvent(m Message) ServerEvent {
	view := ToMessageView(m)
	return ServerEvent{Type: EventChat, Message: &view}
}

func NewChatSentEvent(m Message) ServerEvent {
	view := ToMessageView(m)
	return ServerEvent{Type: EventChatSent, Message: &view}
}

func NewErrorEvent(code ErrorCode, detail string) ServerEvent {
	return ServerEvent{Type: EventError, Error: code, Detail: detail}
}
