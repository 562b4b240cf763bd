// Package chat contains the direct messaging concepts shared by the relay,
// the store and the HTTP read path.
package chat

import "time"

// UserID is an opaque account identifier owned by the account domain.
type UserID int64

// Message is a direct message between two users.
// It is immutable once stored, except for the IsRead flag which only moves
// from false to true.
type Message struct {
	ID         uint64
	SenderID   UserID
	ReceiverID UserID
	Body       string
	CreatedAt  time.Time
	IsRead     bool
}

// Between reports whether the message was exchanged by a and b, in any direction.
func (m Message) Between(a, b UserID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Counterpart returns the other participant of the message from the point of view of userID.
func (m Message) Counterpart(userID UserID) UserID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Conversation is a read-time summary of every message exchanged with one counterpart.
type Conversation struct {
	OtherUserID     UserID
	OtherUserName   string
	OtherUserAvatar string
	LastMessage     string
	LastMessageID   uint64
	LastMessageAt   time.Time
	UnreadCount     int
}
