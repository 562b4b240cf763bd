// Package notification describes the per-user inbox rows written by the
// marketplace and by the chat relay.
package notification

import (
	"moonshop/domain/chat"
	"time"
)

type Kind string

const (
	KindOrder   Kind = "order"
	KindReview  Kind = "review"
	KindStatus  Kind = "status"
	KindSystem  Kind = "system"
	KindMessage Kind = "message"
)

type Notification struct {
	ID        uint64
	UserID    chat.UserID
	Message   string
	Kind      Kind
	IsRead    bool
	CreatedAt time.Time
}
