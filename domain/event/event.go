// Package event defines what the relay publishes once a message is durable.
package event

import (
	"moonshop/domain/chat"
	"time"
)

type DomainEvent interface {
	OccurredAt() time.Time
}

// MessageStored is emitted once per successfully persisted chat message.
type MessageStored struct {
	Message chat.Message
}

func (m MessageStored) OccurredAt() time.Time {
	return m.Message.CreatedAt
}
