package sink

import (
	"context"
	"moonshop/domain/event"
	"moonshop/errors"
)

// NotificationSink hands stored messages over to the notification worker.
type NotificationSink struct {
	Events chan event.MessageStored
}

func NewNotificationSink(bufferSize int) *NotificationSink {
	return &NotificationSink{Events: make(chan event.MessageStored, bufferSize)}
}

// Consume does not wait for the worker: when the queue is full the
// notification is lost and ErrBackpressure is returned.
func (s *NotificationSink) Consume(ctx context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageStored)
	if !ok {
		return nil
	}
	select {
	case s.Events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrBackpressure
	}
}
