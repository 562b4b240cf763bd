package workers

import (
	"context"
	"fmt"
	"log/slog"
	"moonshop/contract"
	"moonshop/domain/chat"
	"moonshop/domain/event"
	"moonshop/domain/notification"
	"moonshop/repositories"
)

// NotificationWorker turns every stored message into an inbox notification
// for its receiver. A failed notification is logged and skipped.
type NotificationWorker struct {
	events   <-chan event.MessageStored
	users    repositories.IUserRepository
	notifier contract.Notifier
	log      *slog.Logger
}

func NewNotificationWorker(events <-chan event.MessageStored, users repositories.IUserRepository,
	notifier contract.Notifier, log *slog.Logger) *NotificationWorker {
	return &NotificationWorker{events: events, users: users, notifier: notifier, log: log}
}

func (w NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping notification worker")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.notify(ctx, evt)
		}
	}
}

func (w NotificationWorker) notify(ctx context.Context, evt event.MessageStored) {
	message := evt.Message
	text := fmt.Sprintf("New message from %s", w.senderName(message.SenderID))
	if err := w.notifier.Notify(ctx, message.ReceiverID, text, notification.KindMessage); err != nil {
		w.log.Warn("Unable to notify receiver", "message_id", message.ID,
			"user_id", message.ReceiverID, "error", err)
	}
}

func (w NotificationWorker) senderName(senderID chat.UserID) string {
	user, err := w.users.GetUserByID(senderID)
	if err != nil || user.Name == "" {
		w.log.Debug("Sender name unavailable", "user_id", senderID, "error", err)
		return fmt.Sprintf("user %d", senderID)
	}
	return user.Name
}
