package workers

import (
	"context"
	"fmt"
	"log/slog"
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/domain/event"
	"moonshop/domain/notification"
	"moonshop/errors"
	"moonshop/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestNotificationWorker_Notifies_Receiver(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	events := make(chan event.MessageStored, 2)
	events <- event.MessageStored{Message: chat.Message{ID: 1, SenderID: 7, ReceiverID: 9, Body: "hello"}}
	events <- event.MessageStored{Message: chat.Message{ID: 2, SenderID: 8, ReceiverID: 9, Body: "hey"}}
	close(events)

	// Given 7 is known and 8 is not
	users.EXPECT().GetUserByID(chat.UserID(7)).Return(account.User{ID: 7, Name: "Lunar Tech"}, nil)
	users.EXPECT().GetUserByID(chat.UserID(8)).Return(account.User{}, errors.ErrNotFound)

	// Then both messages produce a notification, the second one still failing is tolerated
	gomock.InOrder(
		notifier.EXPECT().Notify(gomock.Any(), chat.UserID(9), "New message from Lunar Tech", notification.KindMessage).Return(nil),
		notifier.EXPECT().Notify(gomock.Any(), chat.UserID(9), "New message from user 8", notification.KindMessage).Return(fmt.Errorf("disk full")),
	)

	req.NoError(NewNotificationWorker(events, users, notifier, log).Run(context.Background()))
}

func TestNotificationWorker_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	worker := NewNotificationWorker(make(chan event.MessageStored), mocks.NewMockIUserRepository(ctrl), mocks.NewMockNotifier(ctrl), log)
	req.NoError(worker.Run(ctx))
}
