package services

import (
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/mocks"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_GetConversations(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Given 9 talked with 7 then with 3
	messages.EXPECT().GetConversations(chat.UserID(9)).Return([]chat.Conversation{
		{OtherUserID: 7, LastMessage: "hello", LastMessageID: 1, LastMessageAt: at, UnreadCount: 1},
		{OtherUserID: 3, LastMessage: "order shipped", LastMessageID: 2, LastMessageAt: at.Add(time.Minute)},
	}, nil)
	users.EXPECT().GetUsersByIDs(gomock.InAnyOrder([]chat.UserID{7, 3})).Return(map[chat.UserID]account.User{
		7: {ID: 7, Name: "Lunar Tech"},
		3: {ID: 3, Name: "Commander Admin"},
	}, nil)

	conversations, err := NewChatService(messages, users).GetConversations(9)

	req.NoError(err)
	req.Len(conversations, 2)
	req.Equal("Commander Admin", conversations[0].OtherUserName)
	req.Equal("Lunar Tech", conversations[1].OtherUserName)
	req.Equal(1, conversations[1].UnreadCount)
}

func TestChatService_GetConversations_Empty_Skips_Users(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	users := mocks.NewMockIUserRepository(ctrl)

	messages.EXPECT().GetConversations(chat.UserID(42)).Return(nil, nil)
	users.EXPECT().GetUsersByIDs(gomock.Any()).Times(0)

	conversations, err := NewChatService(messages, users).GetConversations(42)

	req.NoError(err)
	req.NotNil(conversations)
	req.Empty(conversations)
}

func TestChatService_GetTranscript(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)

	messages.EXPECT().GetTranscript(chat.UserID(9), chat.UserID(7)).Return(nil, nil)

	transcript, err := NewChatService(messages, mocks.NewMockIUserRepository(ctrl)).GetTranscript(9, 7)

	req.NoError(err)
	req.NotNil(transcript)
	req.Empty(transcript)
}
