package projection

import (
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversations_Enriched_And_Newest_First(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Given three conversations, two of them ending at the same instant
	conversations := []chat.Conversation{
		{OtherUserID: 3, LastMessage: "old", LastMessageID: 1, LastMessageAt: at},
		{OtherUserID: 7, LastMessage: "tie low", LastMessageID: 4, LastMessageAt: at.Add(time.Hour)},
		{OtherUserID: 8, LastMessage: "tie high", LastMessageID: 5, LastMessageAt: at.Add(time.Hour)},
	}
	users := map[chat.UserID]account.User{
		7: {ID: 7, Name: "Lunar Tech", Avatar: "https://example.com/7.svg"},
		3: {ID: 3, Name: "Commander Admin", Avatar: "https://example.com/3.svg"},
	}

	// When they are projected
	projected := Conversations(conversations, users)

	// Then the most recent comes first, ties broken by message id
	req.Equal([]chat.UserID{8, 7, 3}, Counterparts(projected))
	req.Equal("Lunar Tech", projected[1].OtherUserName)
	req.Equal("https://example.com/3.svg", projected[2].OtherUserAvatar)

	// And the unknown counterpart stays anonymous
	req.Empty(projected[0].OtherUserName)
	req.Empty(projected[0].OtherUserAvatar)
}

func TestConversations_Empty(t *testing.T) {
	req := require.New(t)

	req.Empty(Conversations(nil, nil))
	req.Empty(Counterparts(nil))
}
