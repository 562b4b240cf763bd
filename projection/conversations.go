// Package projection shapes raw message summaries into what clients display.
// It does not read storage itself.
package projection

import (
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"sort"

	"github.com/samber/lo"
)

// Counterparts lists the user ids a set of conversations needs profiles for.
func Counterparts(conversations []chat.Conversation) []chat.UserID {
	return lo.Uniq(lo.Map(conversations, func(c chat.Conversation, _ int) chat.UserID {
		return c.OtherUserID
	}))
}

// Conversations fills in counterpart names and avatars and orders the list
// newest conversation first. Unknown counterparts keep an empty name and avatar.
func Conversations(conversations []chat.Conversation, users map[chat.UserID]account.User) []chat.Conversation {
	enriched := lo.Map(conversations, func(c chat.Conversation, _ int) chat.Conversation {
		if user, ok := users[c.OtherUserID]; ok {
			c.OtherUserName = user.Name
			c.OtherUserAvatar = user.Avatar
		}
		return c
	})

	sort.SliceStable(enriched, func(i, j int) bool {
		if enriched[i].LastMessageAt.Equal(enriched[j].LastMessageAt) {
			return enriched[i].LastMessageID > enriched[j].LastMessageID
		}
		return enriched[i].LastMessageAt.After(enriched[j].LastMessageAt)
	})
	return enriched
}
