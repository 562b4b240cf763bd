package server

import (
	"log/slog"
	"moonshop/auth"
	"moonshop/domain/chat"
	"moonshop/services"
	"net/http"
	"time"

	"github.com/samber/lo"
)

type ChatHandler struct {
	chatService services.IChatService
	log         *slog.Logger
}

func NewChatHandler(chatService services.IChatService, log *slog.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, log: log}
}

type conversationResponse struct {
	OtherUserID     int64     `json:"other_user_id"`
	OtherUserName   string    `json:"other_user_name"`
	OtherUserAvatar string    `json:"other_user_avatar"`
	LastMessage     string    `json:"last_message"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
}

// GetConversations lists the conversations of {userId}, newest first.
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnsureSameUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	conversations, err := h.chatService.GetConversations(userID)
	if err != nil {
		h.log.Error("Unable to list conversations", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(conversations, func(c chat.Conversation, _ int) conversationResponse {
		return toConversationResponse(c)
	}))
}

// GetMessages returns the transcript between {userId} and {otherUserId},
// marking what {otherUserId} sent as read.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "userId")
	if err != nil {
		writeError(w, err)
		return
	}
	otherUserID, err := userIDVar(r, "otherUserId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnsureSameUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.chatService.GetTranscript(userID, otherUserID)
	if err != nil {
		h.log.Error("Unable to fetch transcript", "user_id", userID, "other_user_id", otherUserID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m chat.Message, _ int) chat.MessageView {
		return chat.ToMessageView(m)
	}))
}

func toConversationResponse(c chat.Conversation) conversationResponse {
	return conversationResponse{
		OtherUserID:     int64(c.OtherUserID),
		OtherUserName:   c.OtherUserName,
		OtherUserAvatar: c.OtherUserAvatar,
		LastMessage:     c.LastMessage,
		LastMessageAt:   c.LastMessageAt,
		UnreadCount:     c.UnreadCount,
	}
}
