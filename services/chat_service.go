package services

import (
	"moonshop/domain/chat"
	"moonshop/projection"
	"moonshop/repositories"
)

type IChatService interface {
	GetConversations(userID chat.UserID) ([]chat.Conversation, error)
	GetTranscript(userID, otherUserID chat.UserID) ([]chat.Message, error)
}

// ChatService serves the read side of direct messaging.
type ChatService struct {
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
}

func NewChatService(messages repositories.IMessageRepository, users repositories.IUserRepository) *ChatService {
	return &ChatService{messages: messages, users: users}
}

func (s *ChatService) GetConversations(userID chat.UserID) ([]chat.Conversation, error) {
	conversations, err := s.messages.GetConversations(userID)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return []chat.Conversation{}, nil
	}
	users, err := s.users.GetUsersByIDs(projection.Counterparts(conversations))
	if err != nil {
		return nil, err
	}
	return projection.Conversations(conversations, users), nil
}

// GetTranscript marks what otherUserID sent to userID as read before returning the exchange.
func (s *ChatService) GetTranscript(userID, otherUserID chat.UserID) ([]chat.Message, error) {
	messages, err := s.messages.GetTranscript(userID, otherUserID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		return []chat.Message{}, nil
	}
	return messages, nil
}
