package services

import (
	"context"
	"moonshop/domain/chat"
	"moonshop/domain/notification"
	"moonshop/repositories"
)

type INotificationService interface {
	Notify(ctx context.Context, userID chat.UserID, message string, kind notification.Kind) error
	List(userID chat.UserID) ([]notification.Notification, error)
	MarkAsRead(id uint64) error
	MarkAllAsRead(userID chat.UserID) (int, error)
}

type NotificationService struct {
	repository repositories.INotificationRepository
	limit      int
}

func NewNotificationService(repository repositories.INotificationRepository, limit int) *NotificationService {
	return &NotificationService{repository: repository, limit: limit}
}

func (s *NotificationService) Notify(ctx context.Context, userID chat.UserID, message string, kind notification.Kind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.repository.CreateNotification(userID, message, kind)
	return err
}

// List returns the latest notifications of the user, newest first.
func (s *NotificationService) List(userID chat.UserID) ([]notification.Notification, error) {
	notifications, err := s.repository.GetNotifications(userID, s.limit)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		return []notification.Notification{}, nil
	}
	return notifications, nil
}

func (s *NotificationService) MarkAsRead(id uint64) error {
	return s.repository.MarkAsRead(id)
}

func (s *NotificationService) MarkAllAsRead(userID chat.UserID) (int, error) {
	return s.repository.MarkAllAsRead(userID)
}
