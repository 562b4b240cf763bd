package server

import (
	"log/slog"
	"moonshop/auth"
	"moonshop/domain/notification"
	"moonshop/services"
	"net/http"
	"time"

	"github.com/samber/lo"
)

type NotificationHandler struct {
	notificationService services.INotificationService
	log                 *slog.Logger
}

func NewNotificationHandler(notificationService services.INotificationService, log *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, log: log}
}

type notificationResponse struct {
	ID        uint64    `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    int       `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnsureSameUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	notifications, err := h.notificationService.List(userID)
	if err != nil {
		h.log.Error("Unable to list notifications", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(notifications, func(n notification.Notification, _ int) notificationResponse {
		return notificationResponse{
			ID:        n.ID,
			UserID:    int64(n.UserID),
			Message:   n.Message,
			Type:      string(n.Kind),
			IsRead:    boolToInt(n.IsRead),
			CreatedAt: n.CreatedAt,
		}
	}))
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.notificationService.MarkAsRead(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDVar(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := auth.EnsureSameUser(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.notificationService.MarkAllAsRead(userID)
	if err != nil {
		h.log.Error("Unable to update notifications", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	h.log.Debug("Notifications marked as read", "user_id", userID, "count", updated)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
