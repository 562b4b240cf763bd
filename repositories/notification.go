//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"fmt"
	"moonshop/domain/chat"
	"moonshop/domain/notification"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type INotificationRepository interface {
	CreateNotification(userID chat.UserID, message string, kind notification.Kind) (notification.Notification, error)
	GetNotifications(userID chat.UserID, limit int) ([]notification.Notification, error)
	MarkAsRead(id uint64) error
	MarkAllAsRead(userID chat.UserID) (int, error)
}

// NotificationRepository stores inbox rows under notif:{id} and indexes
// them per user under notif_user:{user}:{id}.
type NotificationRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewNotificationRepository(db *badger.DB) (*NotificationRepository, error) {
	seq, err := db.GetSequence([]byte("seq:notifications"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("notification sequence: %w", err)
	}
	return &NotificationRepository{db: db, seq: seq}, nil
}

func (n *NotificationRepository) Close() error {
	return n.seq.Release()
}

type diskNotification struct {
	ID        uint64    `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *NotificationRepository) CreateNotification(userID chat.UserID, message string, kind notification.Kind) (notification.Notification, error) {
	id, err := nextID(n.seq)
	if err != nil {
		return notification.Notification{}, err
	}
	created := notification.Notification{
		ID:        id,
		UserID:    userID,
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	err = n.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, notificationKey(id), fromNotification(created)); err != nil {
			return err
		}
		return txn.Set([]byte(userNotificationKey(userID, id)), nil)
	})
	if err != nil {
		return notification.Notification{}, fmt.Errorf("store notification for %d: %w", userID, err)
	}
	return created, nil
}

// GetNotifications returns the newest notifications first.
// Ids grow with time, so walking the user index backwards is enough.
func (n *NotificationRepository) GetNotifications(userID chat.UserID, limit int) ([]notification.Notification, error) {
	var notifications []notification.Notification
	err := n.db.View(func(txn *badger.Txn) error {
		prefix := userNotificationPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false

		var ids []uint64
		it := txn.NewIterator(options)
		for it.Seek([]byte(prefix + reverseSeekSuffix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && len(ids) == limit {
				break
			}
			id, err := strconv.ParseUint(string(it.Item().Key()[len(prefix):]), 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		it.Close()

		for _, id := range ids {
			var dn diskNotification
			if err := getJSON(txn, notificationKey(id), &dn); err != nil {
				return err
			}
			notifications = append(notifications, toNotification(dn))
		}
		return nil
	})
	return notifications, err
}

func (n *NotificationRepository) MarkAsRead(id uint64) error {
	return updateWithRetry(n.db, func(txn *badger.Txn) error {
		var dn diskNotification
		if err := getJSON(txn, notificationKey(id), &dn); err != nil {
			return err
		}
		if dn.IsRead {
			return nil
		}
		dn.IsRead = true
		return setJSON(txn, notificationKey(id), dn)
	})
}

// MarkAllAsRead flags every notification of the user and reports how many changed.
func (n *NotificationRepository) MarkAllAsRead(userID chat.UserID) (int, error) {
	var updated int
	err := updateWithRetry(n.db, func(txn *badger.Txn) error {
		updated = 0
		_, ids := scanIDs(txn, userNotificationPrefix(userID))
		for _, id := range ids {
			var dn diskNotification
			if err := getJSON(txn, notificationKey(id), &dn); err != nil {
				return err
			}
			if dn.IsRead {
				continue
			}
			dn.IsRead = true
			if err := setJSON(txn, notificationKey(id), dn); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}

func notificationKey(id uint64) string {
	return fmt.Sprintf("notif:%020d", id)
}

func userNotificationPrefix(userID chat.UserID) string {
	return fmt.Sprintf("notif_user:%d:", userID)
}

func userNotificationKey(userID chat.UserID, id uint64) string {
	return fmt.Sprintf("%s%020d", userNotificationPrefix(userID), id)
}

func fromNotification(n notification.Notification) diskNotification {
	return diskNotification{
		ID:        n.ID,
		UserID:    int64(n.UserID),
		Message:   n.Message,
		Kind:      string(n.Kind),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func toNotification(dn diskNotification) notification.Notification {
	return notification.Notification{
		ID:        dn.ID,
		UserID:    chat.UserID(dn.UserID),
		Message:   dn.Message,
		Kind:      notification.Kind(dn.Kind),
		IsRead:    dn.IsRead,
		CreatedAt: dn.CreatedAt.UTC(),
	}
}
