//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"moonshop/domain/chat"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	StoreMessage(senderID, receiverID chat.UserID, body string) (chat.Message, error)
	GetTranscript(userID, otherUserID chat.UserID) ([]chat.Message, error)
	GetConversations(userID chat.UserID) ([]chat.Conversation, error)
}

// MessageRepository keeps direct messages in BadgerDB.
//
// Layout:
//
//	msg:{id}                          the message itself
//	conv:{lowUser}:{highUser}:{id}    transcript index for a user pair
//	unread:{receiver}:{sender}:{id}   present while the receiver hasn't read it
//	peer:{user}:{other}               created_at and id of the latest message between the two
//
// Ids are zero padded to 20 digits so prefix scans come back in id order.
// A message to oneself gets no peer pointer, a user is never their own
// counterpart.
type MessageRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
	now func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:messages"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log, now: time.Now}, nil
}

// Close gives back the ids leased by the sequence.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

type diskMessage struct {
	ID         uint64    `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// StoreMessage assigns an id and a timestamp to a new unread message and
// persists it together with its indexes in a single transaction.
func (m *MessageRepository) StoreMessage(senderID, receiverID chat.UserID, body string) (chat.Message, error) {
	createdAt := m.now().UTC()
	id, err := nextID(m.seq)
	if err != nil {
		return chat.Message{}, err
	}
	message := chat.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  createdAt,
		IsRead:     false,
	}
	latest := peerPointer{createdAt: createdAt.UnixNano(), id: id}
	err = updateWithRetry(m.db, func(txn *badger.Txn) error {
		if err := setJSON(txn, messageKey(id), fromMessage(message)); err != nil {
			return err
		}
		if err := txn.Set([]byte(conversationKey(senderID, receiverID, id)), nil); err != nil {
			return err
		}
		if err := txn.Set([]byte(unreadKey(receiverID, senderID, id)), nil); err != nil {
			return err
		}
		if senderID == receiverID {
			return nil
		}
		if err := bumpPeer(txn, senderID, receiverID, latest); err != nil {
			return err
		}
		return bumpPeer(txn, receiverID, senderID, latest)
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("store message %d: %w", id, err)
	}
	m.log.Debug("Message stored", "message_id", id, "sender_id", senderID, "receiver_id", receiverID)
	return message, nil
}

// GetTranscript flags every message sent by otherUserID to userID as read,
// then returns the whole exchange in ascending creation order.
func (m *MessageRepository) GetTranscript(userID, otherUserID chat.UserID) ([]chat.Message, error) {
	var messages []chat.Message
	err := updateWithRetry(m.db, func(txn *badger.Txn) error {
		messages = nil
		unreadKeys, unreadIDs := scanIDs(txn, unreadPrefix(userID, otherUserID))
		for i, id := range unreadIDs {
			var dm diskMessage
			if err := getJSON(txn, messageKey(id), &dm); err != nil {
				return err
			}
			dm.IsRead = true
			if err := setJSON(txn, messageKey(id), dm); err != nil {
				return err
			}
			if err := txn.Delete(unreadKeys[i]); err != nil {
				return err
			}
		}

		_, ids := scanIDs(txn, conversationPrefix(userID, otherUserID))
		for _, id := range ids {
			var dm diskMessage
			if err := getJSON(txn, messageKey(id), &dm); err != nil {
				return err
			}
			messages = append(messages, toMessage(dm))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript %d/%d: %w", userID, otherUserID, err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// GetConversations returns one summary per counterpart of userID.
// Names and avatars are left empty and the result is not sorted, both are
// the projection's job.
func (m *MessageRepository) GetConversations(userID chat.UserID) ([]chat.Conversation, error) {
	var conversations []chat.Conversation
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Sprintf("peer:%d:", userID)
		peers := map[chat.UserID]peerPointer{}

		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			other, err := strconv.ParseInt(strings.TrimPrefix(string(item.Key()), prefix), 10, 64)
			if err != nil {
				m.log.Warn("Skipping malformed peer key", "key", string(item.Key()))
				continue
			}
			if chat.UserID(other) == userID {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			peers[chat.UserID(other)] = decodePeer(value)
		}
		it.Close()

		for other, pointer := range peers {
			var last diskMessage
			if err := getJSON(txn, messageKey(pointer.id), &last); err != nil {
				return err
			}
			_, unread := scanIDs(txn, unreadPrefix(userID, other))
			conversations = append(conversations, chat.Conversation{
				OtherUserID:   other,
				LastMessage:   last.Body,
				LastMessageID: last.ID,
				LastMessageAt: last.CreatedAt,
				UnreadCount:   len(unread),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversations of %d: %w", userID, err)
	}
	return conversations, nil
}

// peerPointer orders messages by creation time, then id. Ids come from a
// sequence shared by concurrent senders, so a higher id can carry an
// earlier timestamp.
type peerPointer struct {
	createdAt int64
	id        uint64
}

func (p peerPointer) after(other peerPointer) bool {
	if p.createdAt != other.createdAt {
		return p.createdAt > other.createdAt
	}
	return p.id > other.id
}

func encodePeer(p peerPointer) []byte {
	return append(encodeID(uint64(p.createdAt)), encodeID(p.id)...)
}

// decodePeer also reads the older 8 byte form holding only the id.
func decodePeer(b []byte) peerPointer {
	if len(b) == 16 {
		return peerPointer{createdAt: int64(decodeID(b[:8])), id: decodeID(b[8:])}
	}
	return peerPointer{id: decodeID(b)}
}

// bumpPeer moves the latest-message pointer forward, never backward.
// Reading the key first makes concurrent writers conflict instead of
// silently overwriting a newer message with an older one.
func bumpPeer(txn *badger.Txn, userID, otherID chat.UserID, latest peerPointer) error {
	key := []byte(fmt.Sprintf("peer:%d:%d", userID, otherID))
	item, err := txn.Get(key)
	switch {
	case err == nil:
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !latest.after(decodePeer(current)) {
			return nil
		}
	case err != badger.ErrKeyNotFound:
		return err
	}
	return txn.Set(key, encodePeer(latest))
}

// scanIDs walks a key-only prefix and parses the trailing id of each key.
func scanIDs(txn *badger.Txn, prefix string) ([][]byte, []uint64) {
	var keys [][]byte
	var ids []uint64
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		key := it.Item().KeyCopy(nil)
		id, err := strconv.ParseUint(strings.TrimPrefix(string(key), prefix), 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, key)
		ids = append(ids, id)
	}
	return keys, ids
}

func messageKey(id uint64) string {
	return fmt.Sprintf("msg:%020d", id)
}

func conversationPrefix(a, b chat.UserID) string {
	low, high := lo.Min([]chat.UserID{a, b}), lo.Max([]chat.UserID{a, b})
	return fmt.Sprintf("conv:%d:%d:", low, high)
}

func conversationKey(a, b chat.UserID, id uint64) string {
	return fmt.Sprintf("%s%020d", conversationPrefix(a, b), id)
}

func unreadPrefix(receiverID, senderID chat.UserID) string {
	return fmt.Sprintf("unread:%d:%d:", receiverID, senderID)
}

func unreadKey(receiverID, senderID chat.UserID, id uint64) string {
	return fmt.Sprintf("%s%020d", unreadPrefix(receiverID, senderID), id)
}

func fromMessage(message chat.Message) diskMessage {
	return diskMessage{
		ID:         message.ID,
		SenderID:   int64(message.SenderID),
		ReceiverID: int64(message.ReceiverID),
		Body:       message.Body,
		CreatedAt:  message.CreatedAt,
		IsRead:     message.IsRead,
	}
}

func toMessage(dm diskMessage) chat.Message {
	return chat.Message{
		ID:         dm.ID,
		SenderID:   chat.UserID(dm.SenderID),
		ReceiverID: chat.UserID(dm.ReceiverID),
		Body:       dm.Body,
		CreatedAt:  dm.CreatedAt.UTC(),
		IsRead:     dm.IsRead,
	}
}
