//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"fmt"
	"moonshop/domain/account"
	"moonshop/domain/chat"
	"moonshop/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(user account.User) (account.User, error)
	GetUserByEmail(email string) (account.User, error)
	GetUserByID(id chat.UserID) (account.User, error)
	GetUsersByIDs(ids []chat.UserID) (map[chat.UserID]account.User, error)
	UpdateProfile(id chat.UserID, update account.ProfileUpdate) (account.User, error)
}

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte("seq:users"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &UserRepository{db: db, seq: seq}, nil
}

func (u *UserRepository) Close() error {
	return u.seq.Release()
}

type diskUser struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Avatar       string    `json:"avatar"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser persists a user whose password is already hashed.
// The email index is checked in the same transaction so two signups with
// the same address cannot both succeed.
func (u *UserRepository) CreateUser(user account.User) (account.User, error) {
	id, err := nextID(u.seq)
	if err != nil {
		return account.User{}, err
	}
	user.ID = chat.UserID(id)
	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte("user_email:" + user.Email)
		if _, err := txn.Get(emailKey); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey, encodeID(id)); err != nil {
			return err
		}
		return setJSON(txn, userKey(user.ID), fromUser(user))
	})
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent signup touched the same email key.
		return account.User{}, errors.ErrUserAlreadyExists
	}
	if err != nil {
		return account.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUserByEmail(email string) (account.User, error) {
	var user account.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user_email:" + normalizeEmail(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("user %s: %w", email, errors.ErrNotFound)
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, chat.UserID(decodeID(raw)))
		return err
	})
	return user, err
}

func (u *UserRepository) GetUserByID(id chat.UserID) (account.User, error) {
	var user account.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// GetUsersByIDs resolves several users in one read transaction.
// Unknown ids are simply absent from the result.
func (u *UserRepository) GetUsersByIDs(ids []chat.UserID) (map[chat.UserID]account.User, error) {
	users := make(map[chat.UserID]account.User, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getUser(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users[id] = user
		}
		return nil
	})
	return users, err
}

// UpdateProfile applies the non empty fields of update. On an email change
// the old index entry is dropped and the new one claimed in the same
// transaction; an address owned by someone else is rejected.
func (u *UserRepository) UpdateProfile(id chat.UserID, update account.ProfileUpdate) (account.User, error) {
	var user account.User
	err := updateWithRetry(u.db, func(txn *badger.Txn) error {
		var err error
		if user, err = getUser(txn, id); err != nil {
			return err
		}

		if email := normalizeEmail(update.Email); email != "" && email != user.Email {
			newKey := []byte("user_email:" + email)
			item, err := txn.Get(newKey)
			switch {
			case err == nil:
				owner, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if chat.UserID(decodeID(owner)) != id {
					return errors.ErrUserAlreadyExists
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Delete([]byte("user_email:" + user.Email)); err != nil {
				return err
			}
			if err := txn.Set(newKey, encodeID(uint64(id))); err != nil {
				return err
			}
			user.Email = email
		}

		if name := strings.TrimSpace(update.Name); name != "" {
			user.Name = name
		}
		if update.Avatar != "" {
			user.Avatar = update.Avatar
		}
		if update.PasswordHash != "" {
			user.PasswordHash = update.PasswordHash
		}
		return setJSON(txn, userKey(id), fromUser(user))
	})
	if err != nil {
		return account.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	return user, nil
}

func getUser(txn *badger.Txn, id chat.UserID) (account.User, error) {
	var du diskUser
	if err := getJSON(txn, userKey(id), &du); err != nil {
		return account.User{}, err
	}
	return toUser(du), nil
}

func userKey(id chat.UserID) string {
	return fmt.Sprintf("user:%020d", id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func fromUser(user account.User) diskUser {
	return diskUser{
		ID:           int64(user.ID),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		Avatar:       user.Avatar,
		CreatedAt:    user.CreatedAt,
	}
}

func toUser(du diskUser) account.User {
	return account.User{
		ID:           chat.UserID(du.ID),
		Name:         du.Name,
		Email:        du.Email,
		PasswordHash: du.PasswordHash,
		Role:         account.Role(du.Role),
		Avatar:       du.Avatar,
		CreatedAt:    du.CreatedAt.UTC(),
	}
}
