//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(name, passwordHash string) (domain.UserID, error)
	GetUserByName(name string) (User, error)
}

// User is the repository-level representation of an account.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewUserRepository opens the user id sequence. Callers must Close the
// repository to release unused sequence leases.
func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte("seq:user"), 32)
	if err != nil {
		return nil, err
	}
	return &UserRepository{db: db, seq: seq}, nil
}

func (u *UserRepository) Close() error {
	return u.seq.Release()
}

// CreateUser persists a new account and returns its identity.
// The password must already be hashed; plain credentials never reach
// this layer.
func (u *UserRepository) CreateUser(name, passwordHash string) (domain.UserID, error) {
	n, err := u.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	// Sequences start at zero; identities start at one.
	id := int64(n) + 1

	record := User{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(name)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return 0, err
	}
	return domain.UserID(id), nil
}

// GetUserByName resolves a username to its account record.
func (u *UserRepository) GetUserByName(name string) (User, error) {
	var record User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, errors.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return record, nil
}

func userKey(name string) []byte {
	return []byte("user:" + name)
}
