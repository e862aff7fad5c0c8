//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	RecordDirectMessage(sender, receiver domain.UserID, content string, at time.Time) (domain.MessageID, error)
	GetConversation(a, b domain.UserID, cursor *string) ([]StoredMessage, *string, error)
}

// StoredMessage is a recorded direct message as kept on disk.
type StoredMessage struct {
	ID       int64     `json:"id"`
	Sender   int64     `json:"sender"`
	Receiver int64     `json:"receiver"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

type MessageRepository struct {
	db            *badger.DB
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte("seq:message"), 64)
	if err != nil {
		return nil, err
	}
	return &MessageRepository{db: db, seq: seq, log: log, limitMessages: limitMessages}, nil
}

func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// RecordDirectMessage persists a message and returns its assigned id.
// Persistence happens before fan-out so an offline recipient can fetch
// the message later under the same id.
//
// The key is "dm:{lo}:{hi}:{timestamp_padded}:{id}" where lo/hi are the
// two identities in numeric order, so both directions of a conversation
// share one prefix and keys sort chronologically (19-digit zero-padded
// nanoseconds; the id disambiguates same-nanosecond writes).
func (m *MessageRepository) RecordDirectMessage(sender, receiver domain.UserID, content string, at time.Time) (domain.MessageID, error) {
	n, err := m.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	id := int64(n) + 1

	record := StoredMessage{
		ID:       id,
		Sender:   int64(sender),
		Receiver: int64(receiver),
		Content:  content,
		At:       at.UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("%s%019d:%020d", conversationPrefix(sender, receiver), at.UnixNano(), id)
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return domain.MessageID(id), nil
}

// GetConversation pages through the direct messages between two users,
// newest first. The returned cursor is the key remainder of the last
// item; passing it back resumes after that item.
func (m *MessageRepository) GetConversation(a, b domain.UserID, cursor *string) ([]StoredMessage, *string, error) {
	var raw [][]byte
	var lastKey string

	prefixStr := conversationPrefix(a, b)
	prefix := []byte(prefixStr)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}

	messages := make([]StoredMessage, 0, len(raw))
	for _, b := range raw {
		var record StoredMessage
		if err := json.Unmarshal(b, &record); err != nil {
			return nil, nil, err
		}
		messages = append(messages, record)
	}
	// No rows read means no cursor; an empty-string cursor would look
	// like another page to clients.
	if lastKey == "" {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

func conversationPrefix(a, b domain.UserID) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("dm:%020d:%020d:", lo, hi)
}
