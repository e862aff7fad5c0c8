//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IGroupRepository interface {
	CreateGroup(name string, creator domain.UserID) (domain.GroupID, error)
	AddMember(group domain.GroupID, user domain.UserID) error
	IsMember(group domain.GroupID, user domain.UserID) (bool, error)
	ListMembers(group domain.GroupID) ([]domain.UserID, error)
}

// Group is the repository-level representation of a named group.
type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type GroupRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewGroupRepository(db *badger.DB) (*GroupRepository, error) {
	seq, err := db.GetSequence([]byte("seq:group"), 32)
	if err != nil {
		return nil, err
	}
	return &GroupRepository{db: db, seq: seq}, nil
}

func (g *GroupRepository) Close() error {
	return g.seq.Release()
}

// CreateGroup persists a new group record and returns its id. Adding
// the creator as first member is the caller's step, not an implicit
// side effect here.
func (g *GroupRepository) CreateGroup(name string, creator domain.UserID) (domain.GroupID, error) {
	n, err := g.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	id := int64(n) + 1

	record := Group{
		ID:        id,
		Name:      name,
		CreatedBy: int64(creator),
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}

	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(domain.GroupID(id)), data)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return domain.GroupID(id), nil
}

// AddMember records a (group, user) membership row. Adding to an
// unknown group is ErrNotFound; adding an existing member is
// ErrAlreadyMember, so a duplicate join never writes a second row.
func (g *GroupRepository) AddMember(group domain.GroupID, user domain.UserID) error {
	err := g.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(group)); err != nil {
			return err
		}
		_, err := txn.Get(memberKey(group, user))
		if err == nil {
			return errors.ErrAlreadyMember
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(memberKey(group, user), nil)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrNotFound
	}
	if err == errors.ErrAlreadyMember {
		return errors.ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return nil
}

// IsMember checks membership against storage. Callers must not cache
// the answer across requests; staleness would leak messages to removed
// members or drop them for new ones.
func (g *GroupRepository) IsMember(group domain.GroupID, user domain.UserID) (bool, error) {
	err := g.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(group, user))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return true, nil
}

// ListMembers returns the identities of all members of a group via a
// prefix scan over the membership rows.
func (g *GroupRepository) ListMembers(group domain.GroupID) ([]domain.UserID, error) {
	var members []domain.UserID
	prefix := []byte(fmt.Sprintf("member:%020d:", group))

	err := g.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user int64
			suffix := it.Item().Key()[len(prefix):]
			if _, err := fmt.Sscanf(string(suffix), "%d", &user); err != nil {
				return err
			}
			members = append(members, domain.UserID(user))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStorageFailure, err)
	}
	return members, nil
}

func groupKey(id domain.GroupID) []byte {
	return []byte(fmt.Sprintf("group:%020d", id))
}

func memberKey(group domain.GroupID, user domain.UserID) []byte {
	return []byte(fmt.Sprintf("member:%020d:%020d", group, user))
}
