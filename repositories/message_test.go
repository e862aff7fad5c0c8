package repositories

import (
	"chat-relay/domain"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func Test_RecordDirectMessage_AssignsIncreasingIDs(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository, err := NewMessageRepository(db, slog.Default(), nil)
	req.NoError(err)
	defer repository.Close()

	at := time.Now().UTC()
	id1, err := repository.RecordDirectMessage(1, 2, "first", at)
	req.NoError(err)
	id2, err := repository.RecordDirectMessage(1, 2, "second", at.Add(time.Second))
	req.NoError(err)
	req.Greater(int64(id2), int64(id1))
}

func Test_GetConversation_NewestFirst_BothDirections(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository, err := NewMessageRepository(db, slog.Default(), nil)
	req.NoError(err)
	defer repository.Close()

	at := time.Now().UTC()
	_, err = repository.RecordDirectMessage(1, 2, "hi bob", at)
	req.NoError(err)
	_, err = repository.RecordDirectMessage(2, 1, "hi alice", at.Add(time.Minute))
	req.NoError(err)
	_, err = repository.RecordDirectMessage(1, 3, "unrelated", at.Add(2*time.Minute))
	req.NoError(err)

	// Same conversation regardless of argument order.
	messages, _, err := repository.GetConversation(2, 1, nil)
	req.NoError(err)
	req.Equal([]string{"hi alice", "hi bob"},
		lo.Map(messages, func(m StoredMessage, _ int) string { return m.Content }))
}

func Test_GetConversation_CursorPaging(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	limit := 2
	repository, err := NewMessageRepository(db, slog.Default(), &limit)
	req.NoError(err)
	defer repository.Close()

	at := time.Now().UTC()
	for i, content := range []string{"one", "two", "three"} {
		_, err = repository.RecordDirectMessage(1, 2, content, at.Add(time.Duration(i)*time.Second))
		req.NoError(err)
	}

	firstPage, cursor, err := repository.GetConversation(1, 2, nil)
	req.NoError(err)
	req.Len(firstPage, 2)
	req.Equal("three", firstPage[0].Content)
	req.Equal("two", firstPage[1].Content)
	req.NotNil(cursor)

	secondPage, _, err := repository.GetConversation(1, 2, cursor)
	req.NoError(err)
	req.Len(secondPage, 1)
	req.Equal("one", secondPage[0].Content)
}

func Test_GetConversation_Empty(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository, err := NewMessageRepository(db, slog.Default(), nil)
	req.NoError(err)
	defer repository.Close()

	messages, cursor, err := repository.GetConversation(domain.UserID(1), domain.UserID(2), nil)
	req.NoError(err)
	req.Empty(messages)
	req.Nil(cursor)
}
