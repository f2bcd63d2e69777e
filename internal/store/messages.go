package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"chat-realtime/internal/models"
)

func messagePrefix(roomID string) string { return "msg:" + roomID + ":" }

// InsertMessage stores a message under "msg:{room}:{unixnano padded}:{id}" so
// a prefix scan yields chronological order and same-nanosecond writes never
// collide.
func (s *Store) InsertMessage(ctx context.Context, roomID, userID, text string) (models.Message, error) {
	message := models.Message{
		Id:        uuid.NewString(),
		RoomId:    roomID,
		UserId:    userID,
		Text:      text,
		CreatedAt: s.now(),
	}
	key := fmt.Sprintf("%s%019d:%s", messagePrefix(roomID), message.CreatedAt.UnixNano(), message.Id)

	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, key, message)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// ListMessages returns up to limit of the most recent messages of a room,
// oldest first.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(roomID))
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			var message models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
