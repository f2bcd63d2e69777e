package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

func roomKey(id string) string { return "room:" + id }
func roomNameKey(name string) string { return "room-name:" + strings.ToLower(name) }
func membershipKey(roomID, userID string) string {
	return "membership:" + roomID + ":" + userID
}

func (s *Store) CreateRoom(ctx context.Context, name string, isPublic bool) (models.Room, error) {
	room := models.Room{
		Id:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		IsPublic:  isPublic,
		CreatedAt: s.now(),
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(roomNameKey(room.Name))); err == nil {
			return apperr.ErrRoomAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, roomKey(room.Id), room); err != nil {
			return err
		}
		return txn.Set([]byte(roomNameKey(room.Name)), []byte(room.Id))
	})
	if err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (s *Store) FindRoom(ctx context.Context, id string) (models.Room, error) {
	var room models.Room
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, roomKey(id), &room)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Room{}, apperr.ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find room %s: %w", id, err)
	}
	return room, nil
}

func (s *Store) FindRoomByName(ctx context.Context, name string) (models.Room, error) {
	var room models.Room
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := getString(txn, roomNameKey(strings.TrimSpace(name)))
		if err != nil {
			return err
		}
		return getJSON(txn, roomKey(id), &room)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Room{}, apperr.ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find room by name: %w", err)
	}
	return room, nil
}

func (s *Store) FindMembership(ctx context.Context, userID, roomID string) (models.Membership, error) {
	var membership models.Membership
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, membershipKey(roomID, userID), &membership)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Membership{}, apperr.ErrMembershipNotFound
	}
	if err != nil {
		return models.Membership{}, fmt.Errorf("find membership: %w", err)
	}
	return membership, nil
}

// FindOrCreateMembership is idempotent: an existing record is returned untouched.
// A new record starts with LastReadAt at the zero time.
func (s *Store) FindOrCreateMembership(ctx context.Context, userID, roomID string) (models.Membership, error) {
	var membership models.Membership
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := membershipKey(roomID, userID)
		err := getJSON(txn, key, &membership)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		membership = models.Membership{
			UserId:    userID,
			RoomId:    roomID,
			CreatedAt: s.now(),
		}
		return setJSON(txn, key, membership)
	})
	if err != nil {
		return models.Membership{}, fmt.Errorf("find or create membership: %w", err)
	}
	return membership, nil
}

func (s *Store) UpdateLastRead(ctx context.Context, userID, roomID string, at time.Time) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		key := membershipKey(roomID, userID)
		var membership models.Membership
		if err := getJSON(txn, key, &membership); err != nil {
			return err
		}
		membership.LastReadAt = at.UTC()
		return setJSON(txn, key, membership)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperr.ErrMembershipNotFound
	}
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return nil
}
