package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

func userKey(id string) string { return "user:" + id }
func userEmailKey(email string) string { return "user-email:" + strings.ToLower(email) }

// CreateUser persists a new user. Emails are unique, case-insensitively.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName, avatarUrl string) (models.User, error) {
	user := models.User{
		Id:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(displayName),
		AvatarUrl:    avatarUrl,
		CreatedAt:    s.now(),
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(userEmailKey(user.Email))); err == nil {
			return apperr.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, userKey(user.Id), user); err != nil {
			return err
		}
		return txn.Set([]byte(userEmailKey(user.Email)), []byte(user.Id))
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.User{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := getString(txn, userEmailKey(email))
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &user)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.User{}, apperr.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// FindUsersByIDs resolves ids in a single read transaction. Unknown ids are
// skipped; the result follows the order of ids.
func (s *Store) FindUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			var user models.User
			err := getJSON(txn, userKey(id), &user)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}
