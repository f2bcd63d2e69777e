package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

type Verifier interface {
	Verify(token string) (*Claims, error)
}

type UserDirectory interface {
	FindUser(ctx context.Context, id string) (models.User, error)
}

// Service turns a bearer token into the Principal of an existing user.
type Service struct {
	verifier Verifier
	users    UserDirectory
}

func NewService(verifier Verifier, users UserDirectory) *Service {
	return &Service{verifier: verifier, users: users}
}

// Authenticate returns an error wrapping ErrUnauthorized for every credential
// problem. Other errors mean the user directory could not be reached.
func (s *Service) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return models.Principal{}, fmt.Errorf("%w: token is empty", apperr.ErrUnauthorized)
	}

	claims, err := s.verifier.Verify(token)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}

	user, err := s.users.FindUser(ctx, claims.Identity())
	if errors.Is(err, apperr.ErrUserNotFound) {
		return models.Principal{}, fmt.Errorf("%w: unknown user %s", apperr.ErrUnauthorized, claims.Identity())
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("load user: %w", err)
	}
	return user.Principal(), nil
}

// ExtractTokenFromRequest extracts JWT from request (query param or header)
func ExtractTokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}
