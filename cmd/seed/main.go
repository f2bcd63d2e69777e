// Command seed creates demo users and rooms so a fresh database can be used
// right away, and prints a token for each user.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/store"
)

type seedUser struct {
	Email       string `validate:"required,email"`
	Password    string `validate:"required,min=8"`
	DisplayName string `validate:"required,max=64"`
}

type seedRoom struct {
	Name     string `validate:"required,max=64"`
	IsPublic bool
	// Members are user emails given a membership up front.
	Members []string `validate:"dive,email"`
}

var (
	demoUsers = []seedUser{
		{Email: "demo@fluxchat.local", Password: "password123", DisplayName: "Demo User"},
		{Email: "teammate@fluxchat.local", Password: "password123", DisplayName: "Teammate"},
	}
	demoRooms = []seedRoom{
		{Name: "general", IsPublic: true, Members: []string{"demo@fluxchat.local"}},
		{Name: "engineering", IsPublic: true, Members: []string{"demo@fluxchat.local"}},
		{Name: "random", IsPublic: true, Members: []string{"demo@fluxchat.local"}},
		{Name: "ops", IsPublic: false, Members: []string{"demo@fluxchat.local"}},
	}
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := cfg.Logger()

	db, err := store.Open(cfg.BadgerPath, cfg.BadgerInMemory, log)
	if err != nil {
		log.Error("Seed failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users, err := seed(context.Background(), db, demoUsers, demoRooms)
	if err != nil {
		log.Error("Seed failed", "error", err)
		db.Close()
		os.Exit(1)
	}
	printUsers(os.Stdout, cfg, users)
}

// seed is idempotent: existing users, rooms and memberships are left alone.
func seed(ctx context.Context, db *store.Store, users []seedUser, rooms []seedRoom) ([]models.User, error) {
	validate := validator.New()

	byEmail := make(map[string]models.User, len(users))
	created := make([]models.User, 0, len(users))
	for _, u := range users {
		if err := validate.Struct(u); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Email, err)
		}
		user, err := db.FindUserByEmail(ctx, u.Email)
		if errors.Is(err, apperr.ErrUserNotFound) {
			hash, herr := auth.HashPassword(u.Password)
			if herr != nil {
				return nil, herr
			}
			user, err = db.CreateUser(ctx, u.Email, hash, u.DisplayName, "")
		}
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Email, err)
		}
		byEmail[user.Email] = user
		created = append(created, user)
	}

	for _, r := range rooms {
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("room %s: %w", r.Name, err)
		}
		room, err := db.FindRoomByName(ctx, r.Name)
		if errors.Is(err, apperr.ErrRoomNotFound) {
			room, err = db.CreateRoom(ctx, r.Name, r.IsPublic)
		}
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", r.Name, err)
		}

		for _, email := range r.Members {
			user, ok := byEmail[email]
			if !ok {
				return nil, fmt.Errorf("room %s: member %s is not a seeded user", r.Name, email)
			}
			if _, err := db.FindOrCreateMembership(ctx, user.Id, room.Id); err != nil {
				return nil, fmt.Errorf("room %s: %w", r.Name, err)
			}
		}
	}
	return created, nil
}

func printUsers(w io.Writer, cfg *config.Config, users []models.User) {
	fmt.Fprintln(w, "Seed complete")
	for _, u := range users {
		fmt.Fprintf(w, "Demo user: %s / %s\n", u.Email, passwordFor(u.Email))
		if cfg.JWTSecret == "" {
			continue
		}
		token, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, u.Id, u.Email, cfg.JWTExpiresIn)
		if err != nil {
			fmt.Fprintf(w, "  token: %v\n", err)
			continue
		}
		fmt.Fprintf(w, "  token: %s\n", token)
	}
}

func passwordFor(email string) string {
	for _, u := range demoUsers {
		if u.Email == email {
			return u.Password
		}
	}
	return ""
}
