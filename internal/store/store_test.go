package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperr "chat-realtime/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", true, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	ada, err := s.CreateUser(ctx, "Ada@Example.com ", "hash", " Ada ", "")
	req.NoError(err)
	req.Equal("ada@example.com", ada.Email)
	req.Equal("Ada", ada.DisplayName)

	_, err = s.CreateUser(ctx, "ada@example.com", "hash", "Other", "")
	req.ErrorIs(err, apperr.ErrUserAlreadyExists)

	found, err := s.FindUser(ctx, ada.Id)
	req.NoError(err)
	req.Equal(ada.Id, found.Id)

	byEmail, err := s.FindUserByEmail(ctx, "ADA@example.com")
	req.NoError(err)
	req.Equal(ada.Id, byEmail.Id)

	_, err = s.FindUser(ctx, "missing")
	req.ErrorIs(err, apperr.ErrUserNotFound)
}

func TestFindUsersByIDsSkipsUnknown(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateUser(ctx, "a@example.com", "h", "A", "")
	req.NoError(err)
	b, err := s.CreateUser(ctx, "b@example.com", "h", "B", "")
	req.NoError(err)

	users, err := s.FindUsersByIDs(ctx, []string{b.Id, "ghost", a.Id})
	req.NoError(err)
	req.Len(users, 2)
	req.Equal(b.Id, users[0].Id)
	req.Equal(a.Id, users[1].Id)

	users, err = s.FindUsersByIDs(ctx, nil)
	req.NoError(err)
	req.Empty(users)
}

func TestRooms(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	general, err := s.CreateRoom(ctx, "general", true)
	req.NoError(err)

	_, err = s.CreateRoom(ctx, "General", true)
	req.ErrorIs(err, apperr.ErrRoomAlreadyExists)

	found, err := s.FindRoom(ctx, general.Id)
	req.NoError(err)
	req.True(found.IsPublic)

	byName, err := s.FindRoomByName(ctx, "general")
	req.NoError(err)
	req.Equal(general.Id, byName.Id)

	_, err = s.FindRoom(ctx, "nope")
	req.ErrorIs(err, apperr.ErrRoomNotFound)
}

func TestMembershipIsIdempotent(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.FindMembership(ctx, "u1", "r1")
	req.ErrorIs(err, apperr.ErrMembershipNotFound)

	first, err := s.FindOrCreateMembership(ctx, "u1", "r1")
	req.NoError(err)
	req.True(first.LastReadAt.IsZero())

	read := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	req.NoError(s.UpdateLastRead(ctx, "u1", "r1", read))

	second, err := s.FindOrCreateMembership(ctx, "u1", "r1")
	req.NoError(err)
	req.Equal(first.CreatedAt, second.CreatedAt)
	req.True(read.Equal(second.LastReadAt))

	req.ErrorIs(s.UpdateLastRead(ctx, "u2", "r1", read), apperr.ErrMembershipNotFound)
}

func TestConcurrentFindOrCreateMembership(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.FindOrCreateMembership(ctx, "u1", "r1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	m, err := s.FindMembership(ctx, "u1", "r1")
	req.NoError(err)
	req.Equal("u1", m.UserId)
}

func TestMessages(t *testing.T) {
	req := require.New(t)
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 5; i++ {
		_, err := s.InsertMessage(ctx, "r1", "u1", fmt.Sprintf("message %d", i))
		req.NoError(err)
	}
	_, err := s.InsertMessage(ctx, "r2", "u1", "elsewhere")
	req.NoError(err)

	all, err := s.ListMessages(ctx, "r1", 0)
	req.NoError(err)
	req.Len(all, 5)
	req.Equal("message 0", all[0].Text)
	req.Equal("message 4", all[4].Text)

	latest, err := s.ListMessages(ctx, "r1", 2)
	req.NoError(err)
	req.Len(latest, 2)
	req.Equal("message 3", latest[0].Text)
	req.Equal("message 4", latest[1].Text)

	none, err := s.ListMessages(ctx, "empty", 10)
	req.NoError(err)
	req.Empty(none)
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindRoom(ctx, "r1")
	require.ErrorIs(t, err, context.Canceled)
}
