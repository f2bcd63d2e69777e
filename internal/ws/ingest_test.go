package ws

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"   hello     world   ", "hello world"},
		{"hi", "hi"},
		{"line\none\t\ttab", "line one tab"},
		{"   ", ""},
		{"\n\t", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestSendDeliversSameMessageToAckAndBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	a, aliceSink := f.connect(t, f.alice)
	b, bobSink := f.connect(t, f.bob)

	users := f.join(t, a, f.general.Id)
	req.Equal([]string{f.alice.Id}, ids(users))
	users = f.join(t, b, f.general.Id)
	req.Equal(sortedIDs(f.alice.Id, f.bob.Id), ids(users))

	var presence models.PresenceData
	aliceSink.last(t, models.EventRoomPresence, &presence)
	req.Equal(sortedIDs(f.alice.Id, f.bob.Id), ids(presence.UsersOnline))

	dto, err := f.hub.Send(ctx, a, f.general.Id, "hi", "tmp-1")
	req.NoError(err)

	var ack models.MessageAckData
	aliceSink.last(t, models.EventMessageAck, &ack)
	req.Equal("tmp-1", ack.TempId)
	req.Empty(ack.Error)
	req.NotNil(ack.Message)

	var broadcast models.MessageNewData
	bobSink.last(t, models.EventMessageNew, &broadcast)
	req.Equal(f.general.Id, broadcast.RoomId)
	req.Equal(*ack.Message, broadcast.Message)
	req.Equal(*dto, broadcast.Message)
	req.Equal("hi", broadcast.Message.Text)
	req.Equal("Alice", broadcast.Message.UserDisplayName)
	req.Equal("https://example.com/a.png", broadcast.Message.UserAvatarUrl)

	// The sender is subscribed too, and sees the broadcast before its ack.
	req.Equal(1, aliceSink.count(models.EventMessageNew))
	types := aliceSink.types()
	req.Equal(models.EventMessageAck, types[len(types)-1])
	req.Equal(models.EventMessageNew, types[len(types)-2])

	stored, err := f.store.ListMessages(ctx, f.general.Id, 0)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(dto.Id, stored[0].Id)

	m, err := f.store.FindMembership(ctx, f.alice.Id, f.general.Id)
	req.NoError(err)
	req.True(stored[0].CreatedAt.Equal(m.LastReadAt))

	req.NoError(f.hub.TypingStart(ctx, b, f.general.Id))
	aliceSink.reset()
	f.hub.Disconnect(ctx, b)

	aliceSink.last(t, models.EventRoomPresence, &presence)
	req.Equal([]string{f.alice.Id}, ids(presence.UsersOnline))
	var typing models.TypingData
	aliceSink.last(t, models.EventTypingUpdate, &typing)
	req.Empty(typing.UsersTyping)
}

func TestSendFromNonMemberIsRejected(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.FindOrCreateMembership(ctx, f.alice.Id, f.ops.Id)
	req.NoError(err)
	a, aliceSink := f.connect(t, f.alice)
	f.join(t, a, f.ops.Id)
	aliceSink.reset()

	b, bobSink := f.connect(t, f.bob)
	dto, err := f.hub.Send(ctx, b, f.ops.Id, "let me in", "tmp-9")
	req.ErrorIs(err, apperr.ErrNotMember)
	req.ErrorIs(err, apperr.ErrAccessDenied)
	req.Nil(dto)

	var ack models.MessageAckData
	bobSink.last(t, models.EventMessageAck, &ack)
	req.Equal("tmp-9", ack.TempId)
	req.Equal(MsgJoinRoomFirst, ack.Error)
	req.Nil(ack.Message)

	req.Empty(aliceSink.types())
	stored, err := f.store.ListMessages(ctx, f.ops.Id, 0)
	req.NoError(err)
	req.Empty(stored)
}

func TestSendRejectsBlankText(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	a, aliceSink := f.connect(t, f.alice)
	b, bobSink := f.connect(t, f.bob)
	f.join(t, a, f.general.Id)
	f.join(t, b, f.general.Id)
	bobSink.reset()

	_, err := f.hub.Send(ctx, a, f.general.Id, " \t\n ", "tmp-2")
	req.ErrorIs(err, apperr.ErrInvalidMessage)

	var ack models.MessageAckData
	aliceSink.last(t, models.EventMessageAck, &ack)
	req.Equal(MsgMessageEmpty, ack.Error)
	req.Empty(bobSink.types())

	dto, err := f.hub.Send(ctx, a, f.general.Id, "   hello     world   ", "tmp-3")
	req.NoError(err)
	req.Equal("hello world", dto.Text)

	var broadcast models.MessageNewData
	bobSink.last(t, models.EventMessageNew, &broadcast)
	req.Equal("hello world", broadcast.Message.Text)
}

func TestSendIsRateLimited(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	a, aliceSink := f.connect(t, f.alice)
	b, bobSink := f.connect(t, f.bob)
	f.join(t, a, f.general.Id)
	f.join(t, b, f.general.Id)
	bobSink.reset()

	for i := 0; i < 10; i++ {
		_, err := f.hub.Send(ctx, a, f.general.Id, fmt.Sprintf("message %d", i), "")
		req.NoError(err)
	}
	_, err := f.hub.Send(ctx, a, f.general.Id, "one too many", "tmp-11")
	req.ErrorIs(err, apperr.ErrRateLimited)

	var ack models.MessageAckData
	aliceSink.last(t, models.EventMessageAck, &ack)
	req.Equal("tmp-11", ack.TempId)
	req.Equal(MsgRateLimited, ack.Error)
	req.Equal(10, bobSink.count(models.EventMessageNew))

	// Another user's budget is untouched.
	_, err = f.hub.Send(ctx, b, f.general.Id, "still here", "")
	req.NoError(err)
}

func TestSendCompletesAfterDisconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	a, aliceSink := f.connect(t, f.alice)
	b, bobSink := f.connect(t, f.bob)
	f.join(t, a, f.general.Id)
	f.join(t, b, f.general.Id)

	bobSink.Close()
	f.hub.Disconnect(ctx, b)
	aliceSink.reset()

	dto, err := f.hub.Send(ctx, b, f.general.Id, "late", "tmp-late")
	req.NoError(err)
	req.Equal("late", dto.Text)

	var broadcast models.MessageNewData
	aliceSink.last(t, models.EventMessageNew, &broadcast)
	req.Equal(dto.Id, broadcast.Message.Id)
	req.Zero(bobSink.count(models.EventMessageAck))
	req.Equal(map[string]int{f.alice.Id: 1}, presenceOf(f.hub, f.general.Id))
}

type brokenInsert struct {
	Store
}

func (brokenInsert) InsertMessage(context.Context, string, string, string) (models.Message, error) {
	return models.Message{}, fmt.Errorf("disk full")
}

func TestSendStorageFailureKeepsConnectionUsable(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	hub := NewHub(brokenInsert{f.store}, nil, f.hub.limiter, WithLogger(quietLogger()))
	sink := &recordingSink{}
	s := hub.NewSession(sink)
	req.NoError(hub.Attach(s, f.alice.Principal()))
	_, err := hub.Join(ctx, s, f.general.Id)
	req.NoError(err)

	_, err = hub.Send(ctx, s, f.general.Id, "hello", "tmp-x")
	req.Error(err)

	var ack models.MessageAckData
	sink.last(t, models.EventMessageAck, &ack)
	req.Equal(MsgInternal, ack.Error)
	req.Zero(sink.count(models.EventMessageNew))

	req.NoError(hub.TypingStart(ctx, s, f.general.Id))
	req.Equal(1, sink.count(models.EventTypingUpdate))
}

func TestClientMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperr.ErrNotMember, MsgJoinRoomFirst},
		{apperr.ErrAccessDenied, MsgAccessDenied},
		{apperr.ErrRoomNotFound, MsgRoomNotFound},
		{apperr.ErrInvalidMessage, MsgMessageEmpty},
		{apperr.ErrRateLimited, MsgRateLimited},
		{fmt.Errorf("%w: expired", apperr.ErrUnauthorized), MsgUnauthorized},
		{apperr.ErrSessionClosed, MsgUnauthorized},
		{fmt.Errorf("boom"), MsgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, ClientMessage(tt.err))
		})
	}
}
