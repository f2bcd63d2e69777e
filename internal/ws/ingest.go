package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

// NormalizeText collapses whitespace runs to a single space and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Send stores a message from s in roomID, broadcasts it to the room and acks
// the sender. Every outcome, including rejection, is acked to s; the ack is
// dropped silently if s has gone away in the meantime.
func (h *Hub) Send(ctx context.Context, s *Session, roomID, text, tempID string) (*models.MessageDTO, error) {
	p, err := s.authenticated()
	if err != nil {
		h.sendAck(s, models.MessageAckData{TempId: tempID, Error: ClientMessage(err)})
		return nil, err
	}

	msg, err := h.ingest(ctx, p, roomID, text)
	if err != nil {
		if ClientMessage(err) == MsgInternal {
			h.log.Error("[HUB] Failed to send message", "conn", s.id, "user", p.UserId, "room", roomID, "error", err)
		} else {
			h.log.Debug("[HUB] Message rejected", "conn", s.id, "user", p.UserId, "room", roomID, "error", err)
		}
		h.sendAck(s, models.MessageAckData{TempId: tempID, Error: ClientMessage(err)})
		return nil, err
	}

	dto := msg.ToDTO(p)

	r := h.acquire(roomID)
	r.mu.Lock()
	t := r.ticket()
	r.mu.Unlock()
	h.broadcast(ctx, r, t, models.EventMessageNew, models.MessageNewData{RoomId: roomID, Message: dto})
	h.release(r)

	if !h.sendAck(s, models.MessageAckData{TempId: tempID, Message: &dto}) {
		h.log.Debug("[HUB] Ack dropped", "conn", s.id, "message", dto.Id)
	}
	return &dto, nil
}

func (h *Hub) ingest(ctx context.Context, p models.Principal, roomID, text string) (models.Message, error) {
	_, err := h.store.FindMembership(ctx, p.UserId, roomID)
	if errors.Is(err, apperr.ErrMembershipNotFound) {
		return models.Message{}, apperr.ErrNotMember
	}
	if err != nil {
		return models.Message{}, err
	}

	ok, err := h.limiter.Admit(ctx, p.UserId)
	if err != nil {
		return models.Message{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !ok {
		return models.Message{}, apperr.ErrRateLimited
	}

	normalized := NormalizeText(text)
	if normalized == "" {
		return models.Message{}, apperr.ErrInvalidMessage
	}

	msg, err := h.store.InsertMessage(ctx, roomID, p.UserId, normalized)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := h.store.UpdateLastRead(ctx, p.UserId, roomID, msg.CreatedAt); err != nil {
		h.log.Warn("[HUB] Failed to update last read", "user", p.UserId, "room", roomID, "error", err)
	}
	return msg, nil
}
