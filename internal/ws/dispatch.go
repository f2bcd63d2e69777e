package ws

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"chat-realtime/internal/models"
)

const MsgUnknownEvent = "Unknown event type"

// Dispatch decodes one inbound frame from s and routes it. Rejections are
// reported to s only: room:error for room and typing events, message:ack for
// sends. A failing handler never takes the connection down.
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("[HUB] Panic while handling event", "conn", s.id, "panic", rec)
			h.sendRoomError(s, MsgInternal)
		}
	}()

	var env models.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Warn("[HUB] Error unmarshaling event", "conn", s.id, "error", err)
		h.sendRoomError(s, MsgInvalidRoomPayload)
		return
	}

	switch env.Type {
	case models.EventRoomJoin:
		req, ok := h.decodeRoomRequest(s, env)
		if !ok {
			h.sendRoomError(s, MsgInvalidRoomPayload)
			return
		}
		if _, err := h.Join(ctx, s, req.RoomId); err != nil {
			h.reportRoomError(s, env.Type, req.RoomId, err)
		}

	case models.EventRoomLeave:
		req, ok := h.decodeRoomRequest(s, env)
		if !ok {
			h.sendRoomError(s, MsgInvalidRoomPayload)
			return
		}
		if err := h.Leave(ctx, s, req.RoomId); err != nil {
			h.reportRoomError(s, env.Type, req.RoomId, err)
		}

	case models.EventTypingStart, models.EventTypingStop:
		// Typing toggles for unknown or unjoined rooms are dropped without a reply.
		req, ok := h.decodeRoomRequest(s, env)
		if !ok {
			return
		}
		var err error
		if env.Type == models.EventTypingStart {
			err = h.TypingStart(ctx, s, req.RoomId)
		} else {
			err = h.TypingStop(ctx, s, req.RoomId)
		}
		if err != nil {
			h.reportRoomError(s, env.Type, req.RoomId, err)
		}

	case models.EventMessageSend:
		var req models.SendMessageRequest
		if err := h.decodeSendRequest(env, &req); err != nil {
			h.log.Debug("[HUB] Invalid message payload", "conn", s.id, "error", err)
			h.sendAck(s, models.MessageAckData{TempId: req.TempId, Error: MsgInvalidMessagePayload})
			return
		}
		_, _ = h.Send(ctx, s, req.RoomId, req.Text, req.TempId)

	default:
		h.log.Warn("[HUB] Unknown event type", "conn", s.id, "type", env.Type)
		h.sendRoomError(s, MsgUnknownEvent)
	}
}

func (h *Hub) decodeRoomRequest(s *Session, env models.InboundEnvelope) (models.RoomRequest, bool) {
	var req models.RoomRequest
	if len(env.Data) == 0 {
		return req, false
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		h.log.Debug("[HUB] Invalid room payload", "conn", s.id, "type", env.Type, "error", err)
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.log.Debug("[HUB] Invalid room payload", "conn", s.id, "type", env.Type, "error", err)
		return req, false
	}
	return req, true
}

func (h *Hub) decodeSendRequest(env models.InboundEnvelope, req *models.SendMessageRequest) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(env.Data, req); err != nil {
		return err
	}
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	return h.validate.Var(req.Text, fmt.Sprintf("max=%d", h.maxMessageLength))
}

func (h *Hub) reportRoomError(s *Session, eventType, roomID string, err error) {
	msg := ClientMessage(err)
	if msg == MsgInternal {
		h.log.Error("[HUB] Error handling event", "conn", s.id, "type", eventType, "room", roomID, "error", err)
	}
	h.sendRoomError(s, msg)
}
