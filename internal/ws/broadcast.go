package ws

import (
	"errors"

	"github.com/goccy/go-json"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

// Client-facing error strings.
const (
	MsgUnauthorized          = "Unauthorized"
	MsgJoinRoomFirst         = "Join room first"
	MsgAccessDenied          = "Access denied"
	MsgRoomNotFound          = "Room not found"
	MsgMessageEmpty          = "Message cannot be empty"
	MsgRateLimited           = "Rate limit exceeded"
	MsgInvalidRoomPayload    = "Invalid room payload"
	MsgInvalidMessagePayload = "Invalid message payload"
	MsgInternal              = "Internal error"
)

func encodeEnvelope(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(models.Envelope{Type: eventType, Data: data})
}

// ClientMessage maps err onto the string reported back to the client.
// Anything unexpected becomes a generic internal error.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotMember):
		return MsgJoinRoomFirst
	case errors.Is(err, apperr.ErrAccessDenied):
		return MsgAccessDenied
	case errors.Is(err, apperr.ErrRoomNotFound):
		return MsgRoomNotFound
	case errors.Is(err, apperr.ErrInvalidMessage):
		return MsgMessageEmpty
	case errors.Is(err, apperr.ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, apperr.ErrUnauthorized), errors.Is(err, apperr.ErrSessionClosed):
		return MsgUnauthorized
	default:
		return MsgInternal
	}
}

func (h *Hub) sendRoomError(s *Session, message string) {
	s.deliver(h.encode(models.EventRoomError, models.RoomErrorData{Message: message}))
}

func (h *Hub) sendAck(s *Session, ack models.MessageAckData) bool {
	return s.deliver(h.encode(models.EventMessageAck, ack))
}
