package models

import "github.com/goccy/go-json"

// Inbound event types.
const (
	EventRoomJoin    = "room:join"
	EventRoomLeave   = "room:leave"
	EventMessageSend = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Outbound event types.
const (
	EventRoomPresence = "room:presence"
	EventTypingUpdate = "typing:update"
	EventMessageNew   = "message:new"
	EventMessageAck   = "message:ack"
	EventRoomError    = "room:error"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InboundEnvelope defers decoding of Data until the type is known.
type InboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RoomEvent is what gets mirrored to Redis for every room broadcast.
type RoomEvent struct {
	Type      string          `json:"type"`
	RoomId    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
}

// Specific event data structures

type RoomRequest struct {
	RoomId string `json:"roomId" validate:"required,max=128"`
}

type SendMessageRequest struct {
	RoomId string `json:"roomId" validate:"required,max=128"`
	Text   string `json:"text" validate:"required"`
	TempId string `json:"tempId,omitempty" validate:"omitempty,max=128"`
}

type PresenceUser struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl,omitempty"`
}

type PresenceData struct {
	RoomId      string         `json:"roomId"`
	UsersOnline []PresenceUser `json:"usersOnline"`
}

type TypingData struct {
	RoomId      string   `json:"roomId"`
	UsersTyping []string `json:"usersTyping"`
}

type MessageDTO struct {
	Id              string `json:"id"`
	RoomId          string `json:"roomId"`
	UserId          string `json:"userId"`
	UserDisplayName string `json:"userDisplayName"`
	UserAvatarUrl   string `json:"userAvatarUrl,omitempty"`
	Text            string `json:"text"`
	CreatedAt       string `json:"createdAt"`
}

type MessageNewData struct {
	RoomId  string     `json:"roomId"`
	Message MessageDTO `json:"message"`
}

type MessageAckData struct {
	TempId  string      `json:"tempId,omitempty"`
	Message *MessageDTO `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type RoomErrorData struct {
	Message string `json:"message"`
}
