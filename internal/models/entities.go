package models

import "time"

// TimestampLayout matches the ISO-8601 millisecond form browsers produce.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Principal is the identity attached to a session at authentication time.
// It is never refreshed for the lifetime of the session.
type Principal struct {
	UserId      string `json:"userId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	AvatarUrl   string `json:"avatarUrl,omitempty"`
}

type User struct {
	Id           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	DisplayName  string    `json:"displayName"`
	AvatarUrl    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) Principal() Principal {
	return Principal{
		UserId:      u.Id,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarUrl:   u.AvatarUrl,
	}
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt"`
}

type Membership struct {
	UserId     string    `json:"userId"`
	RoomId     string    `json:"roomId"`
	LastReadAt time.Time `json:"lastReadAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"roomId"`
	UserId    string    `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToDTO renders a stored message with the author's cached identity.
func (m Message) ToDTO(author Principal) MessageDTO {
	return MessageDTO{
		Id:              m.Id,
		RoomId:          m.RoomId,
		UserId:          m.UserId,
		UserDisplayName: author.DisplayName,
		UserAvatarUrl:   author.AvatarUrl,
		Text:            m.Text,
		CreatedAt:       m.CreatedAt.UTC().Format(TimestampLayout),
	}
}
