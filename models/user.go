package models

// Me is the identity the server assigned to this connection.
type Me struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// RoomUser is a participant of the chat room.
type RoomUser struct {
	UserID        int64  `json:"userId"`
	Name          string `json:"name"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	LastMessageAt int64  `json:"lastMessageTs,omitempty"`
}

// ReadWatermark is a user's furthest-read position. Nil fields mean
// "unknown", never zero.
type ReadWatermark struct {
	UserID            int64  `json:"userId"`
	Name              string `json:"name"`
	LastReadMessageID *int64 `json:"lastReadMessageId"`
	LastReadAt        *int64 `json:"lastReadAt"`
}
