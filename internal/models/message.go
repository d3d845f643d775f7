package models

import "time"

// Message represents a chat message.
type Message struct {
	ID         string    `json:"id"`
	RoomID     int64     `json:"room_id"`
	UserID     int64     `json:"user_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}
