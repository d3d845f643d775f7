package models

import "time"

// User represents a registered chat user.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session binds a browser cookie to a user until Expiry.
type Session struct {
	ID     string    `json:"id"`
	UserID int64     `json:"user_id"`
	Expiry time.Time `json:"expiry"`
}

// Expired reports whether the session is no longer valid at t.
func (s Session) Expired(t time.Time) bool {
	return !t.Before(s.Expiry)
}
