package db

import (
	"github.com/MattCruikshank/goft/internal/models"
	"github.com/pkg/errors"
)

// DefaultRooms are created by Seed on an empty database.
var DefaultRooms = []models.Room{
	{Name: "Tech Talk 💻", Description: "A place to discuss the latest in technology and gadgets."},
	{Name: "Book Club 📚", Description: "Share your favorite reads and discover new books."},
	{Name: "Travel Buddies ✈️", Description: "Connect with fellow travelers and share tips."},
	{Name: "Fitness Fanatics 💪", Description: "Discuss workouts, nutrition, and wellness."},
	{Name: "Gaming Zone 🎮", Description: "Join fellow gamers to chat about your favorite games."},
	{Name: "Movie Buffs 🎬", Description: "Talk about the latest films and classic favorites."},
	{Name: "Music Lovers 🎶", Description: "Share playlists and discover new artists."},
	{Name: "Cooking Corner 🍳", Description: "Exchange recipes and cooking tips."},
	{Name: "Art & Design 🎨", Description: "Discuss art techniques and showcase your work."},
	{Name: "Pet Lovers 🐾", Description: "Share stories and tips about your furry friends."},
}

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Rooms int
	User  bool
}

// Seed inserts DefaultRooms when there are no rooms, and a user named
// userName with the given password hash when that name is free.
func (s *ServerDB) Seed(userName string, hashedPassword []byte) (SeedResult, error) {
	var res SeedResult

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM rooms`).Scan(&count); err != nil {
		return res, errors.Wrap(err, "db count rooms failed")
	}
	if count == 0 {
		for _, r := range DefaultRooms {
			if _, err := s.CreateRoom(r.Name, r.Description); err != nil {
				return res, err
			}
			res.Rooms++
		}
	}

	_, err := s.CreateUser(userName, hashedPassword)
	switch {
	case err == nil:
		res.User = true
	case errors.Is(err, ErrDuplicateUser):
	default:
		return res, err
	}

	return res, nil
}
