package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MattCruikshank/goft/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	sdb, err := NewServerDB(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sdb.Close() })
	return sdb
}

func TestUsers(t *testing.T) {
	sdb := newTestDB(t)

	u, err := sdb.CreateUser("alice", []byte("hash"))
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	_, err = sdb.CreateUser("alice", []byte("other"))
	assert.ErrorIs(t, err, ErrDuplicateUser)

	got, hash, err := sdb.GetUserByName("alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, []byte("hash"), hash)

	missing, _, err := sdb.GetUserByName("bob")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := sdb.GetUser(u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice", byID.Name)
}

func TestSessions(t *testing.T) {
	sdb := newTestDB(t)
	u, err := sdb.CreateUser("alice", []byte("hash"))
	require.NoError(t, err)

	now := time.Now()
	live := models.Session{ID: "live", UserID: u.ID, Expiry: now.Add(time.Hour)}
	dead := models.Session{ID: "dead", UserID: u.ID, Expiry: now.Add(-time.Hour)}
	require.NoError(t, sdb.CreateSession(live))
	require.NoError(t, sdb.CreateSession(dead))

	got, sess, err := sdb.GetSessionUser("live", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, live.Expiry.Unix(), sess.Expiry.Unix())

	got, _, err = sdb.GetSessionUser("dead", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := sdb.DeleteExpiredSessions(now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, sdb.DeleteSession("live"))
	got, _, err = sdb.GetSessionUser("live", now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchRooms(t *testing.T) {
	sdb := newTestDB(t)
	for _, name := range []string{"Tech Talk", "Book Club", "Music Lovers", "100% Pure_Fun", "Café Éclair"} {
		_, err := sdb.CreateRoom(name, "")
		require.NoError(t, err)
	}

	names := func(rooms []models.Room) []string {
		var out []string
		for _, r := range rooms {
			out = append(out, r.Name)
		}
		return out
	}

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"Tech Talk", "Book Club", "Music Lovers", "100% Pure_Fun", "Café Éclair"}},
		{"tech", []string{"Tech Talk"}},
		{"TECH", []string{"Tech Talk"}},
		{"café", []string{"Café Éclair"}},
		{"CAFÉ", []string{"Café Éclair"}},
		{"éclair", []string{"Café Éclair"}},
		{"ÉCLAIR", []string{"Café Éclair"}},
		{"boo mus", []string{"Book Club", "Music Lovers"}},
		{"%", []string{"100% Pure_Fun"}},
		{"h_t", nil},
		{"nothing", nil},
	}
	for _, tt := range tests {
		rooms, err := sdb.SearchRooms(tt.term)
		require.NoError(t, err)
		if diff := cmp.Diff(tt.want, names(rooms)); diff != "" {
			t.Errorf("SearchRooms(%q) mismatch (-want +got):\n%s", tt.term, diff)
		}
	}
}

func TestRoomCRUD(t *testing.T) {
	sdb := newTestDB(t)

	room, err := sdb.CreateRoom("General", "talk")
	require.NoError(t, err)

	room.Name = "Lobby"
	require.NoError(t, sdb.UpdateRoom(room))

	got, err := sdb.GetRoom(room.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(room, got); diff != "" {
		t.Errorf("GetRoom mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, sdb.DeleteRoom(room.ID))
	got, err = sdb.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMessages(t *testing.T) {
	sdb := newTestDB(t)
	room, err := sdb.CreateRoom("General", "")
	require.NoError(t, err)
	other, err := sdb.CreateRoom("Other", "")
	require.NoError(t, err)
	author := &models.User{ID: 7, Name: "alice"}

	var created []models.Message
	for _, text := range []string{"one", "two", "three", "four"} {
		m, err := sdb.CreateMessage(room.ID, author, text)
		require.NoError(t, err)
		created = append(created, *m)
	}
	_, err = sdb.CreateMessage(other.ID, author, "elsewhere")
	require.NoError(t, err)

	ignoreTime := cmpopts.IgnoreFields(models.Message{}, "Timestamp")

	got, err := sdb.GetMessages(room.ID, 2, "")
	require.NoError(t, err)
	if diff := cmp.Diff(created[2:], got, ignoreTime); diff != "" {
		t.Errorf("latest page mismatch (-want +got):\n%s", diff)
	}

	got, err = sdb.GetMessages(room.ID, 10, created[2].ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created[:2], got, ignoreTime); diff != "" {
		t.Errorf("older page mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, sdb.ClearRoomMessages(room.ID))
	got, err = sdb.GetMessages(room.ID, 10, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sdb.GetMessages(other.ID, 10, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSeed(t *testing.T) {
	sdb := newTestDB(t)

	res, err := sdb.Seed("test", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Rooms: len(DefaultRooms), User: true}, res)

	res, err = sdb.Seed("test", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	rooms, err := sdb.GetRooms()
	require.NoError(t, err)
	assert.Len(t, rooms, len(DefaultRooms))
}
