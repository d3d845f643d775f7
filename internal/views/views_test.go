package views

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MattCruikshank/goft/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	require.NoError(t, err)
	return r
}

func TestChatPage(t *testing.T) {
	r := newRenderer(t)
	alice := &models.User{ID: 1, Name: "alice"}
	room := &models.Room{ID: 3, Name: "Tech Talk"}
	msgs := []models.Message{
		{ID: "a", RoomID: 3, UserID: 1, AuthorName: "alice", Text: "mine", Timestamp: time.Now()},
		{ID: "b", RoomID: 3, UserID: 2, AuthorName: "bob", Text: "<script>alert(1)</script>", Timestamp: time.Now()},
	}

	var buf bytes.Buffer
	require.NoError(t, r.Chat(&buf, NewChatPage(alice, room, msgs, 500)))
	html := buf.String()

	assert.Contains(t, html, `<title>Tech Talk · goft</title>`)
	assert.Contains(t, html, `id="messages"`)
	assert.Contains(t, html, `id="input-form"`)
	assert.Contains(t, html, `ws-connect="/ws/3"`)
	assert.Contains(t, html, `hx-on::ws-after-send="sendMessage(event)"`)
	assert.Contains(t, html, `maxlength="500"`)
	assert.Contains(t, html, `src="/static/js/app.js"`)
	assert.Contains(t, html, `class="message own" id="msg-a"`)
	assert.Contains(t, html, `class="message" id="msg-b"`)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestMessageBytes(t *testing.T) {
	r := newRenderer(t)
	own, others, err := r.MessageBytes(models.Message{ID: "x", AuthorName: "alice", Text: "hi", Timestamp: time.Now()})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(own), `<div hx-swap-oob="beforeend:#messages">`))
	assert.Contains(t, string(own), `class="message own"`)
	assert.NotContains(t, string(others), "own")
	assert.Contains(t, string(others), `<p class="text">hi</p>`)
}

func TestForms(t *testing.T) {
	r := newRenderer(t)

	var buf bytes.Buffer
	require.NoError(t, r.Login(&buf, LoginPage{Name: "bob", ErrUserNotExists: true}))
	assert.Contains(t, buf.String(), "No user with that name.")
	assert.Contains(t, buf.String(), `value="bob"`)
	assert.NotContains(t, buf.String(), "Wrong password.")
	assert.Contains(t, buf.String(), "<title>Log in · goft</title>")

	buf.Reset()
	require.NoError(t, r.Signup(&buf, SignupPage{ErrDuplicatedUser: true}))
	assert.Contains(t, buf.String(), "That name is taken.")

	buf.Reset()
	require.NoError(t, r.Index(&buf))
	assert.Contains(t, buf.String(), "<title>goft</title>")
	assert.Contains(t, buf.String(), `href="/signup"`)
}

func TestRooms(t *testing.T) {
	r := newRenderer(t)
	rooms := []models.Room{{ID: 1, Name: "Book Club", Description: "Reads"}}

	var buf bytes.Buffer
	require.NoError(t, r.Rooms(&buf, RoomsPage{User: &models.User{Name: "alice"}, Rooms: rooms}))
	assert.Contains(t, buf.String(), `hx-get="/rooms/search"`)
	assert.Contains(t, buf.String(), `href="/chat/1"`)

	buf.Reset()
	require.NoError(t, r.RoomsList(&buf, nil))
	assert.Contains(t, buf.String(), "No rooms found.")
	assert.Contains(t, buf.String(), `id="rooms-list"`)
}

func TestChatError(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer
	require.NoError(t, r.ChatError(&buf, "slow <down>"))
	assert.Equal(t, `<div id="chat-error" hx-swap-oob="innerHTML">slow &lt;down&gt;</div>`, buf.String())
}
