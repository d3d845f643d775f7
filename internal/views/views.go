// Package views renders goft's HTML pages and htmx fragments.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/MattCruikshank/goft/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "login", "signup", "rooms", "chat"}

// LoginPage is the data of the login form.
type LoginPage struct {
	Name             string
	ErrUserNotExists bool
	ErrInvalidCred   bool
	ErrInvalidInput  bool
}

// SignupPage is the data of the sign-up form.
type SignupPage struct {
	Name              string
	ErrDuplicatedUser bool
	ErrInvalidInput   bool
}

// RoomsPage lists the rooms a user can join.
type RoomsPage struct {
	User  *models.User
	Rooms []models.Room
}

// MessageView is a message as seen by one viewer.
type MessageView struct {
	Message models.Message
	Own     bool
}

// ChatPage is a room with its recent history.
type ChatPage struct {
	User      *models.User
	Room      *models.Room
	Messages  []MessageView
	MaxLength int
}

// NewChatPage builds a chat page, marking the messages written by user.
func NewChatPage(user *models.User, room *models.Room, messages []models.Message, maxLength int) ChatPage {
	views := make([]MessageView, len(messages))
	for i, m := range messages {
		views[i] = MessageView{Message: m, Own: m.UserID == user.ID}
	}
	return ChatPage{User: user, Room: room, Messages: views, MaxLength: maxLength}
}

// Renderer holds the parsed templates.
type Renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	fragments, err := template.ParseFS(templateFS, "templates/fragments.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragments: %w", err)
	}

	r := &Renderer{
		pages:     make(map[string]*template.Template, len(pageNames)),
		fragments: fragments,
	}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS,
			"templates/layout.html",
			"templates/fragments.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) page(w io.Writer, name string, data interface{}) error {
	return r.pages[name].ExecuteTemplate(w, "layout", data)
}

// Index renders the landing page.
func (r *Renderer) Index(w io.Writer) error {
	return r.page(w, "index", nil)
}

// Login renders the login page.
func (r *Renderer) Login(w io.Writer, data LoginPage) error {
	return r.page(w, "login", data)
}

// Signup renders the sign-up page.
func (r *Renderer) Signup(w io.Writer, data SignupPage) error {
	return r.page(w, "signup", data)
}

// Rooms renders the room list page.
func (r *Renderer) Rooms(w io.Writer, data RoomsPage) error {
	return r.page(w, "rooms", data)
}

// Chat renders a room's chat page.
func (r *Renderer) Chat(w io.Writer, data ChatPage) error {
	return r.page(w, "chat", data)
}

// RoomsList renders the room list fragment returned by searches.
func (r *Renderer) RoomsList(w io.Writer, rooms []models.Room) error {
	return r.fragments.ExecuteTemplate(w, "rooms_list", rooms)
}

// Message renders a message fragment appended to the message list out of band.
func (r *Renderer) Message(w io.Writer, msg MessageView) error {
	return r.fragments.ExecuteTemplate(w, "message_oob", msg)
}

// MessageBytes renders a message fragment for both kinds of viewer:
// the author and everyone else.
func (r *Renderer) MessageBytes(msg models.Message) (own, others []byte, err error) {
	var buf bytes.Buffer
	if err := r.Message(&buf, MessageView{Message: msg, Own: true}); err != nil {
		return nil, nil, err
	}
	own = append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := r.Message(&buf, MessageView{Message: msg}); err != nil {
		return nil, nil, err
	}
	return own, buf.Bytes(), nil
}

// ChatError renders an error fragment shown under the message list.
func (r *Renderer) ChatError(w io.Writer, text string) error {
	return r.fragments.ExecuteTemplate(w, "chat_error", text)
}
