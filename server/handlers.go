package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MattCruikshank/goft/internal/auth"
	"github.com/MattCruikshank/goft/internal/config"
	"github.com/MattCruikshank/goft/internal/db"
	"github.com/MattCruikshank/goft/internal/protocol"
	"github.com/MattCruikshank/goft/internal/views"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server holds the server's dependencies.
type Server struct {
	hub    *Hub
	db     *db.ServerDB
	auth   *auth.Authenticator
	views  *views.Renderer
	chat   config.ChatConfig
	logger *zap.Logger
}

// NewServer creates a new server instance.
func NewServer(hub *Hub, database *db.ServerDB, authenticator *auth.Authenticator, renderer *views.Renderer, chat config.ChatConfig, logger *zap.Logger) *Server {
	return &Server{
		hub:    hub,
		db:     database,
		auth:   authenticator,
		views:  renderer,
		chat:   chat,
		logger: logger,
	}
}

// render buffers a template so that a failure can still become a 500.
func (s *Server) render(w http.ResponseWriter, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.logger.Error("render failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// HandleIndex serves the landing page, or sends logged-in users to their rooms.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if user, err := s.auth.GetUser(r); err == nil && user != nil {
		http.Redirect(w, r, "/rooms", http.StatusSeeOther)
		return
	}
	s.render(w, s.views.Index)
}

// HandleLoginPage serves the login form.
func (s *Server) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, func(w io.Writer) error {
		return s.views.Login(w, views.LoginPage{})
	})
}

// HandleLogin checks the submitted credentials.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")

	_, sess, err := s.auth.Login(name, r.PostFormValue("password"))
	if err != nil {
		page := views.LoginPage{Name: name}
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			page.ErrInvalidInput = true
		case errors.Is(err, auth.ErrUserNotFound):
			page.ErrUserNotExists = true
		case errors.Is(err, auth.ErrInvalidCredentials):
			page.ErrInvalidCred = true
		default:
			s.internalError(w, "login failed", err)
			return
		}
		s.render(w, func(w io.Writer) error { return s.views.Login(w, page) })
		return
	}

	s.auth.SetCookie(w, sess)
	http.Redirect(w, r, "/rooms", http.StatusSeeOther)
}

// HandleSignupPage serves the sign-up form.
func (s *Server) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, func(w io.Writer) error {
		return s.views.Signup(w, views.SignupPage{})
	})
}

// HandleSignup creates an account and logs it in.
func (s *Server) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")

	user, sess, err := s.auth.Register(name, r.PostFormValue("password"))
	if err != nil {
		page := views.SignupPage{Name: name}
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			page.ErrInvalidInput = true
		case errors.Is(err, auth.ErrDuplicateUser):
			page.ErrDuplicatedUser = true
		default:
			s.internalError(w, "signup failed", err)
			return
		}
		s.render(w, func(w io.Writer) error { return s.views.Signup(w, page) })
		return
	}

	s.logger.Info("user registered", zap.String("user", user.Name), zap.Int64("id", user.ID))
	s.auth.SetCookie(w, sess)
	http.Redirect(w, r, "/rooms", http.StatusSeeOther)
}

// HandleLogout ends the session.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(w, r); err != nil {
		s.logger.Warn("logout failed", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleHealthz reports whether the database is reachable.
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

// HandleRooms lists every room.
func (s *Server) HandleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.GetRooms()
	if err != nil {
		s.internalError(w, "failed to get rooms", err)
		return
	}
	page := views.RoomsPage{User: auth.UserFromContext(r.Context()), Rooms: rooms}
	s.render(w, func(w io.Writer) error { return s.views.Rooms(w, page) })
}

// HandleSearchRooms returns the room list fragment for a search term.
func (s *Server) HandleSearchRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.SearchRooms(r.URL.Query().Get("search"))
	if err != nil {
		s.internalError(w, "failed to search rooms", err)
		return
	}
	s.render(w, func(w io.Writer) error { return s.views.RoomsList(w, rooms) })
}

func roomID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// HandleChat serves a room with its recent history.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	id, err := roomID(r)
	if err != nil {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}
	room, err := s.db.GetRoom(id)
	if err != nil {
		s.internalError(w, "failed to get room", err)
		return
	}
	if room == nil {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	messages, err := s.db.GetMessages(id, s.chat.HistoryLimit, "")
	if err != nil {
		s.internalError(w, "failed to get messages", err)
		return
	}
	page := views.NewChatPage(auth.UserFromContext(r.Context()), room, messages, s.chat.MaxMessageLength)
	s.render(w, func(w io.Writer) error { return s.views.Chat(w, page) })
}

// HandleWebSocket joins the user to a room over a WebSocket.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := roomID(r)
	if err != nil {
		http.Error(w, "Invalid room ID", http.StatusBadRequest)
		return
	}
	room, err := s.db.GetRoom(id)
	if err != nil {
		s.internalError(w, "failed to get room", err)
		return
	}
	if room == nil {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	limiter := rate.NewLimiter(rate.Limit(s.chat.RatePerSecond), s.chat.Burst)
	client := s.hub.NewClient(conn, user, room.ID, limiter)
	if !s.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		s.handleMessage(client, message)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(client *Client, data []byte) {
	if !client.limiter.Allow() {
		s.sendError(client, protocol.ErrCodeRateLimited, "You are sending messages too fast.")
		return
	}

	msg, err := protocol.ParseSendMessage(data, s.chat.MaxMessageLength)
	switch {
	case errors.Is(err, protocol.ErrMessageEmpty):
		s.sendError(client, protocol.ErrCodeInvalidMsg, "Message cannot be empty.")
		return
	case errors.Is(err, protocol.ErrMessageTooLong):
		s.sendError(client, protocol.ErrCodeInvalidMsg, "Message is too long.")
		return
	case err != nil:
		s.sendError(client, protocol.ErrCodeInvalidMsg, "Invalid message format.")
		return
	}

	chatMsg, err := s.db.CreateMessage(client.RoomID(), client.User(), msg.Message)
	if err != nil {
		s.logger.Error("failed to create message", zap.Error(err))
		s.sendError(client, protocol.ErrCodeInternal, "Failed to save message.")
		return
	}

	own, others, err := s.views.MessageBytes(*chatMsg)
	if err != nil {
		s.logger.Error("failed to render message", zap.Error(err))
		s.sendError(client, protocol.ErrCodeInternal, "Failed to send message.")
		return
	}

	// The author's pages also get their error area emptied.
	buf := bytes.NewBuffer(own)
	if err := s.views.ChatError(buf, ""); err != nil {
		s.logger.Error("failed to render chat error", zap.Error(err))
	}
	s.hub.Broadcast(client.RoomID(), client.User().ID, buf.Bytes(), others)
}

// sendError shows text in the error area of the client's chat page.
func (s *Server) sendError(client *Client, code, text string) {
	s.logger.Debug("chat error",
		zap.String("code", code),
		zap.String("user", client.User().Name),
		zap.Int64("room", client.RoomID()))

	var buf bytes.Buffer
	if err := s.views.ChatError(&buf, text); err != nil {
		s.logger.Error("failed to render chat error", zap.Error(err))
		return
	}
	s.hub.SendTo(client, buf.Bytes())
}
