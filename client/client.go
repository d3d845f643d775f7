// Package client connects to a goft server as a regular user: it logs in
// over HTTP and then joins rooms over WebSocket, speaking the same frames
// as the browser page.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MattCruikshank/goft/internal/protocol"
	"github.com/gorilla/websocket"
)

var (
	// ErrRejected is returned when the server re-renders the login or
	// sign-up form instead of starting a session.
	ErrRejected = errors.New("credentials rejected")
	// ErrClosed is returned by a Conn after it has been closed.
	ErrClosed = errors.New("connection closed")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client holds the session of one user on one server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: u,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Jar:              jar,
		},
	}, nil
}

// Login starts a session for an existing user.
func (c *Client) Login(ctx context.Context, name, password string) error {
	return c.submit(ctx, "/login", name, password)
}

// Signup registers a new user and starts a session for it.
func (c *Client) Signup(ctx context.Context, name, password string) error {
	return c.submit(ctx, "/signup", name, password)
}

func (c *Client) submit(ctx context.Context, path, name, password string) error {
	form := url.Values{"name": {name}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusSeeOther && resp.Header.Get("Location") == "/rooms":
		return nil
	case resp.StatusCode == http.StatusOK:
		return ErrRejected
	default:
		return fmt.Errorf("unexpected response to %s: %s", path, resp.Status)
	}
}

// Join opens a WebSocket to a room.
func (c *Client) Join(ctx context.Context, roomID int64) (*Conn, error) {
	u := *c.baseURL
	u.Scheme = "ws"
	if c.baseURL.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = fmt.Sprintf("/ws/%d", roomID)

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to join room %d: %s: %w", roomID, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to join room %d: %w", roomID, err)
	}

	conn := &Conn{
		conn:     ws,
		send:     make(chan []byte, 256),
		incoming: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	go conn.writePump()
	go conn.readPump()
	return conn, nil
}

// Conn is a joined room. Fragments are delivered in the order the server
// sent them.
type Conn struct {
	conn      *websocket.Conn
	send      chan []byte
	incoming  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Send posts a chat message to the room.
func (c *Conn) Send(text string) error {
	data, err := protocol.SendMessage{
		Message: text,
		Headers: map[string]string{"HX-Request": "true", "HX-Trigger": "message-form"},
	}.Encode()
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Receive returns the next HTML fragment pushed by the server.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.incoming:
		if !ok {
			return nil, c.Err()
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns why the connection stopped, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Close leaves the room.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setErr(ErrClosed)
		close(c.done)
	})
	return nil
}

func (c *Conn) readPump() {
	defer func() {
		close(c.incoming)
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setErr(ErrClosed)
			} else {
				c.setErr(err)
			}
			return
		}

		select {
		case c.incoming <- message:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.setErr(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setErr(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
