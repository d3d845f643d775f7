// Package auth handles sign-up, login, and cookie sessions.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MattCruikshank/goft/internal/db"
	"github.com/MattCruikshank/goft/internal/models"
)

var (
	// ErrInvalidInput is returned when a name or password is empty.
	ErrInvalidInput = errors.New("name and password are required")
	// ErrUserNotFound is returned when logging in with an unknown name.
	ErrUserNotFound = errors.New("user does not exist")
	// ErrInvalidCredentials is returned when a password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateUser is returned when signing up with a taken name.
	ErrDuplicateUser = db.ErrDuplicateUser
)

// contextKey is a custom type for context keys.
type contextKey string

const userContextKey contextKey = "user"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Authenticator registers and logs in users and resolves request sessions.
type Authenticator struct {
	db       *db.ServerDB
	sessions *SessionStore
	cookie   CookieConfig
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(database *db.ServerDB, sessions *SessionStore, cookie CookieConfig) *Authenticator {
	return &Authenticator{
		db:       database,
		sessions: sessions,
		cookie:   cookie,
	}
}

// Sessions returns the session store.
func (a *Authenticator) Sessions() *SessionStore {
	return a.sessions
}

// Register creates a user and starts a session for it.
func (a *Authenticator) Register(name, password string) (*models.User, models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, models.Session{}, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, models.Session{}, err
	}

	user, err := a.db.CreateUser(name, hash)
	if err != nil {
		return nil, models.Session{}, err
	}

	sess, err := a.sessions.Create(user)
	if err != nil {
		return nil, models.Session{}, err
	}
	return user, sess, nil
}

// Login checks credentials and starts a session.
func (a *Authenticator) Login(name, password string) (*models.User, models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, models.Session{}, ErrInvalidInput
	}

	user, hash, err := a.db.GetUserByName(name)
	if err != nil {
		return nil, models.Session{}, err
	}
	if user == nil {
		return nil, models.Session{}, ErrUserNotFound
	}
	if err := CheckPassword(hash, password); err != nil {
		return nil, models.Session{}, err
	}

	sess, err := a.sessions.Create(user)
	if err != nil {
		return nil, models.Session{}, err
	}
	return user, sess, nil
}

// Logout ends the request's session, if any, and clears the cookie.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) error {
	a.ClearCookie(w)
	id := a.sessionID(r)
	if id == "" {
		return nil
	}
	return a.sessions.Delete(id)
}

// SetCookie writes the session cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, sess models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    sess.ID,
		Expires:  sess.Expiry,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *Authenticator) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(a.cookie.Name)
	if err != nil || cookie.Valid() != nil {
		return ""
	}
	return cookie.Value
}

// GetUser returns the user of the request's session cookie.
func (a *Authenticator) GetUser(r *http.Request) (*models.User, error) {
	return a.sessions.Get(a.sessionID(r))
}

// Middleware wraps an HTTP handler and adds the user to the context.
// Requests without a valid session are redirected to the index page.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.GetUser(r)
		if err != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the user from the request context.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
