package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MattCruikshank/goft/internal/db"
	"github.com/MattCruikshank/goft/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type cachedSession struct {
	user   models.User
	expiry time.Time
}

// SessionStore keeps sessions in the database with an in-memory cache in front.
type SessionStore struct {
	db    *db.ServerDB
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	cache map[string]cachedSession
}

// NewSessionStore creates a session store whose sessions live for ttl.
func NewSessionStore(database *db.ServerDB, ttl time.Duration) *SessionStore {
	return &SessionStore{
		db:    database,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedSession),
	}
}

// Create starts a new session for user.
func (s *SessionStore) Create(user *models.User) (models.Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	sess := models.Session{
		ID:     id.String(),
		UserID: user.ID,
		Expiry: s.now().Add(s.ttl).UTC().Truncate(time.Second),
	}
	if err := s.db.CreateSession(sess); err != nil {
		return models.Session{}, err
	}

	s.mu.Lock()
	s.cache[sess.ID] = cachedSession{user: *user, expiry: sess.Expiry}
	s.mu.Unlock()

	return sess, nil
}

// Get returns the user of a valid session, reading through to the database
// on a cache miss. It returns ErrSessionNotFound for unknown or expired sessions.
func (s *SessionStore) Get(sessionID string) (*models.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	now := s.now()

	s.mu.RLock()
	cached, found := s.cache[sessionID]
	s.mu.RUnlock()
	if found {
		if now.Before(cached.expiry) {
			u := cached.user
			return &u, nil
		}
		s.evict(sessionID)
		return nil, ErrSessionNotFound
	}

	user, sess, err := s.db.GetSessionUser(sessionID, now)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	s.cache[sessionID] = cachedSession{user: *user, expiry: sess.Expiry}
	s.mu.Unlock()

	return user, nil
}

// Delete ends a session.
func (s *SessionStore) Delete(sessionID string) error {
	s.evict(sessionID)
	return s.db.DeleteSession(sessionID)
}

func (s *SessionStore) evict(sessionID string) {
	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()
}

// Purge removes expired sessions from the cache and the database and
// returns how many database rows were deleted.
func (s *SessionStore) Purge() (int64, error) {
	now := s.now()

	s.mu.Lock()
	for id, cached := range s.cache {
		if !now.Before(cached.expiry) {
			delete(s.cache, id)
		}
	}
	s.mu.Unlock()

	return s.db.DeleteExpiredSessions(now)
}

// Sweep purges expired sessions every interval until ctx is done.
func (s *SessionStore) Sweep(ctx context.Context, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Purge()
			if err != nil {
				logger.Error("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
