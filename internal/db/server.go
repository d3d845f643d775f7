package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/MattCruikshank/goft/internal/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	// ErrDuplicateUser is returned when a user name is already taken.
	ErrDuplicateUser = errors.New("user already exists")
)

// driverName is go-sqlite3 with a Unicode-aware unicode_lower(text) SQL
// function; the built-in lower() only folds ASCII.
const driverName = "sqlite3_goft"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

// ServerDB handles server-side database operations.
type ServerDB struct {
	db *sql.DB
}

// NewServerDB opens or creates the server database.
func NewServerDB(path string) (*ServerDB, error) {
	db, err := sql.Open(driverName, path+"?_fk=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database at %s", path)
	}
	// One connection: keeps :memory: databases alive between queries.
	db.SetMaxOpenConns(1)

	sdb := &ServerDB{db: db}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not migrate database")
	}

	return sdb, nil
}

// Close closes the database connection.
func (s *ServerDB) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *ServerDB) Ping() error {
	return s.db.Ping()
}

func (s *ServerDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			hashed_password BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expiry INTEGER NOT NULL -- unix seconds
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);

		CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room_id INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateUser creates a new user with an already hashed password.
func (s *ServerDB) CreateUser(name string, hashedPassword []byte) (*models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO users (name, hashed_password, created_at) VALUES (?, ?, ?)`,
		name, hashedPassword, now)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateUser
	}
	if err != nil {
		return nil, errors.Wrap(err, "db insert user failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "db last insert id failed")
	}
	return &models.User{ID: id, Name: name, CreatedAt: now}, nil
}

// GetUserByName returns a user and its password hash, or nil if no user has that name.
func (s *ServerDB) GetUserByName(name string) (*models.User, []byte, error) {
	var u models.User
	var hash []byte
	err := s.db.QueryRow(`SELECT id, name, hashed_password, created_at FROM users WHERE name = ?`, name).
		Scan(&u.ID, &u.Name, &hash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "db select user %q failed", name)
	}
	return &u, hash, nil
}

// GetUser returns a user by ID, or nil if it does not exist.
func (s *ServerDB) GetUser(id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(`SELECT id, name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "db select user %d failed", id)
	}
	return &u, nil
}

// CreateSession stores a session.
func (s *ServerDB) CreateSession(session models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, user_id, expiry) VALUES (?, ?, ?)`,
		session.ID, session.UserID, session.Expiry.Unix())
	return errors.Wrap(err, "db insert session failed")
}

// GetSessionUser returns the user owning a session that is still valid at now.
// It returns nil if the session is missing or expired.
func (s *ServerDB) GetSessionUser(sessionID string, now time.Time) (*models.User, *models.Session, error) {
	var u models.User
	sess := models.Session{ID: sessionID}
	var expiry int64
	err := s.db.QueryRow(`
		SELECT users.id, users.name, users.created_at, sessions.expiry
		FROM users
		JOIN sessions ON users.id = sessions.user_id
		WHERE sessions.id = ? AND sessions.expiry > ?
	`, sessionID, now.Unix()).Scan(&u.ID, &u.Name, &u.CreatedAt, &expiry)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "db select session failed")
	}
	sess.UserID = u.ID
	sess.Expiry = time.Unix(expiry, 0).UTC()
	return &u, &sess, nil
}

// DeleteSession removes a session.
func (s *ServerDB) DeleteSession(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID)
	return errors.Wrap(err, "db delete session failed")
}

// DeleteExpiredSessions removes every session expired at now and returns how many were removed.
func (s *ServerDB) DeleteExpiredSessions(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expiry <= ?`, now.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "db delete expired sessions failed")
	}
	return res.RowsAffected()
}

// CreateRoom creates a new room.
func (s *ServerDB) CreateRoom(name, description string) (*models.Room, error) {
	res, err := s.db.Exec(`INSERT INTO rooms (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, errors.Wrap(err, "db insert room failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "db last insert id failed")
	}
	return &models.Room{ID: id, Name: name, Description: description}, nil
}

// GetRooms returns all rooms ordered by ID.
func (s *ServerDB) GetRooms() ([]models.Room, error) {
	rows, err := s.db.Query(`SELECT id, name, description FROM rooms ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "db select rooms failed")
	}
	defer rows.Close()
	return scanRooms(rows)
}

// SearchRooms returns the rooms whose name contains any word of term,
// ignoring case. An empty term matches every room.
func (s *ServerDB) SearchRooms(term string) ([]models.Room, error) {
	words := strings.Fields(term)
	if len(words) == 0 {
		return s.GetRooms()
	}

	clauses := make([]string, len(words))
	args := make([]interface{}, len(words))
	for i, w := range words {
		clauses[i] = `unicode_lower(name) LIKE ? ESCAPE '\'`
		args[i] = "%" + escapeLike(strings.ToLower(w)) + "%"
	}

	rows, err := s.db.Query(`SELECT id, name, description FROM rooms WHERE `+
		strings.Join(clauses, " OR ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "db search rooms %q failed", term)
	}
	defer rows.Close()
	return scanRooms(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanRooms(rows *sql.Rows) ([]models.Room, error) {
	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, errors.Wrap(err, "db scan room failed")
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a single room by ID, or nil if it does not exist.
func (s *ServerDB) GetRoom(id int64) (*models.Room, error) {
	var r models.Room
	err := s.db.QueryRow(`SELECT id, name, description FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "db select room %d failed", id)
	}
	return &r, nil
}

// UpdateRoom updates a room's name and description.
func (s *ServerDB) UpdateRoom(room *models.Room) error {
	_, err := s.db.Exec(`UPDATE rooms SET name = ?, description = ? WHERE id = ?`,
		room.Name, room.Description, room.ID)
	return errors.Wrapf(err, "db update room %d failed", room.ID)
}

// DeleteRoom deletes a room and its messages.
func (s *ServerDB) DeleteRoom(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rooms WHERE id = ?`, id)
	return errors.Wrapf(err, "db delete room %d failed", id)
}

// ClearRoomMessages removes all messages from a room.
func (s *ServerDB) ClearRoomMessages(roomID int64) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE room_id = ?`, roomID)
	return errors.Wrapf(err, "db clear room %d failed", roomID)
}

// CreateMessage stores a new message written by author.
func (s *ServerDB) CreateMessage(roomID int64, author *models.User, text string) (*models.Message, error) {
	msg := &models.Message{
		ID:         uuid.New().String(),
		RoomID:     roomID,
		UserID:     author.ID,
		AuthorName: author.Name,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO messages (id, room_id, user_id, author_name, text, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.UserID, msg.AuthorName, msg.Text, msg.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "db insert message failed")
	}
	return msg, nil
}

// GetMessages returns up to limit of the newest messages of a room in chronological order.
// If beforeID is provided, only messages older than that message are considered.
func (s *ServerDB) GetMessages(roomID int64, limit int, beforeID string) ([]models.Message, error) {
	var rows *sql.Rows
	var err error

	if beforeID != "" {
		var before int64
		err = s.db.QueryRow(`SELECT rowid FROM messages WHERE id = ?`, beforeID).Scan(&before)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "db select message %s failed", beforeID)
		}
		rows, err = s.db.Query(`
			SELECT id, room_id, user_id, author_name, text, timestamp
			FROM messages WHERE room_id = ? AND rowid < ?
			ORDER BY rowid DESC LIMIT ?
		`, roomID, before, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, room_id, user_id, author_name, text, timestamp
			FROM messages WHERE room_id = ?
			ORDER BY rowid DESC LIMIT ?
		`, roomID, limit)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "db select messages of room %d failed", roomID)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.AuthorName, &m.Text, &m.Timestamp); err != nil {
			return nil, errors.Wrap(err, "db scan message failed")
		}
		messages = append(messages, m)
	}
	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, rows.Err()
}
