package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/duochat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock *clock

	// insertMu keeps message commit order equal to created_at order.
	insertMu sync.Mutex
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens the database and runs a setup function before first use.
// Tests pass ":memory:" with Migrate to get a fresh schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db, clock: &clock{}}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// clock hands out strictly increasing timestamps so that creation order is
// total even when two messages land in the same nanosecond.
type clock struct {
	mu   sync.Mutex
	last int64
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return time.Unix(0, now).UTC()
}

// ==== UserStore implementation ====

// CreateUser persists a new user and assigns its ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = s.clock.next()

	query := `
		INSERT INTO users (id, email, full_name, password_hash, bio, profile_pic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FullName, user.PasswordHash, user.Bio, user.ProfilePic,
		user.CreatedAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, full_name, password_hash, bio, profile_pic, created_at`

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsersExcept lists every user other than the given one.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, id string) ([]*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id <> ? ORDER BY full_name, id`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

// UpdateUser overwrites full name, bio and profile picture.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *store.User) error {
	query := `UPDATE users SET full_name = ?, bio = ?, profile_pic = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, user.FullName, user.Bio, user.ProfilePic, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	return nil
}

func scanUser(row scanner) (*store.User, error) {
	var user store.User
	var createdAt int64
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.Bio,
		&user.ProfilePic,
		&createdAt,
	); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

// ==== MessageStore implementation ====

// CreateMessage validates and persists a message. The row is committed before
// this returns, so callers may notify the receiver right after.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	msg.Text = strings.TrimSpace(msg.Text)
	msg.Image = strings.TrimSpace(msg.Image)
	if err := msg.Validate(); err != nil {
		return err
	}

	s.insertMu.Lock()
	defer s.insertMu.Unlock()

	msg.ID = uuid.NewString()
	msg.Seen = false
	msg.CreatedAt = s.clock.next()

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, seen, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.Image, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("message participants: %w", store.ErrNotFound)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const messageColumns = `id, sender_id, receiver_id, text, image, seen, created_at`

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListConversation returns the messages between a and b, oldest first.
func (s *SQLiteStore) ListConversation(ctx context.Context, a, b string) ([]*store.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkSeen flags a single message as seen.
func (s *SQLiteStore) MarkSeen(ctx context.Context, id string) error {
	// SQLite counts matched rows, so an already-seen message still reports one.
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// MarkAllSeenFrom flags every unseen message from sender to receiver.
func (s *SQLiteStore) MarkAllSeenFrom(ctx context.Context, senderID, receiverID string) (int64, error) {
	query := `
		UPDATE messages SET seen = 1
		WHERE sender_id = ? AND receiver_id = ? AND seen = 0
	`
	result, err := s.db.ExecContext(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark all seen: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CountUnseenBySender groups unseen messages for receiverID by sender.
func (s *SQLiteStore) CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	groups, err := s.UnseenBySender(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(groups))
	for senderID, g := range groups {
		counts[senderID] = g.Count
	}
	return counts, nil
}

// UnseenBySender groups unseen messages for receiverID by sender, with the
// newest counted created_at of each group.
func (s *SQLiteStore) UnseenBySender(ctx context.Context, receiverID string) (map[string]store.UnseenGroup, error) {
	query := `
		SELECT sender_id, COUNT(*), MAX(created_at)
		FROM messages
		WHERE receiver_id = ? AND seen = 0
		GROUP BY sender_id
	`
	rows, err := s.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}
	defer rows.Close()

	groups := make(map[string]store.UnseenGroup)
	for rows.Next() {
		var (
			senderID string
			n        int
			latest   int64
		)
		if err := rows.Scan(&senderID, &n, &latest); err != nil {
			return nil, fmt.Errorf("scan unseen count: %w", err)
		}
		groups[senderID] = store.UnseenGroup{Count: n, Latest: time.Unix(0, latest).UTC()}
	}
	return groups, rows.Err()
}

func scanMessage(row scanner) (*store.Message, error) {
	var msg store.Message
	var createdAt int64
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Text,
		&msg.Image,
		&msg.Seen,
		&createdAt,
	); err != nil {
		return nil, err
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}
