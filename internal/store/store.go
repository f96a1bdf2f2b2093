package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a user or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyMessage is returned when a message has neither text nor image.
	ErrEmptyMessage = errors.New("message must have text or image")
	// ErrDuplicateEmail is returned when registering an email that is already taken.
	ErrDuplicateEmail = errors.New("email already registered")
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Bio          string
	ProfilePic   string
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
// Everything except Seen is immutable once stored.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	Image      string // reference returned by the asset uploader, never raw bytes
	Seen       bool
	CreatedAt  time.Time
}

// Validate checks that the message carries a body.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.Image) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// UnseenGroup summarizes the unseen messages from one sender.
type UnseenGroup struct {
	Count  int
	Latest time.Time // CreatedAt of the newest counted message
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user and assigns its ID.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsersExcept lists every user other than the given one, ordered by name.
	ListUsersExcept(ctx context.Context, id string) ([]*User, error)

	// UpdateUser overwrites the profile fields (full name, bio, profile picture)
	// of an existing user.
	UpdateUser(ctx context.Context, user *User) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage validates and persists a message, assigning ID and CreatedAt.
	// Seen is always false on creation.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListConversation returns all messages exchanged between a and b in either
	// direction, ordered by creation time ascending.
	ListConversation(ctx context.Context, a, b string) ([]*Message, error)

	// MarkSeen flags a single message as seen. Idempotent.
	MarkSeen(ctx context.Context, id string) error

	// MarkAllSeenFrom flags every message from sender to receiver as seen.
	// Returns the number of messages that changed.
	MarkAllSeenFrom(ctx context.Context, senderID, receiverID string) (int64, error)

	// CountUnseenBySender returns senderID -> unseen count for messages addressed
	// to receiverID. Senders with nothing unseen are omitted.
	CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error)

	// UnseenBySender is CountUnseenBySender plus, per sender, the creation time
	// of the newest counted message, read in one statement.
	UnseenBySender(ctx context.Context, receiverID string) (map[string]UnseenGroup, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
