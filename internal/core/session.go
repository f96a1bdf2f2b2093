package core

import (
	"sync"

	"github.com/google/uuid"
)

const sessionBuffer = 32

// Session is one live realtime connection of an authenticated user as seen by
// the core layer. The transport drains Events and watches Done.
type Session struct {
	ID     string
	UserID string
	Events chan *Event

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// NewSession constructs a session with initialized channels.
func NewSession(userID string) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Events: make(chan *Event, sessionBuffer),
		done:   make(chan struct{}),
	}
}

// Send enqueues an event without blocking. Events is never closed, so a send
// racing with Close is safe; it just reports ErrSessionClosed.
func (s *Session) Send(ev *Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.Events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close marks the session as finished. Only the first reason is kept.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Done is closed once the session has been closed or evicted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Reason returns why the session was closed, or "" while it is still open.
func (s *Session) Reason() string {
	select {
	case <-s.done:
		return s.reason
	default:
		return ""
	}
}
