package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/metrics"
)

// ReasonReplaced is the close reason given to a session evicted by a newer
// registration of the same user.
const ReasonReplaced = "session replaced"

// Registry tracks which users hold a live session. It is process-local and
// starts empty; everyone is offline after a restart.
//
// At most one session per user is addressable. Registering a second session
// for the same user evicts the first one (it is closed with ReasonReplaced).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zerolog.Logger
}

// NewRegistry creates an empty presence registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		sessions: make(map[string]*Session),
		log:      logger,
	}
}

// Register makes s the addressable session for its user and broadcasts the
// new online set. Sessions without a user id are rejected.
func (r *Registry) Register(s *Session) error {
	if s == nil || s.UserID == "" {
		return UnauthenticatedError("session has no authenticated user")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[s.UserID]; ok && prev != s {
		prev.Close(ReasonReplaced)
		metrics.SessionsReplaced.Inc()
		r.log.Info().
			Str("user_id", s.UserID).
			Str("old_session", prev.ID).
			Str("new_session", s.ID).
			Msg("session replaced")
	}
	r.sessions[s.UserID] = s
	r.broadcastLocked()
	return nil
}

// Deregister removes s if it is still the current session for its user.
// A stale handle (already replaced) is a no-op and reports false.
func (r *Registry) Deregister(s *Session) bool {
	if s == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.UserID]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, s.UserID)
	r.broadcastLocked()
	return true
}

// IsOnline reports whether userID has a registered session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[userID]
	return ok
}

// Lookup returns the current session for userID.
func (r *Registry) Lookup(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Snapshot returns the sorted ids of all online users.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// broadcastLocked sends the online set to every session. Sends never block,
// so holding the lock keeps mutation and broadcast in one step.
func (r *Registry) broadcastLocked() {
	online := r.snapshotLocked()
	metrics.OnlineUsers.Set(float64(len(online)))

	for _, s := range r.sessions {
		// Each session gets its own slice; transports may hold on to it.
		ids := make([]string, len(online))
		copy(ids, online)
		if err := s.Send(&Event{Kind: EventOnlineUsers, OnlineUsers: ids}); err != nil {
			r.log.Debug().Err(err).Str("user_id", s.UserID).Msg("drop online users event")
		}
	}
}
