package core

import "github.com/vovakirdan/duochat/internal/store"

// EventKind is a notification the core emits to connected sessions.
type EventKind int

const (
	// EventOnlineUsers carries the full set of online user ids.
	EventOnlineUsers EventKind = iota
	// EventNewMessage delivers a freshly stored message to its receiver.
	EventNewMessage
	// EventPong answers a client ping.
	EventPong
	// EventError notifies a session about a protocol or domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOnlineUsers:
		return "online_users"
	case EventNewMessage:
		return "new_message"
	case EventPong:
		return "pong"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind        EventKind
	OnlineUsers []string       // EventOnlineUsers
	Message     *store.Message // EventNewMessage
	Error       *CoreError     // EventError
}
