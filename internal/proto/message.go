package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	InboundTypePing = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	// EventOnlineUsers carries the full list of online user ids.
	EventOnlineUsers = "getOnlineUsers"
	// EventNewMessage carries one freshly stored message for its receiver.
	EventNewMessage = "newMessage"
	EventPong       = "pong"
)

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RawOutbound is Outbound as decoded by a client, with Data left for a second pass.
type RawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Message is the wire form of a direct message, shared by REST responses and
// newMessage pushes.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// User is the public wire form of an account. It never carries the password hash.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Bio        string    `json:"bio,omitempty"`
	ProfilePic string    `json:"profilePic,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UpdateProfileRequest is the body of PUT /api/auth/update-profile. FullName
// is required. An empty ProfilePic keeps the current picture; otherwise it is
// a data URL to upload or an http(s) reference.
type UpdateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// SidebarResponse lists every other user with the unseen counts per sender.
// UnseenLatest is the creation time of the newest message counted per sender;
// a client uses it to tell which pushes a count already includes.
type SidebarResponse struct {
	Users          []User               `json:"users"`
	UnseenMessages map[string]int       `json:"unseenMessages"`
	UnseenLatest   map[string]time.Time `json:"unseenLatest,omitempty"`
}

// ConversationResponse is the ordered history between two users.
type ConversationResponse struct {
	Messages []Message `json:"messages"`
}

// SendRequest is the body of POST /api/messages/send/:id.
type SendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// SendResponse echoes the stored message back to its sender.
type SendResponse struct {
	Message Message `json:"message"`
}

// ErrorResponse is the body of every failed REST call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
