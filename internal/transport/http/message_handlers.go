package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/proto"
	"github.com/vovakirdan/duochat/internal/service/messages"
)

// MessageHandlers provides HTTP handlers for direct messaging.
type MessageHandlers struct {
	svc      *messages.Service
	maxBytes int64
	log      *zerolog.Logger
}

// NewMessageHandlers creates message handlers. maxBytes caps the send body; 0 disables the cap.
func NewMessageHandlers(svc *messages.Service, maxBytes int64, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		svc:      svc,
		maxBytes: maxBytes,
		log:      logger,
	}
}

// Sidebar lists every other user with unseen counts.
// GET /api/messages/users
func (h *MessageHandlers) Sidebar(c *gin.Context) {
	side, err := h.svc.Sidebar(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondCoreError(c, h.log, err)
		return
	}

	users := make([]proto.User, 0, len(side.Users))
	for _, u := range side.Users {
		users = append(users, userToProto(u))
	}
	unseen := side.Unseen
	if unseen == nil {
		unseen = map[string]int{}
	}
	c.JSON(http.StatusOK, proto.SidebarResponse{
		Users:          users,
		UnseenMessages: unseen,
		UnseenLatest:   side.Latest,
	})
}

// Conversation returns the history with a contact and marks it seen.
// GET /api/messages/:id
func (h *MessageHandlers) Conversation(c *gin.Context) {
	msgs, err := h.svc.Conversation(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, proto.ConversationResponse{Messages: messagesToProto(msgs)})
}

// MarkSeen flags one received message as seen.
// PUT /api/messages/mark/:id
func (h *MessageHandlers) MarkSeen(c *gin.Context) {
	if err := h.svc.MarkSeen(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		respondCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Send stores a message to the contact in the path and pushes it if they are online.
// POST /api/messages/send/:id
func (h *MessageHandlers) Send(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	var req proto.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		respondError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), currentUserID(c), c.Param("id"), messages.Draft{
		Text:  req.Text,
		Image: req.Image,
	})
	if err != nil {
		respondCoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, proto.SendResponse{Message: messageToProto(msg)})
}
