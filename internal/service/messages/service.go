package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/assets"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/metrics"
	"github.com/vovakirdan/duochat/internal/store"
)

// Draft is the client-supplied body of a message to send.
type Draft struct {
	Text  string
	Image string // data URL to upload, or an existing http(s) reference
}

// Sidebar is the contact list of a user with per-sender unseen counts.
// Latest holds, per sender, the creation time of the newest counted message.
type Sidebar struct {
	Users  []*store.User
	Unseen map[string]int
	Latest map[string]time.Time
}

// Service provides direct-messaging business logic.
type Service struct {
	store      store.Store
	dispatcher *core.Dispatcher
	uploader   assets.Uploader
	log        *zerolog.Logger
}

// New creates a messaging service. uploader may be nil when image upload is disabled.
func New(st store.Store, dispatcher *core.Dispatcher, uploader assets.Uploader, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:      st,
		dispatcher: dispatcher,
		uploader:   uploader,
		log:        logger,
	}
}

// Send persists a message from senderID to receiverID and then pushes it to
// the receiver if online. The returned message is the stored record; push
// failures never affect the result.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, d Draft) (*store.Message, error) {
	if strings.TrimSpace(d.Text) == "" && strings.TrimSpace(d.Image) == "" {
		return nil, core.ValidationError("message must have text or image")
	}
	if senderID == receiverID {
		return nil, core.ValidationError("cannot send a message to yourself")
	}
	if _, err := s.store.GetUserByID(ctx, receiverID); err != nil {
		return nil, translate(err, "receiver not found")
	}

	image, err := assets.Resolve(ctx, s.uploader, d.Image)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidImage) || errors.Is(err, assets.ErrUploadDisabled) {
			return nil, core.ValidationError(err.Error())
		}
		return nil, err
	}

	msg := &store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       d.Text,
		Image:      image,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, translate(err, "receiver not found")
	}
	metrics.MessagesCreated.Inc()

	s.dispatcher.Dispatch(msg)
	return msg, nil
}

// Conversation marks everything contactID sent to viewerID as seen and returns
// the full conversation, oldest first.
func (s *Service) Conversation(ctx context.Context, viewerID, contactID string) ([]*store.Message, error) {
	if _, err := s.store.GetUserByID(ctx, contactID); err != nil {
		return nil, translate(err, "contact not found")
	}

	marked, err := s.store.MarkAllSeenFrom(ctx, contactID, viewerID)
	if err != nil {
		return nil, err
	}
	if marked > 0 {
		s.log.Debug().
			Str("viewer_id", viewerID).
			Str("contact_id", contactID).
			Int64("marked", marked).
			Msg("conversation marked seen")
	}

	return s.store.ListConversation(ctx, viewerID, contactID)
}

// MarkSeen flags a single message as seen. Only its receiver may do so;
// anyone else gets NotFound.
func (s *Service) MarkSeen(ctx context.Context, viewerID, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return translate(err, "message not found")
	}
	if msg.ReceiverID != viewerID {
		return core.NotFoundError("message not found")
	}
	if msg.Seen {
		return nil
	}
	return translate(s.store.MarkSeen(ctx, messageID), "message not found")
}

// Sidebar lists every other user together with the unseen counts the viewer
// has from each of them.
func (s *Service) Sidebar(ctx context.Context, viewerID string) (*Sidebar, error) {
	users, err := s.store.ListUsersExcept(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	groups, err := s.store.UnseenBySender(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	side := &Sidebar{
		Users:  users,
		Unseen: make(map[string]int, len(groups)),
		Latest: make(map[string]time.Time, len(groups)),
	}
	for senderID, g := range groups {
		side.Unseen[senderID] = g.Count
		side.Latest[senderID] = g.Latest
	}
	return side, nil
}

// translate maps store errors onto core errors.
func translate(err error, notFoundMsg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return core.NotFoundError(notFoundMsg)
	case errors.Is(err, store.ErrEmptyMessage):
		return core.ValidationError(err.Error())
	default:
		return fmt.Errorf("store: %w", err)
	}
}
