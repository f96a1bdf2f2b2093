package http

import (
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/proto"
	"github.com/vovakirdan/duochat/internal/store"
)

func userToProto(u *store.User) proto.User {
	return proto.User{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Bio:        u.Bio,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
	}
}

func messageToProto(m *store.Message) proto.Message {
	return proto.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		Seen:       m.Seen,
		CreatedAt:  m.CreatedAt,
	}
}

func messagesToProto(msgs []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToProto(m))
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers:
		users := event.OnlineUsers
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  users,
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messageToProto(event.Message),
		}
	case core.EventPong:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventPong}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

// eventFromInbound answers a client frame. Only ping is understood; anything
// else yields a bad_request error event.
func eventFromInbound(inbound proto.Inbound) *core.Event {
	switch inbound.Type {
	case proto.InboundTypePing:
		return &core.Event{Kind: core.EventPong}
	default:
		return errorEvent(core.ErrCodeBadRequest, "unknown message type")
	}
}

func errorEvent(code, msg string) *core.Event {
	return &core.Event{Kind: core.EventError, Error: &core.CoreError{Code: code, Message: msg}}
}
