package core

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/metrics"
	"github.com/vovakirdan/duochat/internal/store"
)

// Dispatcher pushes stored messages to their receiver's live session.
type Dispatcher struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{registry: registry, log: logger}
}

// Dispatch makes at most one push attempt for msg, which must already be
// persisted. It reports whether the event was handed to a live session.
// Failures are logged and never returned: the receiver will see the message
// on its next conversation fetch.
func (d *Dispatcher) Dispatch(msg *store.Message) bool {
	s, ok := d.registry.Lookup(msg.ReceiverID)
	if !ok {
		metrics.Pushes.WithLabelValues(metrics.PushOffline).Inc()
		d.log.Debug().
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Msg("receiver offline, push skipped")
		return false
	}

	payload := *msg
	if err := s.Send(&Event{Kind: EventNewMessage, Message: &payload}); err != nil {
		metrics.Pushes.WithLabelValues(metrics.PushFailed).Inc()
		d.log.Warn().
			Err(fmt.Errorf("%w: %w", ErrDeliveryFailed, err)).
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Str("session_id", s.ID).
			Msg("push failed")
		return false
	}

	metrics.Pushes.WithLabelValues(metrics.PushDelivered).Inc()
	return true
}
