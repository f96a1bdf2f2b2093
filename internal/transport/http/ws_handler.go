package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/config"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/proto"
)

// StatusReplaced is the close code sent to a connection evicted by a newer
// connection of the same user.
const StatusReplaced = websocket.StatusPolicyViolation

var errSessionEnded = errors.New("session ended")

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	registry    *core.Registry
	authService *auth.Service
	cfg         *config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry:    registry,
		authService: authService,
		cfg:         cfg,
		log:         logger,
	}
}

// ServeHTTP serves GET /ws?userId=<id>&token=<jwt>. It is mounted outside the
// gin router because the upgrade needs the raw ResponseWriter.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := h.authenticate(q.Get("userId"), q.Get("token"))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		writeHandshakeError(w, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	session := core.NewSession(userID)
	if err := h.registry.Register(session); err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	defer h.registry.Deregister(session)

	logger := h.log.With().Str("user_id", userID).Str("session_id", session.ID).Logger()
	logger.Info().Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, &logger)
	}()

	err = <-errCh
	cancel()
	<-errCh
	session.Close("connection closed")

	if errors.Is(err, errSessionEnded) {
		logger.Info().Str("reason", session.Reason()).Msg("ws session ended by server")
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	logger.Info().Msg("ws disconnected")
	conn.Close(status, reason)
}

func writeHandshakeError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(proto.ErrorResponse{Error: msg, Code: core.ErrCodeUnauthenticated})
}

// authenticate resolves the identity of a connection. With a token the
// claims decide and userId, if given, must match them. Without one, userId is
// trusted only when JWT is not required.
func (h *WSHandler) authenticate(userID, token string) (string, error) {
	userID = strings.TrimSpace(userID)

	if token != "" {
		claims, err := h.authService.ValidateToken(token)
		if err != nil {
			return "", core.UnauthenticatedError("invalid token")
		}
		if userID != "" && userID != claims.UserID {
			return "", core.UnauthenticatedError("userId does not match token")
		}
		return claims.UserID, nil
	}

	if h.cfg.JWTRequired {
		return "", core.UnauthenticatedError("token is required")
	}
	if userID == "" {
		return "", core.UnauthenticatedError("userId is required")
	}
	return userID, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	var limiter *rate.Limiter
	if h.cfg.WSRateLimit > 0 {
		burst := int(h.cfg.WSRateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.cfg.WSRateLimit), burst)
	}

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		reply := eventFromInbound(inbound)
		if limiter != nil && !limiter.Allow() {
			reply = errorEvent(core.ErrCodeRateLimited, "too many messages")
		}
		if err := session.Send(reply); err != nil {
			logger.Debug().Err(err).Str("inbound_type", inbound.Type).Msg("drop reply")
		}
	}
}

// writeLoop is the only writer on conn. When the session is closed from the
// core side (eviction) it sends the close frame itself so the reason survives.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	for {
		select {
		case event := <-session.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Error().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-session.Done():
			status := websocket.StatusGoingAway
			if session.Reason() == core.ReasonReplaced {
				status = StatusReplaced
			}
			_ = conn.Close(status, session.Reason())
			return errSessionEnded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
