package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/proto"
)

// Subscription is a registered listener. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

type cancelFunc struct {
	once sync.Once
	fn   func()
}

func (c *cancelFunc) Cancel() {
	c.once.Do(c.fn)
}

// Conn is a live realtime connection the controller can listen on.
type Conn interface {
	OnMessage(fn func(proto.Message)) Subscription
	OnOnlineUsers(fn func([]string)) Subscription
}

// maxUndelivered bounds the pushes kept while no message listener is registered.
const maxUndelivered = 256

// WSConn is a websocket connection to /ws. Listeners run on its read goroutine.
//
// The server announces the online set once on registration, usually before
// anyone has subscribed. WSConn keeps the latest set and hands it to every new
// presence listener, and holds pushes that arrive with no message listener
// until the first one subscribes.
type WSConn struct {
	conn   *websocket.Conn
	log    *zerolog.Logger
	cancel context.CancelFunc

	// deliverMu serializes listener calls, so a replay never overtakes a
	// newer frame.
	deliverMu sync.Mutex

	mu          sync.Mutex
	next        int
	msgSubs     map[int]func(proto.Message)
	onlineSubs  map[int]func([]string)
	online      []string
	hasOnline   bool
	undelivered []proto.Message

	done chan struct{}
	err  error
}

// Dial opens a realtime connection for userID. wsURL points at the /ws endpoint.
func Dial(ctx context.Context, wsURL, userID, token string, logger *zerolog.Logger) (*WSConn, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &WSConn{
		conn:       conn,
		log:        logger,
		cancel:     cancel,
		msgSubs:    make(map[int]func(proto.Message)),
		onlineSubs: make(map[int]func([]string)),
		done:       make(chan struct{}),
	}
	go c.readLoop(readCtx)
	return c, nil
}

// OnMessage registers fn for newMessage pushes. Pushes received before any
// message listener existed are delivered to fn first.
func (c *WSConn) OnMessage(fn func(proto.Message)) Subscription {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	id := c.next
	c.next++
	c.msgSubs[id] = fn
	held := c.undelivered
	c.undelivered = nil
	c.mu.Unlock()

	for _, m := range held {
		fn(m)
	}
	return &cancelFunc{fn: func() {
		c.mu.Lock()
		delete(c.msgSubs, id)
		c.mu.Unlock()
	}}
}

// OnOnlineUsers registers fn for getOnlineUsers broadcasts. If a set was
// already received, fn gets it right away.
func (c *WSConn) OnOnlineUsers(fn func([]string)) Subscription {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	id := c.next
	c.next++
	c.onlineSubs[id] = fn
	latest, ok := slices.Clone(c.online), c.hasOnline
	c.mu.Unlock()

	if ok {
		fn(latest)
	}
	return &cancelFunc{fn: func() {
		c.mu.Lock()
		delete(c.onlineSubs, id)
		c.mu.Unlock()
	}}
}

// Ping asks the server for a pong.
func (c *WSConn) Ping(ctx context.Context) error {
	return wsjson.Write(ctx, c.conn, proto.Inbound{Type: proto.InboundTypePing})
}

// Done is closed when the read loop stops.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended. Valid after Done is closed.
func (c *WSConn) Err() error {
	<-c.done
	return c.err
}

// Close closes the connection normally.
func (c *WSConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	c.cancel()
	<-c.done
	return err
}

func (c *WSConn) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
			default:
				c.err = err
			}
			return
		}
		c.dispatch(out)
	}
}

func (c *WSConn) dispatch(out proto.RawOutbound) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if out.Type == proto.OutboundTypeError {
		if out.Error != nil {
			c.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("server error")
		}
		return
	}

	switch out.Event {
	case proto.EventNewMessage:
		var msg proto.Message
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("decode newMessage")
			return
		}
		for _, fn := range c.messageListeners(msg) {
			fn(msg)
		}
	case proto.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(out.Data, &ids); err != nil {
			c.log.Warn().Err(err).Msg("decode getOnlineUsers")
			return
		}
		for _, fn := range c.onlineListeners(ids) {
			fn(slices.Clone(ids))
		}
	case proto.EventPong:
	default:
		c.log.Debug().Str("event", out.Event).Msg("ignore unknown event")
	}
}

// messageListeners returns the current listeners, or holds msg when there are none.
func (c *WSConn) messageListeners(msg proto.Message) []func(proto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgSubs) == 0 {
		if len(c.undelivered) < maxUndelivered {
			c.undelivered = append(c.undelivered, msg)
		} else {
			c.log.Warn().Str("message_id", msg.ID).Msg("drop push, no listener")
		}
		return nil
	}
	fns := make([]func(proto.Message), 0, len(c.msgSubs))
	for _, fn := range c.msgSubs {
		fns = append(fns, fn)
	}
	return fns
}

// onlineListeners records ids as the latest set and returns the current listeners.
func (c *WSConn) onlineListeners(ids []string) []func([]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online, c.hasOnline = ids, true
	fns := make([]func([]string), 0, len(c.onlineSubs))
	for _, fn := range c.onlineSubs {
		fns = append(fns, fn)
	}
	return fns
}
