// Package client is the client side of the realtime messaging flow: a REST
// client, a websocket connection and the Controller that keeps the locally
// visible conversation consistent with the server.
package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/proto"
)

// ErrNoContactSelected is returned by Send when no conversation is open.
var ErrNoContactSelected = errors.New("no contact selected")

// ErrStopped is returned when the controller loop is no longer running.
var ErrStopped = errors.New("controller stopped")

const (
	opsBuffer     = 64
	noticesBuffer = 16
)

// Notice is a transient, user-visible failure.
type Notice struct {
	Op  string
	Err error
}

// State is an immutable view of the controller.
type State struct {
	Self      string
	Selected  string
	Switching string // contact being fetched, "" when no switch is in flight
	Messages  []proto.Message
	Unseen    map[string]int
	Online    []string
	Contacts  []proto.User
}

// Controller owns the local conversation state of one signed-in user. Every
// transition runs on the goroutine executing Run, in arrival order.
type Controller struct {
	api  API
	self string
	log  *zerolog.Logger

	ops     chan func()
	done    chan struct{}
	notices chan Notice
	changed chan struct{}

	// Loop-owned state.
	runCtx    context.Context
	selected  string
	pending   string
	fetchGen  uint64
	messages  []proto.Message
	ids       map[string]struct{}
	unseen    map[string]int
	online    []string
	contacts  []proto.User
	queued    []proto.Message
	attached  *attachment
	reloads   []*sidebarReload
	stale     int

	snapMu sync.RWMutex
	snap   State

	// Attachments not yet cancelled, so stopping can tear down listeners whose
	// switch-over never ran.
	attachMu sync.Mutex
	stopped  bool
	live     map[*attachment]struct{}
}

// NewController creates a controller for the signed-in user self.
func NewController(api API, self string, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Controller{
		api:     api,
		self:    self,
		log:     logger,
		ops:     make(chan func(), opsBuffer),
		done:    make(chan struct{}),
		notices: make(chan Notice, noticesBuffer),
		changed: make(chan struct{}, 1),
		ids:     make(map[string]struct{}),
		unseen:  make(map[string]int),
		live:    make(map[*attachment]struct{}),
	}
	c.snap = State{Self: self, Unseen: map[string]int{}}
	return c
}

// Run executes transitions until ctx is cancelled. Subscriptions are torn
// down on exit.
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	defer c.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-c.ops:
			op()
			c.publish()
		}
	}
}

// Notices delivers fetch and send failures. Notices are dropped when nobody reads.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

// Changed is signalled after every state transition.
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// attachment is the listener pair installed on one connection.
type attachment struct {
	mu        sync.Mutex
	cancelled bool
	subs      []Subscription
}

func (a *attachment) hold(subs ...Subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelled {
		for _, s := range subs {
			s.Cancel()
		}
		return
	}
	a.subs = append(a.subs, subs...)
}

func (a *attachment) cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = true
	for _, s := range a.subs {
		s.Cancel()
	}
	a.subs = nil
}

// Attach listens on conn for pushes and presence. The listeners are installed
// before Attach returns. Listeners of a previously attached connection are
// cancelled, so a reconnect never delivers the same push twice.
func (c *Controller) Attach(conn Conn) {
	att := &attachment{}
	c.attachMu.Lock()
	if c.stopped {
		c.attachMu.Unlock()
		return
	}
	c.live[att] = struct{}{}
	c.attachMu.Unlock()

	// The switch-over is queued ahead of any event the new listeners enqueue.
	c.enqueue(func() {
		c.detach()
		c.attached = att
	})

	msgSub := conn.OnMessage(func(m proto.Message) {
		c.enqueue(func() {
			if c.attached == att {
				c.receive(m)
			}
		})
	})
	onlineSub := conn.OnOnlineUsers(func(ids []string) {
		c.enqueue(func() {
			if c.attached == att {
				c.online = ids
			}
		})
	})
	att.hold(msgSub, onlineSub)
}

// Detach stops processing pushes until the next Attach.
func (c *Controller) Detach() {
	c.enqueue(c.detach)
}

// Select opens the conversation with contact. The switch is committed only
// when its fetch succeeds; a fetch for an older Select is discarded.
func (c *Controller) Select(contact string) {
	c.enqueue(func() {
		c.fetchGen++
		gen := c.fetchGen
		c.pending = contact
		ctx := c.runCtx

		go func() {
			msgs, err := c.api.Conversation(ctx, contact)
			c.enqueue(func() { c.finishSwitch(gen, contact, msgs, err) })
		}()
	})
}

// sidebarReload records the unseen events applied while a sidebar fetch is
// in flight, so they can be replayed on top of the fetched counts.
type sidebarReload struct {
	entries []reloadEntry
}

type reloadEntry struct {
	ev        UnseenEvent
	createdAt time.Time
}

// LoadSidebar reloads contacts and unseen counts from the server. Pushes
// counted while the fetch was in flight are kept unless the fetched counts
// already include them.
func (c *Controller) LoadSidebar(ctx context.Context) error {
	rl := &sidebarReload{}
	if err := c.call(ctx, func() { c.reloads = append(c.reloads, rl) }); err != nil {
		return err
	}
	defer c.enqueue(func() { c.dropReload(rl) })

	resp, err := c.api.Sidebar(ctx)
	if err != nil {
		c.notify("sidebar", err)
		return err
	}
	return c.call(ctx, func() {
		c.dropReload(rl)
		c.contacts = resp.Users

		unseen := ReduceUnseen(c.unseen, UnseenEvent{Kind: UnseenReload, Counts: resp.UnseenMessages})
		for _, e := range rl.entries {
			if e.ev.Kind == UnseenReceived && countedBy(resp, e.ev.Sender, e.createdAt) {
				continue
			}
			unseen = ReduceUnseen(unseen, e.ev)
		}
		if c.selected != "" {
			unseen = ReduceUnseen(unseen, UnseenEvent{Kind: UnseenViewed, Sender: c.selected})
		}
		c.unseen = unseen
	})
}

// countedBy reports whether a message from sender created at createdAt is
// part of the fetched unseen counts.
func countedBy(resp *proto.SidebarResponse, sender string, createdAt time.Time) bool {
	latest, ok := resp.UnseenLatest[sender]
	return ok && !createdAt.After(latest)
}

func (c *Controller) dropReload(rl *sidebarReload) {
	c.reloads = slices.DeleteFunc(c.reloads, func(r *sidebarReload) bool { return r == rl })
}

// applyUnseen updates the counts and records ev for reloads in flight.
func (c *Controller) applyUnseen(ev UnseenEvent, createdAt time.Time) {
	c.unseen = ReduceUnseen(c.unseen, ev)
	for _, rl := range c.reloads {
		rl.entries = append(rl.entries, reloadEntry{ev: ev, createdAt: createdAt})
	}
}

// Send posts text and/or image to the selected contact. Without a selection it
// fails with ErrNoContactSelected and makes no request. The server-confirmed
// message is appended before Send returns, provided the contact is still open.
func (c *Controller) Send(ctx context.Context, req proto.SendRequest) (*proto.Message, error) {
	var contact string
	if err := c.call(ctx, func() { contact = c.selected }); err != nil {
		return nil, err
	}
	if contact == "" {
		return nil, ErrNoContactSelected
	}

	msg, err := c.api.Send(ctx, contact, req)
	if err != nil {
		c.notify("send", err)
		return nil, err
	}

	confirmed := *msg
	if err := c.call(ctx, func() {
		if c.selected == contact {
			c.append(confirmed)
		}
	}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Controller) finishSwitch(gen uint64, contact string, msgs []proto.Message, err error) {
	if gen != c.fetchGen {
		c.stale++
		c.log.Debug().Str("contact_id", contact).Msg("discard stale conversation fetch")
		return
	}
	c.pending = ""

	if err != nil {
		c.notify("open conversation", err)
		c.replayQueued()
		return
	}

	c.selected = contact
	c.messages = make([]proto.Message, 0, len(msgs))
	c.ids = make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		c.append(m)
	}
	c.applyUnseen(UnseenEvent{Kind: UnseenViewed, Sender: contact}, time.Time{})
	c.replayQueued()
}

func (c *Controller) replayQueued() {
	queued := c.queued
	c.queued = nil
	for _, m := range queued {
		c.receive(m)
	}
}

// receive applies one pushed message. While a switch is in flight it waits
// for the switch to finish.
func (c *Controller) receive(m proto.Message) {
	if c.pending != "" {
		c.queued = append(c.queued, m)
		return
	}

	if c.selected != "" && m.SenderID == c.selected {
		if _, dup := c.ids[m.ID]; dup {
			return
		}
		m.Seen = true
		c.append(m)

		ctx, id := c.runCtx, m.ID
		go func() {
			if err := c.api.MarkSeen(ctx, id); err != nil {
				c.notify("mark seen", err)
			}
		}()
		return
	}

	c.applyUnseen(UnseenEvent{Kind: UnseenReceived, Sender: m.SenderID}, m.CreatedAt)
}

func (c *Controller) append(m proto.Message) {
	if _, dup := c.ids[m.ID]; dup {
		return
	}
	c.ids[m.ID] = struct{}{}
	c.messages = append(c.messages, m)
}

func (c *Controller) detach() {
	if c.attached != nil {
		c.attached.cancel()
		c.attachMu.Lock()
		delete(c.live, c.attached)
		c.attachMu.Unlock()
		c.attached = nil
	}
	c.online = nil
}

func (c *Controller) stop() {
	close(c.done)
	c.detach()

	c.attachMu.Lock()
	defer c.attachMu.Unlock()
	c.stopped = true
	for att := range c.live {
		att.cancel()
	}
	c.live = nil
}

func (c *Controller) publish() {
	unseen := make(map[string]int, len(c.unseen))
	for k, v := range c.unseen {
		unseen[k] = v
	}
	st := State{
		Self:      c.self,
		Selected:  c.selected,
		Switching: c.pending,
		Messages:  slices.Clone(c.messages),
		Unseen:    unseen,
		Online:    slices.Clone(c.online),
		Contacts:  slices.Clone(c.contacts),
	}

	c.snapMu.Lock()
	c.snap = st
	c.snapMu.Unlock()

	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// enqueue schedules op on the loop. It gives up once the loop has stopped.
func (c *Controller) enqueue(op func()) {
	select {
	case c.ops <- op:
	case <-c.done:
	}
}

// call runs op on the loop and waits for it. It must not be used from the loop.
func (c *Controller) call(ctx context.Context, op func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		op()
		c.publish()
		close(finished)
	}

	select {
	case c.ops <- wrapped:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) notify(op string, err error) {
	select {
	case c.notices <- Notice{Op: op, Err: err}:
	default:
		c.log.Warn().Err(err).Str("op", op).Msg("notice dropped")
	}
}
