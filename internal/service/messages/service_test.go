package messages

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/store"
	"github.com/vovakirdan/duochat/internal/store/sqlite"
)

type fakeUploader struct{ calls int }

func (f *fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	f.calls++
	return "https://cdn.example.com/uploaded.png", nil
}

type fixture struct {
	svc      *Service
	store    *sqlite.SQLiteStore
	registry *core.Registry
	uploader *fakeUploader
	u1, u2   *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	u1 := &store.User{Email: "u1@example.com", FullName: "User One", PasswordHash: "x"}
	u2 := &store.User{Email: "u2@example.com", FullName: "User Two", PasswordHash: "x"}
	for _, u := range []*store.User{u1, u2} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	reg := core.NewRegistry(nil)
	up := &fakeUploader{}
	return &fixture{
		svc:      New(st, core.NewDispatcher(reg, nil), up, nil),
		store:    st,
		registry: reg,
		uploader: up,
		u1:       u1,
		u2:       u2,
	}
}

func pushedMessages(s *core.Session) []*store.Message {
	var out []*store.Message
	for {
		select {
		case ev := <-s.Events:
			if ev.Kind == core.EventNewMessage {
				out = append(out, ev.Message)
			}
		default:
			return out
		}
	}
}

func TestOfflineReceiverCatchesUpThroughSidebarAndConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sender := core.NewSession(f.u1.ID)
	if err := f.registry.Register(sender); err != nil {
		t.Fatalf("register sender: %v", err)
	}

	sent, err := f.svc.Send(ctx, f.u1.ID, f.u2.ID, Draft{Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pushedMessages(sender)) != 0 {
		t.Fatalf("sender must not receive its own push")
	}

	// U2 connects later.
	receiver := core.NewSession(f.u2.ID)
	if err := f.registry.Register(receiver); err != nil {
		t.Fatalf("register receiver: %v", err)
	}
	if len(pushedMessages(receiver)) != 0 {
		t.Fatalf("messages sent while offline must not be pushed on connect")
	}

	side, err := f.svc.Sidebar(ctx, f.u2.ID)
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if side.Unseen[f.u1.ID] != 1 || len(side.Users) != 1 || side.Users[0].ID != f.u1.ID {
		t.Fatalf("unexpected sidebar: users=%v unseen=%v", side.Users, side.Unseen)
	}

	conv, err := f.svc.Conversation(ctx, f.u2.ID, f.u1.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv) != 1 || conv[0].Text != "hi" || !conv[0].Seen {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	stored, err := f.store.GetMessage(ctx, sent.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !stored.Seen {
		t.Fatalf("stored message should be seen after opening the conversation")
	}

	side, err = f.svc.Sidebar(ctx, f.u2.ID)
	if err != nil {
		t.Fatalf("sidebar: %v", err)
	}
	if side.Unseen[f.u1.ID] != 0 {
		t.Fatalf("unseen count should reset, got %v", side.Unseen)
	}
}

func TestSendPushesOnceToOnlineReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receiver := core.NewSession(f.u2.ID)
	if err := f.registry.Register(receiver); err != nil {
		t.Fatalf("register: %v", err)
	}

	sent, err := f.svc.Send(ctx, f.u1.ID, f.u2.ID, Draft{Text: "ping"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	pushed := pushedMessages(receiver)
	if len(pushed) != 1 || pushed[0].ID != sent.ID {
		t.Fatalf("expected exactly one push of %s, got %+v", sent.ID, pushed)
	}

	// Persist-then-notify: the pushed message is already in the store.
	conv, err := f.store.ListConversation(ctx, f.u1.ID, f.u2.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conv) != 1 || conv[0].ID != sent.ID {
		t.Fatalf("pushed message not found in store")
	}
}

func TestSendSucceedsWhenPushFails(t *testing.T) {
	f := newFixture(t)

	receiver := core.NewSession(f.u2.ID)
	if err := f.registry.Register(receiver); err != nil {
		t.Fatalf("register: %v", err)
	}
	receiver.Close("network gone")

	msg, err := f.svc.Send(context.Background(), f.u1.ID, f.u2.ID, Draft{Text: "still stored"})
	if err != nil {
		t.Fatalf("send must succeed even if push fails: %v", err)
	}
	if _, err := f.store.GetMessage(context.Background(), msg.ID); err != nil {
		t.Fatalf("message not stored: %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		receiver string
		draft    Draft
		want     error
	}{
		{name: "empty body", receiver: f.u2.ID, draft: Draft{Text: "  "}, want: core.ErrValidation},
		{name: "self", receiver: f.u1.ID, draft: Draft{Text: "me"}, want: core.ErrValidation},
		{name: "unknown receiver", receiver: "ghost", draft: Draft{Text: "hi"}, want: core.ErrNotFound},
		{name: "bad image", receiver: f.u2.ID, draft: Draft{Image: "not a url"}, want: core.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Send(ctx, f.u1.ID, tt.receiver, tt.draft); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	conv, err := f.store.ListConversation(ctx, f.u1.ID, f.u2.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conv) != 0 {
		t.Fatalf("rejected sends must not store anything, got %d", len(conv))
	}
}

func TestSendUploadsImageData(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(context.Background(), f.u1.ID, f.u2.ID, Draft{Image: "data:image/png;base64,aGVsbG8="})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if f.uploader.calls != 1 || msg.Image != "https://cdn.example.com/uploaded.png" {
		t.Fatalf("expected uploaded reference, got %q after %d uploads", msg.Image, f.uploader.calls)
	}
}

func TestMarkSeenOnlyByReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, f.u1.ID, f.u2.ID, Draft{Text: "read me"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := f.svc.MarkSeen(ctx, f.u1.ID, msg.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("sender must not mark its own message, got %v", err)
	}
	if err := f.svc.MarkSeen(ctx, f.u2.ID, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.MarkSeen(ctx, f.u2.ID, msg.ID); err != nil {
			t.Fatalf("mark seen #%d: %v", i+1, err)
		}
	}
	stored, _ := f.store.GetMessage(ctx, msg.ID)
	if !stored.Seen {
		t.Fatalf("expected seen")
	}
}

func TestConversationUnknownContact(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Conversation(context.Background(), f.u1.ID, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateThenListHasMessageOnceAndLast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		if _, err := f.svc.Send(ctx, f.u2.ID, f.u1.ID, Draft{Text: text}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	last, err := f.svc.Send(ctx, f.u1.ID, f.u2.ID, Draft{Text: "d"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	conv, err := f.store.ListConversation(ctx, f.u1.ID, f.u2.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	count := 0
	for _, m := range conv {
		if m.ID == last.ID {
			count++
		}
	}
	if count != 1 || conv[len(conv)-1].ID != last.ID {
		t.Fatalf("new message must appear exactly once and last")
	}
}
