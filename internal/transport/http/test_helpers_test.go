package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/config"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/proto"
	"github.com/vovakirdan/duochat/internal/service/messages"
	"github.com/vovakirdan/duochat/internal/store"
	"github.com/vovakirdan/duochat/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	auth     *auth.Service
	registry *core.Registry
	store    store.Store
}

func testConfig() config.Config {
	return config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		MaxMessageBytes:   1 << 20,
		JWTSecret:         "test-secret",
		JWTIssuer:         "test",
		JWTAudience:       "test",
		JWTTTL:            time.Hour,
		JWTRequired:       true,
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.New(nil).Level(zerolog.Disabled)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}, nil)
	registry := core.NewRegistry(&disabledLogger)
	msgService := messages.New(st, core.NewDispatcher(registry, &disabledLogger), nil, &disabledLogger)

	server := NewServer(registry, authService, msgService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, registry: registry, store: st}
}

func (e *testEnv) signup(t *testing.T, name string) (*store.User, string) {
	t.Helper()

	user, token, err := e.auth.Signup(context.Background(), auth.SignupInput{
		FullName: name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "password123",
		Bio:      "hello",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", name, err)
	}
	return user, token
}

// do performs a JSON request and decodes the response body into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) wsURL(userID, token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?userId=" + userID
	if token != "" {
		u += "&token=" + token
	}
	return u
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, userID, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(userID, token), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readEvent reads frames until one matches event, skipping others.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, match func(proto.RawOutbound) bool) proto.RawOutbound {
	t.Helper()

	for {
		var out proto.RawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event != event {
			continue
		}
		if match == nil || match(out) {
			return out
		}
	}
}

func onlineUsersEqual(want ...string) func(proto.RawOutbound) bool {
	return func(out proto.RawOutbound) bool {
		var ids []string
		if err := json.Unmarshal(out.Data, &ids); err != nil {
			return false
		}
		if len(ids) != len(want) {
			return false
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			seen[id] = true
		}
		for _, id := range want {
			if !seen[id] {
				return false
			}
		}
		return true
	}
}
