package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/duochat/internal/store"
	"github.com/vovakirdan/duochat/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig, nil)
}

func TestSignup_RejectsMissingDetails(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	cases := []SignupInput{
		{FullName: "", Email: "a@example.com", Password: "password123", Bio: "hi"},
		{FullName: "Alice", Email: "not-an-email", Password: "password123", Bio: "hi"},
		{FullName: "Alice", Email: "a@example.com", Password: "password123", Bio: "  "},
	}
	for _, in := range cases {
		if _, _, err := svc.Signup(ctx, in); !errors.Is(err, ErrMissingDetails) {
			t.Fatalf("expected ErrMissingDetails for %+v, got %v", in, err)
		}
	}
}

func TestSignup_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)

	_, _, err := svc.Signup(context.Background(), SignupInput{FullName: "Alice", Email: "a@example.com", Password: "12345", Bio: "hi"})
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestSignup_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Signup(ctx, SignupInput{FullName: "Alice", Email: " Alice@Example.com ", Password: "password123", Bio: "hi"})
	if err != nil {
		t.Fatalf("expected signup success, got %v", err)
	}
	if token == "" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected signup result: %+v %q", user, token)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("token identity %q, want %q", claims.UserID, user.ID)
	}

	_, _, err = svc.Signup(ctx, SignupInput{FullName: "Alice 2", Email: "alice@example.com", Password: "password123", Bio: "hi"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	created, _, err := svc.Signup(ctx, SignupInput{FullName: "Bob", Email: "bob@example.com", Password: "password123", Bio: "hey"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, _, err := svc.Login(ctx, "bob@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	user, token, err := svc.Login(ctx, "BOB@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != created.ID || token == "" {
		t.Fatalf("unexpected login result: %+v", user)
	}
}

func TestValidateTokenRejectsForeignAudience(t *testing.T) {
	token, err := GenerateToken(&JWTConfig{Secret: []byte("s"), Audience: "other", TTL: time.Minute}, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("s"), Audience: "duochat"}, token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("other-secret")}, token); err == nil {
		t.Fatalf("expected signature mismatch to fail")
	}
}

type fakeUploader struct{ calls int }

func (f *fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	f.calls++
	return "https://cdn.example.com/avatar.png", nil
}

func TestUpdateProfile(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	up := &fakeUploader{}
	svc := NewService(st, &JWTConfig{Secret: []byte("s"), TTL: time.Hour}, up)
	ctx := context.Background()

	user, _, err := svc.Signup(ctx, SignupInput{FullName: "Carol", Email: "carol@example.com", Password: "password123", Bio: "hi"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: " Carol C ", Bio: "new bio"})
	if err != nil {
		t.Fatalf("update without picture: %v", err)
	}
	if updated.FullName != "Carol C" || updated.Bio != "new bio" || updated.ProfilePic != "" || up.calls != 0 {
		t.Fatalf("unexpected profile %+v after %d uploads", updated, up.calls)
	}

	updated, err = svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "Carol C", Bio: "new bio", ProfilePic: "data:image/png;base64,aGVsbG8="})
	if err != nil {
		t.Fatalf("update with picture: %v", err)
	}
	if up.calls != 1 || updated.ProfilePic != "https://cdn.example.com/avatar.png" {
		t.Fatalf("expected uploaded reference, got %q", updated.ProfilePic)
	}

	// An empty picture keeps the current one.
	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "Carol", Bio: ""}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := svc.CurrentUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if stored.ProfilePic != "https://cdn.example.com/avatar.png" || stored.FullName != "Carol" || stored.Bio != "" {
		t.Fatalf("unexpected stored profile %+v", stored)
	}

	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "  "}); !errors.Is(err, ErrMissingDetails) {
		t.Fatalf("expected ErrMissingDetails, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "Carol", ProfilePic: "ftp://x/y.png"}); !errors.Is(err, ErrInvalidProfilePic) {
		t.Fatalf("expected ErrInvalidProfilePic, got %v", err)
	}
	if _, err := svc.UpdateProfile(ctx, "ghost", ProfileUpdate{FullName: "Ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestUpdateProfileWithoutUploaderRejectsDataURL(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, _, err := svc.Signup(ctx, SignupInput{FullName: "Dan", Email: "dan@example.com", Password: "password123", Bio: "hi"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "Dan", ProfilePic: "data:image/png;base64,aGVsbG8="}); !errors.Is(err, ErrInvalidProfilePic) {
		t.Fatalf("expected ErrInvalidProfilePic, got %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FullName: "Dan", ProfilePic: "https://example.com/dan.png"})
	if err != nil || updated.ProfilePic != "https://example.com/dan.png" {
		t.Fatalf("http reference should pass through: %+v, %v", updated, err)
	}
}
