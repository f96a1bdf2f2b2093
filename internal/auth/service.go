package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/duochat/internal/assets"
	"github.com/vovakirdan/duochat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("account already exists")
	// ErrMissingDetails is returned when a signup field is empty or malformed.
	ErrMissingDetails = errors.New("missing details")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidProfilePic is returned when a profile picture is neither a
	// data URL nor an http(s) reference, or cannot be uploaded here.
	ErrInvalidProfilePic = errors.New("invalid profile picture")
)

// SignupInput is the data needed to create an account.
type SignupInput struct {
	FullName string
	Email    string
	Password string
	Bio      string
}

// ProfileUpdate is the editable part of an account.
type ProfileUpdate struct {
	FullName   string
	Bio        string
	ProfilePic string // data URL, http(s) reference, or "" to keep the current one
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
	uploader  assets.Uploader
}

// NewService creates a new authentication service. uploader may be nil, in
// which case profile pictures must already be http(s) references.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig, uploader assets.Uploader) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
		uploader:  uploader,
	}
}

// Signup creates a user with a hashed password and returns it with a token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*store.User, string, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Bio = strings.TrimSpace(in.Bio)

	if in.FullName == "" || in.Email == "" || in.Bio == "" {
		return nil, "", ErrMissingDetails
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, "", ErrMissingDetails
	}
	if len(in.Password) < 6 {
		return nil, "", ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &store.User{
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hashedPassword,
		Bio:          in.Bio,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and returns the user with a token.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !ComparePassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return user, token, nil
}

// ValidateToken validates a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// UpdateProfile replaces the name and bio of userID and, when given, its
// profile picture. A data URL picture is uploaded and only the reference kept.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*store.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Bio = strings.TrimSpace(in.Bio)
	if in.FullName == "" {
		return nil, ErrMissingDetails
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.ProfilePic) != "" {
		ref, err := assets.Resolve(ctx, s.uploader, in.ProfilePic)
		if err != nil {
			if errors.Is(err, assets.ErrInvalidImage) || errors.Is(err, assets.ErrUploadDisabled) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidProfilePic, err)
			}
			return nil, err
		}
		user.ProfilePic = ref
	}
	user.FullName = in.FullName
	user.Bio = in.Bio

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// CurrentUser resolves the user behind a validated identity.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}
