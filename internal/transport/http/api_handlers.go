package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/proto"
	"github.com/vovakirdan/duochat/internal/store"
)

// APIHandlers provides HTTP handlers for account endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// Signup handles account creation.
// POST /api/auth/signup
func (h *APIHandlers) Signup(c *gin.Context) {
	var req proto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid signup request")
		respondError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authService.Signup(c.Request.Context(), auth.SignupInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingDetails):
			respondError(c, http.StatusBadRequest, core.ErrCodeValidation, "missing details")
		case errors.Is(err, auth.ErrInvalidPassword):
			respondError(c, http.StatusBadRequest, core.ErrCodeValidation, "password must be at least 6 characters")
		case errors.Is(err, auth.ErrUserExists):
			respondError(c, http.StatusConflict, core.ErrCodeValidation, "account already exists")
		default:
			h.log.Error().Err(err).Str("email", req.Email).Msg("failed to sign up user")
			respondError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		}
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user signed up")
	c.JSON(http.StatusCreated, proto.AuthResponse{User: userToProto(user), Token: token})
}

// Login handles credential login.
// POST /api/auth/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req proto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		respondError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, core.ErrCodeUnauthenticated, "invalid credentials")
			return
		}
		h.log.Error().Err(err).Msg("failed to login user")
		respondError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, proto.AuthResponse{User: userToProto(user), Token: token})
}

// Check returns the account behind the presented token.
// GET /api/auth/check
func (h *APIHandlers) Check(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusUnauthorized, core.ErrCodeUnauthenticated, "user no longer exists")
			return
		}
		h.log.Error().Err(err).Msg("failed to load current user")
		respondError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		return
	}
	c.JSON(http.StatusOK, userToProto(user))
}

// UpdateProfile edits the caller's name, bio and picture.
// PUT /api/auth/update-profile
func (h *APIHandlers) UpdateProfile(c *gin.Context) {
	var req proto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update profile request")
		respondError(c, http.StatusBadRequest, core.ErrCodeBadRequest, "invalid request body")
		return
	}

	userID := currentUserID(c)
	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, auth.ProfileUpdate{
		FullName:   req.FullName,
		Bio:        req.Bio,
		ProfilePic: req.ProfilePic,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingDetails):
			respondError(c, http.StatusBadRequest, core.ErrCodeValidation, "full name is required")
		case errors.Is(err, auth.ErrInvalidProfilePic):
			respondError(c, http.StatusBadRequest, core.ErrCodeValidation, err.Error())
		case errors.Is(err, store.ErrNotFound):
			respondError(c, http.StatusUnauthorized, core.ErrCodeUnauthenticated, "user no longer exists")
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to update profile")
			respondError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
		}
		return
	}

	h.log.Info().Str("user_id", user.ID).Msg("profile updated")
	c.JSON(http.StatusOK, userToProto(user))
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, proto.ErrorResponse{Error: msg, Code: code})
}

// respondCoreError maps a service error onto an HTTP status by its core code.
func respondCoreError(c *gin.Context, logger *zerolog.Logger, err error) {
	code := core.CodeOf(err)
	switch code {
	case core.ErrCodeValidation:
		respondError(c, http.StatusBadRequest, code, err.Error())
	case core.ErrCodeNotFound:
		respondError(c, http.StatusNotFound, code, err.Error())
	case core.ErrCodeUnauthenticated:
		respondError(c, http.StatusUnauthorized, code, err.Error())
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		respondError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
	}
}
