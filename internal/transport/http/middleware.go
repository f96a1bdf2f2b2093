package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/metrics"
	"github.com/vovakirdan/duochat/internal/proto"
)

// ContextKeyUserID is the context key for storing the authenticated user id.
const ContextKeyUserID = "user_id"

// AuthMiddleware creates a middleware that validates JWT tokens.
// The token is read from "Authorization: Bearer <token>" or a bare "token" header.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			logger.Debug().Msg("missing or malformed authorization header")
			abortUnauthenticated(c, "not authorized, no token provided")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := c.GetHeader("token"); token != "" {
		return token, true
	}
	return "", false
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, proto.ErrorResponse{
		Error: msg,
		Code:  core.ErrCodeUnauthenticated,
	})
}

// currentUserID returns the id set by AuthMiddleware.
func currentUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// LoggerMiddleware creates a middleware that logs HTTP requests and records their duration.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("http request")
	}
}
