package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat/internal/assets"
	"github.com/vovakirdan/duochat/internal/auth"
	"github.com/vovakirdan/duochat/internal/config"
	"github.com/vovakirdan/duochat/internal/core"
	"github.com/vovakirdan/duochat/internal/service/messages"
	"github.com/vovakirdan/duochat/internal/store"
	"github.com/vovakirdan/duochat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/duochat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var uploader assets.Uploader
	if cfg.Assets.Bucket != "" {
		s3Uploader, err := assets.NewS3Uploader(ctx, assets.S3Config{
			Bucket:        cfg.Assets.Bucket,
			Region:        cfg.Assets.Region,
			Endpoint:      cfg.Assets.Endpoint,
			PublicBaseURL: cfg.Assets.PublicBaseURL,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init asset uploader: %w", err)
		}
		uploader = s3Uploader
		logger.Info().Str("bucket", cfg.Assets.Bucket).Msg("image upload enabled")
	} else {
		logger.Info().Msg("image upload disabled, no assets bucket configured")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
	authService := auth.NewService(st, jwtConfig, uploader)

	registry := core.NewRegistry(logger)
	dispatcher := core.NewDispatcher(registry, logger)
	msgService := messages.New(st, dispatcher, uploader, logger)

	server := transporthttp.NewServer(registry, authService, msgService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Int("online_users", len(a.registry.Snapshot())).Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
