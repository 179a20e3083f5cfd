package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/directchat/internal/auth"
	"github.com/vovakirdan/directchat/internal/backend/local"
	"github.com/vovakirdan/directchat/internal/backend/matrix"
	"github.com/vovakirdan/directchat/internal/config"
	"github.com/vovakirdan/directchat/internal/handle"
	"github.com/vovakirdan/directchat/internal/store"
	"github.com/vovakirdan/directchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/directchat/internal/transport/http"
)

// App wires together backend and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	handles := handle.NewMapper(cfg.Realm)
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	var (
		authenticator transporthttp.Authenticator
		authService   *auth.Service
	)
	switch cfg.Backend {
	case config.BackendLocal:
		st, err := OpenStore(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.store = st
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

		jwtConfig := &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.JWTTTL,
		}
		authService = auth.NewService(st, handles, jwtConfig)

		backendLog := logger.With().Str("backend", config.BackendLocal).Logger()
		authenticator = local.NewAuthenticator(authService, local.NewBackend(st, &backendLog))

	case config.BackendMatrix:
		backendLog := logger.With().Str("backend", config.BackendMatrix).Logger()
		authenticator = matrix.NewBackend(cfg.HomeserverURL, &backendLog)
		logger.Info().Str("homeserver", cfg.HomeserverURL).Msg("using matrix homeserver")
	}

	a.server = transporthttp.NewServer(authenticator, authService, handles, cfg, logger)
	return a, nil
}

// OpenStore opens the sqlite database and applies the schema.
func OpenStore(ctx context.Context, path string) (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
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

		a.log.Info().Msg("shutting down http server")
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
