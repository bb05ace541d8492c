package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"liveclass/internal/api"
	"liveclass/internal/auth"
	"liveclass/internal/config"
	"liveclass/internal/courses"
	"liveclass/internal/database"
	"liveclass/internal/eligibility"
	"liveclass/internal/hub"
	"liveclass/internal/rooms"
	"liveclass/internal/router"
	"liveclass/internal/session"
	"liveclass/internal/websocket"
	pkgdatabase "liveclass/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	directory      *courses.Directory
	gate           *eligibility.Gate
	registry       *rooms.Registry
	lifecycleHub   *hub.Hub
	messageRouter  *router.Router
	apiServer      *api.Server
	httpServer     *http.Server
	logger         zerolog.Logger

	// background work started by Start and stopped by Stop
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	listener net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Sessions → Courses → Gate → Rooms → Hub → Router → Gateway → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.With().Str("module", "app").Logger()

	// STEP 1: Initialize database manager (foundation layer)
	if dir := filepath.Dir(cfg.Database.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbManager, err := database.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Apply database migrations to ensure schema is up to date
	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), pkgdatabase.EmbeddedMigrations())
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrationManager.ValidateSchema(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}
	logger.Info().Str("path", cfg.Database.DatabasePath).Msg("database migrations applied")

	// STEP 3: Initialize session registry with database dependency
	sessionManager := session.NewManager(dbManager)
	active, err := sessionManager.LoadActiveSessions(context.Background())
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}
	logger.Info().Int("active_sessions", active).Msg("session registry ready")

	// STEP 4: Course collaborator (ownership and enrollment facts)
	directory := courses.NewDirectory(courses.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = directory.Ping(pingCtx)
	cancelPing()
	if err != nil {
		directory.Close()
		dbManager.Close()
		return nil, fmt.Errorf("failed to reach course directory at %s: %w", cfg.Redis.Addr, err)
	}

	// STEP 5: Eligibility gate
	gate := eligibility.NewGate(sessionManager, directory)

	// STEP 6: Room registry, the only shared in-memory state
	registry := rooms.NewRegistry()

	// STEP 7: Lifecycle hub for idle connections
	lifecycleHub := hub.NewHub(cfg.Signaling.JoinGracePeriod)

	// STEP 8: Message router
	messageRouter := router.NewRouter(registry, lifecycleHub, router.Config{
		SignalRateLimit:  cfg.Signaling.RateLimit,
		SignalRateWindow: cfg.Signaling.RateWindow,
	})

	// STEP 9: Signaling gateway transport
	wsHandler := websocket.NewHandler(registry, messageRouter, lifecycleHub, websocket.Config{
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		PingInterval:   cfg.WebSocket.PingInterval,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.BufferSize,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// STEP 10: API server with all business dependencies
	apiServer := api.NewServer(gate, registry, auth.NewVerifier(cfg.Auth.Secret), api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ICEServers:     cfg.ICE.WebRTCServers(),
		HealthChecks: map[string]api.HealthCheck{
			"database": dbManager.HealthCheck,
			"redis":    directory.Ping,
		},
		WebSocket: http.HandlerFunc(wsHandler.HandleWebSocket),
	})

	// STEP 11: HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		directory:      directory,
		gate:           gate,
		registry:       registry,
		lifecycleHub:   lifecycleHub,
		messageRouter:  messageRouter,
		apiServer:      apiServer,
		httpServer:     httpServer,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Start begins application execution
// Hub starts first so connections are tracked, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// STEP 1: Start lifecycle hub
	if err := app.lifecycleHub.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start lifecycle hub: %w", err)
	}

	// STEP 2: Rate limiter housekeeping
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.messageRouter.CleanupLoop(app.ctx, app.config.Signaling.CleanupInterval)
	}()

	// STEP 3: Start HTTP server (accepts connections)
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.cancel()
		app.lifecycleHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	app.logger.Info().Str("addr", listener.Addr().String()).Msg("liveclass started")
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → background loops → Hub → collaborators → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down")

	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Stop background loops
	app.cancel()
	app.wg.Wait()

	// STEP 3: Stop lifecycle hub
	if err := app.lifecycleHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	// STEP 4: Close collaborators and database connections
	if err := app.directory.Close(); err != nil {
		errs = append(errs, fmt.Errorf("course directory close: %w", err))
	}
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}

	app.logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the full HTTP surface, for tests and embedding
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Courses returns the course directory so operators and tests can seed it
func (app *Application) Courses() *courses.Directory {
	return app.directory
}
