package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"teachat/internal/api"
	"teachat/internal/auth"
	"teachat/internal/chat"
	"teachat/internal/config"
	"teachat/internal/database"
	"teachat/internal/hub"
	"teachat/internal/metrics"
	"teachat/internal/presence"
	"teachat/internal/room"
	"teachat/internal/session"
	"teachat/internal/store"
	"teachat/internal/websocket"
	pkgdatabase "teachat/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	dbManager  *database.Manager
	store      *store.Store
	registry   *session.Registry
	presence   *presence.Coordinator
	messageHub *hub.Hub
	gateway    *websocket.Handler
	httpServer *http.Server
	listener   net.Listener
}

// DatabaseConfig converts the database section for the persistence layer
func DatabaseConfig(cfg *config.Config) *pkgdatabase.Config {
	return &pkgdatabase.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}
}

// Migrate applies pending schema migrations and returns the resulting version
func Migrate(cfg *config.Config) (uint, error) {
	manager := pkgdatabase.NewMigrationManager(DatabaseConfig(cfg))
	if err := manager.ApplyMigrations(); err != nil {
		return 0, err
	}
	version, dirty, err := manager.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Migrations → Database → Store → Broadcaster → Registry → Presence → Chat → Hub → Gateway → HTTP
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Bring the schema up to date before any pool is opened
	version, err := Migrate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info("database migrations applied", slog.Uint64("version", uint64(version)))

	// STEP 2: Initialize database manager (foundation layer)
	dbManager, err := database.NewManager(DatabaseConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(dbManager.DB()).Validate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	authenticator, err := auth.New(cfg.Auth.Mode, cfg.Auth.Secret)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}

	// STEP 3: Metrics on a private registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	// STEP 4: Realtime core
	chatStore := store.New(dbManager, cfg.Database.Timeout, recorder)
	broadcaster := room.NewBroadcaster(logger, recorder)
	sessions := session.NewRegistry(broadcaster)
	coordinator := presence.NewCoordinator(sessions, broadcaster, chatStore, logger, recorder)

	chatHandler := chat.NewHandler(sessions, broadcaster, chatStore, chat.Config{
		RequireJoin:      cfg.Chat.RequireJoin,
		MaxContentLength: cfg.Chat.MaxContentLength,
		SanitizeHTML:     cfg.Chat.SanitizeHTML,
		RateLimit:        cfg.Chat.RateLimit,
		RateBurst:        cfg.Chat.RateBurst,
	}, logger, recorder)
	messageHub := hub.NewHub(chatHandler, logger, recorder)

	// STEP 5: Gateway and HTTP surface
	gateway := websocket.NewHandler(messageHub, sessions, coordinator, chatHandler, authenticator, websocket.Config{
		PingInterval:     cfg.WebSocket.PingInterval,
		ReadTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		HandshakeTimeout: websocket.DefaultConfig().HandshakeTimeout,
		BufferSize:       cfg.WebSocket.BufferSize,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
	}, logger, recorder)

	apiServer := api.NewServer(api.Deps{
		WebSocket: http.HandlerFunc(gateway.HandleWebSocket),
		Metrics:   metrics.Handler(registry),
		Registry:  sessions,
		Presence:  coordinator,
		Users:     chatStore,
		Database:  dbManager,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		dbManager:  dbManager,
		store:      chatStore,
		registry:   sessions,
		presence:   coordinator,
		messageHub: messageHub,
		gateway:    gateway,
		httpServer: httpServer,
	}, nil
}

// Start clears stale presence, starts the hub, and binds the listener.
// Serve must be called afterwards to accept requests.
func (app *Application) Start(ctx context.Context) error {
	// FUNCTIONAL DISCOVERY: No connection survives a restart, so every
	// persisted online flag is stale at this point
	if err := app.presence.ResetAll(ctx); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}

	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.messageHub.Stop(ctx)
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	app.logger.Info("teachat listening", slog.String("addr", listener.Addr().String()))
	return nil
}

// Serve accepts HTTP requests until Stop is called
func (app *Application) Serve() error {
	if app.listener == nil {
		return errors.New("application not started")
	}
	if err := app.httpServer.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the application.
// Order: HTTP listener → live WebSockets → Hub → Database, so every
// disconnect can still persist its presence change
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down teachat")
	var errs []error

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Close hijacked WebSocket connections and wait for their disconnect paths
	if err := app.gateway.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
	}

	// STEP 3: Stop message processing
	if err := app.messageHub.Stop(ctx); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	// STEP 4: Close database connections
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.logger.Info("teachat shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listener address, or the configured one before Start
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
