package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/werkenmetai/exact-mcp/internal/auth/http"
	"github.com/werkenmetai/exact-mcp/internal/auth/service"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/internal/auth/store/drivers/sqlite"
	"github.com/werkenmetai/exact-mcp/internal/exact"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the auth server, the upstream client stack and the HTTP
// surface together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	clientService       *service.ClientService
	authorizeService    *service.AuthorizeService
	tokenService        *service.TokenService
	apiKeyService       *service.APIKeyService
	housekeepingService *service.HousekeepingService

	tokenManager *exact.TokenManager
	exactClient  *exact.Client

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "exact-mcp",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initServices()
	app.initExact()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("server starting", "addr", app.cfg.ListenAddr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, background workers and database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("server stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (app *Application) initServices() {
	app.clientService = &service.ClientService{Store: app.db}
	app.authorizeService = &service.AuthorizeService{Store: app.db, CodeTTL: app.cfg.CodeTTL}
	app.tokenService = &service.TokenService{
		Store:      app.db,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}
	app.apiKeyService = &service.APIKeyService{Store: app.db}
	app.housekeepingService = service.NewHousekeepingService(app.db, app.logger, app.cfg.HousekeepingInterval)
}

func (app *Application) initExact() {
	app.tokenManager = &exact.TokenManager{
		Store: app.db,
		Config: exact.OAuthConfig{
			ClientID:     app.cfg.ExactClientID,
			ClientSecret: app.cfg.ExactClientSecret,
			TokenURL:     app.cfg.ExactTokenURL,
		},
		Secret: app.cfg.MasterSecret,
	}

	app.exactClient = &exact.Client{
		BaseURL: app.cfg.ExactBaseURL,
		Tokens:  app.tokenManager,
		Limiter: exact.NewLimiter(exact.DefaultWindowLimit, exact.DefaultWindow),
		Breaker: exact.NewBreaker(exact.DefaultFailureThreshold, exact.DefaultOpenTimeout),
	}
}

// ExactClient exposes the upstream API client for protocol handlers layered
// on top of this package.
func (app *Application) ExactClient() *exact.Client { return app.exactClient }

// Authenticators returns the two inbound credential resolvers.
func (app *Application) Authenticators() (*service.TokenService, *service.APIKeyService) {
	return app.tokenService, app.apiKeyService
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(app.cfg.IssuerURL, app.cfg.LoginURL, app.db, app.logger)
	app.router.ClientService = app.clientService
	app.router.AuthorizeService = app.authorizeService
	app.router.TokenService = app.tokenService
	app.router.APIKeyService = app.apiKeyService
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              app.cfg.ListenAddr,
		Handler:           app.router.Mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
