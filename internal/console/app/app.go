package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/openconsole/authgate/internal/console/http"
	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/internal/console/store"
	"github.com/openconsole/authgate/pkg/backend"
	"github.com/openconsole/authgate/pkg/jwtx"
	"github.com/openconsole/authgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the console auth gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	codec     *jwtx.Codec
	rdb       redis.UniversalClient // nil when running on the in-memory store
	codeStore store.CodeStore

	// Services
	sessionManager      *service.SessionManager
	signInService       *service.SignInService
	handoffService      *service.HandoffService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.validateConfig(); err != nil {
		return nil, err
	}

	app.codec = jwtx.NewCodec(cfg.SigningSecret)

	if err := app.initCodeStore(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

func (app *Application) validateConfig() error {
	var missing []string
	if app.cfg.SigningSecret == "" {
		missing = append(missing, "AUTHGATE_SIGNING_SECRET")
	}
	if app.cfg.BackendURL == "" {
		missing = append(missing, "AUTHGATE_BACKEND_URL")
	}
	if app.cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if app.cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(app.cfg.TrustedRedirects) == 0 {
		app.logger.Warn("AUTHGATE_TRUSTED_REDIRECTS is empty, all hand-off destinations will be rejected")
	}
	return nil
}

// initCodeStore selects Redis when configured, otherwise the in-memory store.
func (app *Application) initCodeStore() error {
	if app.cfg.RedisAddr == "" {
		app.codeStore = store.NewMemoryCodeStore(store.WithMemoryTTL(app.cfg.CodeTTL))
		app.logger.Info("using in-memory authorization code store")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	app.rdb = rdb
	app.codeStore = store.NewRedisCodeStore(rdb, "", store.WithRedisTTL(app.cfg.CodeTTL))
	app.logger.Info("using redis authorization code store", "addr", app.cfg.RedisAddr)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	client := backend.NewClient(app.cfg.BackendURL, app.codec, app.cfg.ServiceSubject)
	app.sessionManager = service.NewSessionManager(client, app.codec)

	callbackURL := strings.TrimRight(app.cfg.PublicURL, "/") + "/v1/auth/callback"
	provider := service.NewGoogleProvider(
		app.cfg.GoogleClientID,
		app.cfg.GoogleClientSecret,
		callbackURL,
	)
	app.signInService = service.NewSignInService(provider)

	app.handoffService = service.NewHandoffService(
		app.codeStore,
		app.codec,
		app.cfg.TrustedRedirects,
		service.WithTokenTTLs(app.cfg.AccessTTL, app.cfg.RefreshTTL),
	)

	// Only the in-memory store needs an in-process sweep
	var purger interface{ PurgeExpired() int }
	if mem, ok := app.codeStore.(*store.MemoryCodeStore); ok {
		purger = mem
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.sessionManager,
		purger,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger, app.rdb)

	router.Sessions = app.sessionManager
	router.SignIn = app.signInService
	router.Handoff = app.handoffService
	router.CookieSecure = strings.HasPrefix(app.cfg.PublicURL, "https://")
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("authgate starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authgate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			return err
		}
	}

	app.logger.Info("authgate stopped")
	return nil
}
