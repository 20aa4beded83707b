// Package app assembles and runs the service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/achievements"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/api"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/broadcast"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/config"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/registry"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/scoring"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/session"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/store"
	"github.com/JosephJonathanFernandes/redis-leaderboard/internal/ws"
)

// Application owns every component and coordinates startup and shutdown.
type Application struct {
	config      *config.Config
	store       *store.Client
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	sessions    *session.Manager
	scores      *scoring.Service
	apiServer   *api.Server
	httpServer  *http.Server
	logger      *zap.SugaredLogger
}

// NewApplication initializes components in dependency order:
// store → achievements → registry → broadcaster → sessions → scoring →
// transport.
func NewApplication(cfg *config.Config, logger *zap.SugaredLogger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storeClient, err := store.NewClient(store.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to score store: %w", err)
	}

	defs := achievements.Defaults()
	if cfg.Achievements.Path != "" {
		defs, err = achievements.LoadFile(cfg.Achievements.Path)
		if err != nil {
			storeClient.Close()
			return nil, fmt.Errorf("failed to load achievement definitions: %w", err)
		}
		logger.Infow("Loaded achievement definitions", "path", cfg.Achievements.Path, "count", len(defs))
	}
	evaluator := achievements.NewEvaluator(defs, storeClient, logger)

	reg := registry.NewRegistry(logger)
	broadcaster := broadcast.NewBroadcaster(reg, cfg.Leaderboard.PublishQueueSize, logger)

	sessions := session.NewManager(reg, storeClient, broadcaster,
		cfg.Leaderboard.SnapshotSize, cfg.Leaderboard.NeighborWindow, logger)
	// Broadcast-detected dead connections go through the same close
	// sequence as transport closes, so PlayerOffline fires exactly once.
	broadcaster.OnEvict(sessions.HandleDisconnect)

	detector := scoring.NewDetector(storeClient, evaluator, logger)
	scores := scoring.NewService(detector, storeClient, broadcaster, cfg.Leaderboard.SnapshotSize, logger)

	wsHandler := ws.NewHandler(sessions, scores, ws.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
		RateLimit:    cfg.WebSocket.RateLimit,
	}, logger)

	apiServer := api.NewServer(scores, storeClient, reg, storeClient, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws/{leaderboard}/{player}", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		store:       storeClient,
		registry:    reg,
		broadcaster: broadcaster,
		sessions:    sessions,
		scores:      scores,
		apiServer:   apiServer,
		httpServer:  httpServer,
		logger:      logger,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup
// failed.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Infow("Starting leaderboard service", "addr", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.broadcaster.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("Leaderboard service started")
		return nil
	case <-ctx.Done():
		app.broadcaster.Stop()
		return ctx.Err()
	}
}

// Stop shuts the service down in reverse dependency order: HTTP listener,
// then broadcast workers, then the store client.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("Shutting down leaderboard service")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warnw("HTTP server shutdown error", "error", err)
	}

	app.broadcaster.Stop()

	if err := app.store.Close(); err != nil {
		app.logger.Warnw("Store shutdown error", "error", err)
	}

	app.logger.Info("Shutdown complete")
	return nil
}

// Addr returns the listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
