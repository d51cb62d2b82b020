// ABOUTME: Gateway orchestrator that wires registry, publisher, ingress, and endpoints
// ABOUTME: Owns the HTTP server lifecycle and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/taskpulse/internal/auth"
	"github.com/2389/taskpulse/internal/config"
	"github.com/2389/taskpulse/internal/event"
	"github.com/2389/taskpulse/internal/ingress"
	"github.com/2389/taskpulse/internal/registry"
	"github.com/2389/taskpulse/internal/store"
	"github.com/2389/taskpulse/internal/ws"
)

// Gateway composes the notification components. Everything is constructed
// explicitly here and shared by reference; no component holds global state.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *registry.Registry
	publisher  *event.Publisher
	verifier   *auth.JWTVerifier
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	reg := registry.New(logger.With("component", "registry"))
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	broker := event.NewHTTPBroker(cfg.Broker.BaseURL, cfg.Broker.PubSub, cfg.Broker.Topic)
	publisher := event.NewPublisher(broker, cfg.Broker.PublishTimeout, logger.With("component", "publisher"))

	ing := ingress.New(reg, st, cfg.Broker.PubSub, cfg.Broker.Topic, logger.With("component", "ingress"))
	endpoint := ws.NewEndpoint(verifier, reg, cfg.Server.WriteTimeout, logger.With("component", "ws"))

	g := &Gateway{
		config:    cfg,
		store:     st,
		registry:  reg,
		publisher: publisher,
		verifier:  verifier,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", endpoint)
	mux.HandleFunc("POST /events/task", ing.HandleTaskEvent)
	mux.HandleFunc("GET /dapr/subscribe", ing.HandleSubscribe)
	mux.HandleFunc("GET /healthz", g.handleHealth)

	authed := auth.Middleware(verifier)
	mux.Handle("POST /api/events", authed(http.HandlerFunc(g.handleEmitEvent)))
	mux.Handle("GET /api/connections", authed(http.HandlerFunc(g.handleConnections)))
	mux.Handle("GET /api/events/log", authed(http.HandlerFunc(g.handleEventLog)))

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler returns the gateway's HTTP handler. Used by tests to serve the
// full route set through httptest.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully:
// stop accepting requests, close every live session (their loops unregister
// on the way out), flush in-flight publishes, release the store.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("http shutdown", "error", err)
	}

	// WebSocket connections are hijacked and outlive Shutdown; close them
	// so their read loops exit.
	g.registry.CloseAll()
	g.publisher.Close()

	if err := g.store.Close(); err != nil {
		g.logger.Warn("closing store", "error", err)
	}

	g.logger.Info("shutdown complete")
	return nil
}
