// ABOUTME: Server wires the registry, router, store, workflow engine, and delegation client
// ABOUTME: behind one HTTP listener serving /ws, health endpoints, and the build endpoint.

package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/forge-hub/internal/artifact"
	"github.com/2389/forge-hub/internal/config"
	"github.com/2389/forge-hub/internal/dedupe"
	"github.com/2389/forge-hub/internal/delegate"
	"github.com/2389/forge-hub/internal/protocol"
	"github.com/2389/forge-hub/internal/store"
	"github.com/2389/forge-hub/internal/task"
)

// Server is the forge-hub control server.
type Server struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *Registry
	router     *Router
	store      *store.SQLiteStore
	engine     *task.Engine
	routerDele *delegate.RouterDelegator
	delegator  task.Delegator
	artifacts  *artifact.Cache
	seen       *dedupe.Cache
	httpServer *http.Server
}

// uiSink routes engine output to the configured UI agent. Undeliverable
// envelopes drop; a disconnected UI picks the conversation back up from the
// durable task record when it reconnects.
type uiSink struct {
	router *Router
	ui     string
}

func (s *uiSink) Send(env *protocol.Envelope) {
	env.Target = s.ui
	_ = s.router.RouteDirected(s.ui, env)
}

// New creates a Server from config.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	registry := NewRegistry(logger)
	router := NewRouter(registry, logger)

	routerDele := delegate.NewRouterDelegator(router, cfg.Agents.Builder, cfg.Agents.DelegateTimeout, logger)
	var delegator task.Delegator = routerDele
	if cfg.Agents.DelegateMode == "http" {
		delegator = delegate.NewHTTPDelegator(cfg.Agents.DelegateURL, cfg.Agents.DelegateTimeout)
	}

	artifacts := artifact.NewCache()
	engine := task.NewEngine(task.Config{
		Store:            st,
		Delegator:        delegator,
		Sink:             &uiSink{router: router, ui: cfg.Agents.UI},
		Artifacts:        artifacts,
		Logger:           logger,
		ProgressInterval: cfg.Agents.ProgressInterval,
	})

	s := &Server{
		config:     cfg,
		logger:     logger.With("component", "hub"),
		registry:   registry,
		router:     router,
		store:      st,
		engine:     engine,
		routerDele: routerDele,
		delegator:  delegator,
		artifacts:  artifacts,
		seen:       dedupe.New(5*time.Minute, 100_000),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	mux.HandleFunc("/api/build", s.handleBuild)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Run starts the server and blocks until the context is canceled or the
// listener fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("hub listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown gracefully stops the server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down hub")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	s.seen.Close()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one agent is connected.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	n := s.registry.Count()
	if n == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", n)
}
