package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"callsight/internal/api"
	"callsight/internal/audioprobe"
	"callsight/internal/config"
	"callsight/internal/history"
	"callsight/internal/logging"
	"callsight/internal/observe"
	"callsight/internal/pipeline"
	"callsight/internal/stage"
)

const (
	defaultKeepAlive = 15 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Engine runs sessions and reports adapter health.
type Engine interface {
	Run(ctx context.Context, session pipeline.Session, emitter pipeline.Emitter) error
	Health(ctx context.Context) []stage.Health
}

// Options wires a Server.
type Options struct {
	Config *config.Config
	Engine Engine
	// History persists finished sessions and serves /api/history. Optional.
	History *history.Store
	// Prober rejects uploads without an audio stream. Optional.
	Prober *audioprobe.Prober
	// Metrics records HTTP request durations. Optional.
	Metrics *observe.Metrics
	// MetricsHandler serves /metrics. Optional.
	MetricsHandler http.Handler
	Logger         *slog.Logger
	// LockFilePath is reported by /api/status.
	LockFilePath string
	// KeepAlive is the SSE comment interval while a session runs.
	KeepAlive time.Duration
}

// Server is the callsightd HTTP API.
type Server struct {
	cfg        *config.Config
	engine     Engine
	history    *history.Store
	historySvc *api.HistoryService
	prober     *audioprobe.Prober
	logger     *slog.Logger
	lockPath   string
	keepAlive  time.Duration
	handler    http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New builds the API handler tree.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	s := &Server{
		cfg:       opts.Config,
		engine:    opts.Engine,
		history:   opts.History,
		prober:    opts.Prober,
		logger:    logging.NewComponentLogger(opts.Logger, "api-server"),
		lockPath:  opts.LockFilePath,
		keepAlive: opts.KeepAlive,
	}
	if s.keepAlive <= 0 {
		s.keepAlive = defaultKeepAlive
	}
	if opts.History != nil {
		s.historySvc = api.NewHistoryService(opts.History)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(api.PathProcessCall, s.handleProcessCall)
	mux.HandleFunc("/process_call/", s.handleProcessCall)
	mux.HandleFunc(api.PathStatus, s.handleStatus)
	mux.HandleFunc(api.PathHistory, s.handleHistory)
	mux.HandleFunc(api.PathHistory+"/{id}", s.handleHistoryItem)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	var handler http.Handler = mux
	handler = observe.Middleware(opts.Metrics)(handler)
	handler = authMiddleware(strings.TrimSpace(opts.Config.Server.APIToken), handler)
	handler = requestIDMiddleware(handler)
	s.handler = handler
	return s, nil
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves until ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.String(logging.FieldEventType, "api_server_failed"),
				logging.Error(err),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_server_started"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete",
			logging.String(logging.FieldEventType, "api_server_shutdown_timeout"),
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight sessions were cut off"),
		)
		_ = server.Close()
	}
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
