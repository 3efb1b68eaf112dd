// Package server exposes the agent over HTTP: a streaming chat endpoint
// plus a liveness check.
package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danshapiro/finsight/internal/agent"
	"github.com/danshapiro/finsight/internal/capability"
	"github.com/danshapiro/finsight/internal/ghostfolio"
	"github.com/danshapiro/finsight/internal/session"
)

const buildVersion = "0.2.0"

// ClientFactory builds a portfolio client bound to the caller's bearer
// token. Injected so tests can substitute a mock backend.
type ClientFactory func(bearer string) (capability.Client, error)

// Config holds server configuration.
type Config struct {
	Addr          string
	GhostfolioURL string
	Timeout       time.Duration
	ChunkSize     int
	CORSOrigins   []string
}

type Server struct {
	config        Config
	registry      *capability.Registry
	sessions      session.Store
	classifier    agent.Classifier
	narrator      agent.Narrator
	clientFactory ClientFactory
	chunkSize     int
	version       string
	baseCtx       context.Context
	cancel        context.CancelFunc
	httpSrv       *http.Server
	logger        zerolog.Logger
}

type ServerOption func(*Server)

// WithClientFactory overrides how per-request portfolio clients are built.
func WithClientFactory(f ClientFactory) ServerOption {
	return func(s *Server) { s.clientFactory = f }
}

// WithSessionStore substitutes the thread snapshot store.
func WithSessionStore(store session.Store) ServerOption {
	return func(s *Server) { s.sessions = store }
}

// WithClassifier injects a natural-language classifier.
func WithClassifier(c agent.Classifier) ServerOption {
	return func(s *Server) { s.classifier = c }
}

// WithNarrator injects a natural-language narrator.
func WithNarrator(n agent.Narrator) ServerOption {
	return func(s *Server) { s.narrator = n }
}

func New(cfg Config, logger zerolog.Logger, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	s := &Server{
		config:    cfg,
		registry:  capability.NewDefaultRegistry(),
		sessions:  session.NewMemoryStore(),
		chunkSize: cfg.ChunkSize,
		version:   buildVersion,
		baseCtx:   ctx,
		cancel:    cancel,
		logger:    logger,
	}
	s.clientFactory = func(bearer string) (capability.Client, error) {
		return ghostfolio.NewClient(cfg.GhostfolioURL,
			ghostfolio.WithBearerToken(bearer),
			ghostfolio.WithTimeout(cfg.Timeout),
		)
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/agent/chat", s.handleChat)

	s.httpSrv = &http.Server{
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Handler exposes the configured HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		s.logger.Info().Str("signal", sig.String()).Msg("shutting down")
		s.Shutdown()
	}()

	s.logger.Info().Str("addr", s.config.Addr).Msg("listening")
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server, giving in-flight streams time to drain.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)
	s.cancel()
}

// corsMiddleware answers preflight requests and marks allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, origin := range s.config.CORSOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			allowed[origin] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowed[strings.TrimRight(origin, "/")] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
