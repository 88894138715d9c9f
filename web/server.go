package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/SK-Rookies-Final-Project/Backend/auth"
	"github.com/SK-Rookies-Final-Project/Backend/errors"
	"github.com/SK-Rookies-Final-Project/Backend/stream"
)

// CredentialVerifier checks a user's bus credentials at login time.
// *kafkaclient.Factory implements it.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) error
}

// ServerConfig holds all construction parameters for the push server
type ServerConfig struct {
	Port     int
	Registry *stream.Registry
	Bindings *stream.BindingSet
	Gate     *auth.Gate
	Tokens   auth.TokenIssuer
	Creds    auth.CredentialStore
	Verifier CredentialVerifier
	Logger   *slog.Logger // nil = slog.Default()
}

// Server serves the SSE/WebSocket stream endpoints and the auth endpoints
type Server struct {
	port     int
	registry *stream.Registry
	bindings *stream.BindingSet
	gate     *auth.Gate
	tokens   auth.TokenIssuer
	creds    auth.CredentialStore
	verifier CredentialVerifier
	logger   *slog.Logger

	httpServer *http.Server

	lifecycleMu sync.Mutex
	running     bool
	wg          *sync.WaitGroup
}

// NewServer creates the push server. All collaborators are required.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Registry == nil || cfg.Bindings == nil || cfg.Gate == nil ||
		cfg.Tokens == nil || cfg.Creds == nil || cfg.Verifier == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "NewServer",
			"all collaborators are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:     cfg.Port,
		registry: cfg.Registry,
		bindings: cfg.Bindings,
		gate:     cfg.Gate,
		tokens:   cfg.Tokens,
		creds:    cfg.Creds,
		verifier: cfg.Verifier,
		logger:   logger.With("component", "WebServer"),
	}, nil
}

// Handler builds the route table. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stream/ws/{category}", s.handleWebSocket)
	mux.HandleFunc("GET /api/stream/{category}", s.handleSSE)
	mux.HandleFunc("POST /api/stream/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	return mux
}

// Start begins serving. Returns once the listener goroutine is launched.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running {
		return nil
	}
	if ctx == nil || ctx.Err() != nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Start",
			"context missing or already cancelled")
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg = &sync.WaitGroup{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.running = true
	s.logger.Info("push server started", "port", s.port)
	return nil
}

// Stop shuts the listener down gracefully and joins the serve goroutine with
// a bounded wait.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown did not complete", "error", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("serve goroutine did not exit in time")
	}

	s.httpServer = nil
	s.logger.Info("push server stopped")
	return nil
}

// identity resolves the caller's username from a bearer token, accepting
// either the Authorization header or a token query parameter (EventSource
// cannot set headers).
func (s *Server) identity(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		const prefix = "Bearer "
		if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
			token = h[len(prefix):]
		}
	}
	if token == "" || !s.tokens.Validate(token) {
		return "", errors.ErrUnauthenticated
	}
	return s.tokens.Username(token)
}

// bearerToken extracts the raw token without validating it, for revocation
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
