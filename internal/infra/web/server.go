package web

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

type ServerConfig struct {
	Addr       string
	AuthToken  string
	RateLimit  int
	RateWindow time.Duration
}

// Server hosts the page, its websocket and the form fallbacks for the
// recording controls.
type Server struct {
	cfg         ServerConfig
	hub         *Hub
	view        *View
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu       sync.Mutex
	controls Controls
	server   *http.Server
	running  bool
}

func NewServer(cfg ServerConfig, hub *Hub, view *View, logger *slog.Logger) *Server {
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	s := &Server{
		cfg:         cfg,
		hub:         hub,
		view:        view,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}

	s.mux.HandleFunc("GET /{$}", s.auth(view.ServePage))
	s.mux.HandleFunc("GET /ws", s.auth(hub.ServeWS))
	s.mux.HandleFunc("GET /clips/{id}", s.auth(view.ServeClip))
	s.mux.HandleFunc("POST /start", s.auth(s.rateLimiter.Middleware(s.command(Controls.StartRecording))))
	s.mux.HandleFunc("POST /stop", s.auth(s.rateLimiter.Middleware(s.command(Controls.StopRecording))))
	s.mux.HandleFunc("POST /submit", s.auth(s.rateLimiter.Middleware(s.command(Controls.Submit))))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// Bind connects the page commands to the assistant.
func (s *Server) Bind(c Controls) {
	s.mu.Lock()
	s.controls = c
	s.mu.Unlock()
	s.hub.setControls(c)
}

// WithMetrics exposes h at /metrics behind the same auth as the page.
func (s *Server) WithMetrics(h http.Handler) *Server {
	s.mux.HandleFunc("GET /metrics", s.auth(h.ServeHTTP))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	s.server = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("web view listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AuthToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) command(action func(Controls)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		controls := s.controls
		s.mu.Unlock()

		if controls == nil {
			http.Error(w, "assistant not ready", http.StatusServiceUnavailable)
			return
		}
		action(controls)

		location := "/"
		if token := r.URL.Query().Get("token"); token != "" {
			location += "?token=" + url.QueryEscape(token)
		}
		http.Redirect(w, r, location, http.StatusSeeOther)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ready := s.controls != nil
	s.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"status":"%s","pages":%d,"recording":"%s"}`, status, s.hub.Clients(), s.view.State().Recording)
}
