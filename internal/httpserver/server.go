package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"accounts/backend/internal/config"
	"accounts/backend/internal/metrics"
	accountusecase "accounts/backend/internal/usecase/account"

	"github.com/go-chi/cors"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer     *http.Server
	router         *http.ServeMux
	accountService *accountusecase.Service
	limiter        *ipRateLimiter
	addr           string
}

// NewServer constructs a new Server with configured dependencies.
func NewServer(cfg config.Config, accountService *accountusecase.Service) *Server {
	mux := http.NewServeMux()
	addr := cfg.HTTPPort
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
	handler := withLogging(corsHandler(mux))

	srv := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
		},
		router:         mux,
		accountService: accountService,
		limiter:        newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		addr:           addr,
	}
	srv.registerRoutes()
	return srv
}

// handle registers h under pattern with request metrics labelled by the pattern.
func (s *Server) handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, metrics.Middleware(pattern, h))
}

// Start bootstraps the HTTP server on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
