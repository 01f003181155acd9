// Package http implements the REST API of the course platform: accounts,
// catalog, progress, enrollments and the payment callback.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ndmx/upscale/internal/application/command"
	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/interface/http/handlers"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	// EnableCORS - enable CORS headers.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	// PublicBaseURL is used to build the payment callback URL.
	PublicBaseURL string

	// PaymentRedirectURL, when set, makes the payment callback redirect the
	// browser there with reference and status query parameters.
	PaymentRedirectURL string

	// Version is reported in response metadata.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 25 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   64 << 10,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		PublicBaseURL:  "http://localhost:8080",
		Version:        "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// CallbackURL returns the absolute URL the payment gateway redirects to.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/api/v1/payments/callback"
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands
	Auth           *command.AuthHandler
	Enrollment     *command.EnrollmentHandler
	CompleteModule *command.CompleteModuleHandler

	// Queries
	Courses     *query.CoursesHandler
	Dashboard   *query.DashboardHandler
	Enrollments *query.EnrollmentsHandler
	Security    *query.SecurityEventsHandler

	// Perimeter guards every request except health probes. Nil disables it.
	Perimeter *security.Perimeter

	Sessions      *handlers.Sessions
	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger
	validate   *validator.Validate

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:   config,
		deps:     deps,
		router:   http.NewServeMux(),
		logger:   deps.Logger,
		validate: newValidator(),
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Public
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("GET /api/v1/courses", s.handleListCourses)
	s.router.HandleFunc("GET /api/v1/courses/{courseID}", s.handleGetCourse)
	s.router.HandleFunc("GET /api/v1/payments/callback", s.handlePaymentCallback)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Session required
	// ─────────────────────────────────────────────────────────────────────────
	authed := handlers.Chain(
		handlers.RequireSession(s.deps.Sessions, s.writeError),
		handlers.NoCacheMiddleware,
	)
	s.router.Handle("GET /api/v1/me", authed(http.HandlerFunc(s.handleMe)))
	s.router.Handle("GET /api/v1/me/security-events", authed(http.HandlerFunc(s.handleSecurityEvents)))
	s.router.Handle("GET /api/v1/dashboard", authed(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("GET /api/v1/courses/{courseID}/modules/{position}", authed(http.HandlerFunc(s.handleGetModule)))
	s.router.Handle("POST /api/v1/courses/{courseID}/modules/{position}/complete", authed(http.HandlerFunc(s.handleCompleteModule)))
	s.router.Handle("POST /api/v1/enrollments", authed(http.HandlerFunc(s.handleInitiateEnrollment)))
	s.router.Handle("GET /api/v1/enrollments", authed(http.HandlerFunc(s.handleListEnrollments)))
	s.router.Handle("GET /api/v1/enrollments/{intentID}", authed(http.HandlerFunc(s.handleGetEnrollment)))
	s.router.Handle("POST /api/v1/enrollments/{intentID}/installments", authed(http.HandlerFunc(s.handlePayInstallment)))

	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "Resource not found")
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router; the first middleware is outermost.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		handlers.SecurityHeadersMiddleware,
	}
	// Preflights answered by CORS must pass the perimeter first.
	if s.deps.Perimeter != nil {
		chain = append(chain, s.perimeterMiddleware)
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	if s.config.MaxBodyBytes > 0 {
		chain = append(chain, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	}
	if s.config.RequestTimeout > 0 {
		chain = append(chain, handlers.TimeoutMiddleware(s.config.RequestTimeout))
	}
	return handlers.Chain(chain...)(h)
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.FromContext(r.Context()).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.Origin(s.clientIP(r)),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// perimeterMiddleware blocks probing paths and rate-limits each origin.
// Health probes bypass it. A rate store failure lets the request through.
func (s *Server) perimeterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready", "/live":
			next.ServeHTTP(w, r)
			return
		}

		origin := s.clientIP(r)
		decision, err := s.deps.Perimeter.Check(r.Context(), origin, r.URL.EscapedPath())
		if decision.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprint(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(decision.Remaining))
		}
		if err != nil {
			if decision.Allowed {
				logger.FromContext(r.Context()).Warn("perimeter degraded", logger.Origin(origin), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			logger.FromContext(r.Context()).Warn("request blocked", logger.Origin(origin), logger.String("path", r.URL.Path), logger.Err(err))
			s.writeError(w, r, withRetryAfter(err, decision.RetryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// clientIP extracts the client address. Proxy headers are used only when
// configured as trusted.
func (s *Server) clientIP(r *http.Request) string {
	if s.config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
