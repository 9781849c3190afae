// Package http exposes the attendance hub over REST: roster loads and their
// live snapshots, attendance reads and writes, and the generated exports.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gjc-vemulawada/attendance-hub/internal/application/command"
	"github.com/gjc-vemulawada/attendance-hub/internal/application/query"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/external/backend"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/messaging"
	"github.com/gjc-vemulawada/attendance-hub/internal/infrastructure/metrics"
	"github.com/gjc-vemulawada/attendance-hub/internal/interface/http/handlers"
	"github.com/gjc-vemulawada/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerSecond is requests per second per IP (0 = disabled).
	RateLimitPerSecond int

	// APIKeyHeader and APIKeyHashes guard the operator routes. No hashes
	// means no guard.
	APIKeyHeader string
	APIKeyHashes []string

	// StreamHeartbeat is the interval of SSE keep-alive comments.
	StreamHeartbeat time.Duration

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       60 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerSecond: 50,
		APIKeyHeader:       handlers.DefaultAPIKeyHeader,
		StreamHeartbeat:    15 * time.Second,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RosterService is the part of the fetch orchestrator the API drives.
type RosterService interface {
	Load(ctx context.Context, students []student.Student, ay attendance.AcademicYear) (uint64, <-chan attendance.RosterSnapshot, error)
	Current() attendance.RosterSnapshot
	Subscribe() (*messaging.Subscription, error)
	Unsubscribe(sub *messaging.Subscription)
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Roster   RosterService
	Students student.Directory

	// Command handlers
	SetWorkingDays   *command.SetWorkingDaysHandler
	UpdateAttendance *command.UpdateStudentAttendanceHandler
	Archiver         *command.Archiver

	// Query handlers
	ClassReport       *query.ClassReportHandler
	LowAttendance     *query.LowAttendanceHandler
	ProgressReport    *query.ProgressReportHandler
	RosterSpreadsheet *query.RosterSpreadsheetHandler
	Exports           *query.ExportsHandler

	Metrics       *metrics.Metrics
	HealthChecker handlers.HealthChecker
	Logger        *slog.Logger
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
	logger     *slog.Logger
	apiKeys    *handlers.APIKeyAuth

	rateLimiter *rateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config:  config,
		deps:    deps,
		router:  http.NewServeMux(),
		logger:  deps.Logger,
		apiKeys: handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeyHashes),
	}

	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if config.RateLimitPerSecond > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerSecond, time.Second)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	if s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	operator := handlers.Chain(
		s.apiKeys.Middleware(func(w http.ResponseWriter, r *http.Request, code, message string) {
			writeJSONError(w, r, http.StatusUnauthorized, code, message)
		}),
	)
	body := handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes)
	download := handlers.MiddlewareFunc(handlers.NoCacheMiddleware)

	// ─────────────────────────────────────────────────────────────────────────
	// Roster
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/rosters/load", operator(body(http.HandlerFunc(s.handleLoadRoster))))
	s.router.HandleFunc("GET /api/v1/rosters/current", s.handleCurrentRoster)
	s.router.Handle("GET /api/v1/rosters/stream", download(http.HandlerFunc(s.handleRosterStream)))
	s.router.HandleFunc("GET /api/v1/rosters/current/low", s.handleRosterLowAttendance)

	// ─────────────────────────────────────────────────────────────────────────
	// Attendance
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/attendance/summary", body(http.HandlerFunc(s.handleAnnualSummary)))
	s.router.HandleFunc("GET /api/v1/attendance/class/{year}/{group}/{ay}/{month}", s.handleClassReport)
	s.router.HandleFunc("GET /api/v1/attendance/low/{ay}/{month}", s.handleLowAttendance)
	s.router.Handle("PUT /api/v1/attendance/working-days", operator(body(http.HandlerFunc(s.handleSetWorkingDays))))
	s.router.Handle("PUT /api/v1/attendance/student/{id}/{ay}/{month}", operator(body(http.HandlerFunc(s.handleUpdateAttendance))))

	// ─────────────────────────────────────────────────────────────────────────
	// Exports
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/exports/roster.xlsx", download(http.HandlerFunc(s.handleRosterSpreadsheet)))
	s.router.Handle("GET /api/v1/exports/progress/{id}", download(http.HandlerFunc(s.handleProgressReport)))
	s.router.HandleFunc("GET /api/v1/exports", s.handleListExports)
	s.router.Handle("GET /api/v1/exports/{id}", download(http.HandlerFunc(s.handleGetExport)))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware. The first
// wrapper applied runs closest to the router.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := handler

	// Metrics must see the request the router matched, so it wraps the
	// router directly.
	if s.deps.Metrics != nil {
		h = s.metricsMiddleware(h)
	}

	h = s.tokenMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	h = s.requestIDMiddleware(h)
	h = handlers.SecurityHeadersMiddleware(h)

	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}

	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}

	return h
}

// requestIDMiddleware adds a unique request ID and a request-scoped logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, logger.WithRequestID(s.logger, requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenMiddleware forwards the caller's bearer token to the backend client.
func (s *Server) tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearerToken(r); token != "" {
			r = r.WithContext(backend.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		if rw.statusCode >= 500 {
			level = slog.LevelError
		}
		logger.FromContext(r.Context()).Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			slog.String("ip", getClientIP(r)),
			slog.String("user_agent", r.UserAgent()),
		)
	})
}

// metricsMiddleware records request counts and latency by route pattern.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveHTTP(route, rw.statusCode, time.Since(start))
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				logger.FromContext(r.Context()).Error("panic recovered",
					slog.Any("error", err),
					slog.String("stack", string(debug.Stack())),
					slog.String("path", r.URL.Path),
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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Export-ID, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware implements per-IP rate limiting.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
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
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))

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

// Shutdown gracefully shuts down the server. Open event streams end when
// their request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
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
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSONWithMeta(w, r, status, data, nil)
}

// writeJSONWithMeta writes a JSON response with custom metadata.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

// writeDomainError maps the shared error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	apiErr := &APIError{Code: code, Message: publicMessage(err, status)}

	log := logger.FromContext(r.Context())
	if status >= 500 {
		log.Error("request failed", logger.Err(err), slog.Int("status", status))
	} else {
		log.Debug("request rejected", logger.Err(err), slog.Int("status", status))
	}

	writeAPIError(w, r, status, apiErr)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrNoStudentIdentity):
		return http.StatusUnprocessableEntity, "student_identity_missing"
	case shared.IsExport(err):
		return http.StatusInternalServerError, "export_failed"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusServiceUnavailable, "backend_rate_limited"
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend_timeout"
	case shared.IsExternalService(err):
		return http.StatusBadGateway, "backend_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// publicMessage returns the error text for client errors and backend failures,
// which carry the backend's detail, and a generic text for internal ones.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError && !shared.IsExport(err) {
		return "An unexpected error occurred"
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Err == nil {
		return de.Message
	}
	var be *backend.APIError
	if errors.As(err, &be) {
		return be.Detail
	}
	return err.Error()
}

// writeFile sends a generated document as an attachment.
func writeFile(w http.ResponseWriter, contentType, fileName string, content []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// getQueryParamInt parses an integer query parameter. A present but
// malformed value is an error.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, shared.NewValidationError("http", "Query", key+" must be an integer")
	}
	return n, nil
}

// getQueryParamFloat parses a float query parameter. A present but malformed
// value is an error, not a silent default.
func getQueryParamFloat(r *http.Request, key string, defaultValue float64) (float64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, shared.NewValidationError("http", "Query", key+" must be a finite number")
	}
	return f, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

type rateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow records a request for key unless key is over its limit within the
// sliding window.
func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	valid := pruneBefore(rl.requests[key], now.Add(-rl.window))

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func (rl *rateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		windowStart := time.Now().Add(-rl.window)
		for key, requests := range rl.requests {
			if valid := pruneBefore(requests, windowStart); len(valid) == 0 {
				delete(rl.requests, key)
			} else {
				rl.requests[key] = valid
			}
		}
		rl.mu.Unlock()
	}
}

func pruneBefore(times []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(start) {
		i++
	}
	return times[i:]
}
