// Package server exposes the capture pipeline over HTTP: captures and
// decisions in, events out as Server-Sent Events, and optionally the service
// side of the remote generation contract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/auth"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/server/middleware"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

// HistoryReader reads stored request records.
type HistoryReader interface {
	ListRequests(ctx context.Context, filters db.RequestFilters) ([]db.RequestRecord, error)
	GetRequest(ctx context.Context, id string) (*db.RequestRecord, error)
}

// Config holds server configuration
type Config struct {
	Addr         string
	OutputDir    string
	Orchestrator *pipeline.Orchestrator
	Broker       *pipeline.Broker
	Service      *GenerationService        // nil disables POST /generate and GET /proceed
	Tokens       middleware.TokenValidator // nil leaves the service endpoints open
	History      HistoryReader             // nil disables GET /history
	Logger       *slog.Logger
	// BaseContext parents background captures; they outlive the HTTP request.
	BaseContext context.Context
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	orchestrator *pipeline.Orchestrator
	broker       *pipeline.Broker
	service      *GenerationService
	tokens       middleware.TokenValidator
	history      HistoryReader
	scanner      *archive.Scanner
	outputDir    string
	validate     *validator.Validate
	logger       *slog.Logger
	baseCtx      context.Context
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("event broker is required")
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		broker:       cfg.Broker,
		service:      cfg.Service,
		tokens:       cfg.Tokens,
		history:      cfg.History,
		scanner:      archive.NewScanner(),
		outputDir:    cfg.OutputDir,
		validate:     validator.New(),
		logger:       cfg.Logger,
		baseCtx:      cfg.BaseContext,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Observer endpoints
	mux.HandleFunc("POST /captures", s.handleCapture)
	mux.HandleFunc("POST /decisions", s.handleDecision)
	mux.HandleFunc("GET /pending", s.handlePending)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /archive", s.handleArchive)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /history/{id}", s.handleHistoryRecord)

	// Generation service endpoints
	if s.service != nil {
		mux.Handle("POST /generate", s.protect(http.HandlerFunc(s.service.handleGenerate)))
		mux.Handle("GET /proceed", s.protect(http.HandlerFunc(s.service.handleProceed)))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withLogging(s.withCORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Event streams stay open; no write timeout
		IdleTimeout: 60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// protect applies bearer auth when a token validator is configured.
func (s *Server) protect(next http.Handler) http.Handler {
	if s.tokens == nil {
		return next
	}
	return middleware.AuthMiddleware(s.tokens)(next)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", "save-filename, content-disposition, company-name, role-title")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug("request started", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
		s.logger.Info("request completed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": len(s.orchestrator.Registry().Pending()),
		"service": s.service != nil,
	})
}

// TokenValidator adapts a token service to the auth middleware.
func TokenValidator(tokens *auth.TokenService) middleware.TokenValidator {
	return &tokenValidator{tokens: tokens}
}

type tokenValidator struct {
	tokens *auth.TokenService
}

func (v *tokenValidator) ValidateToken(tokenString string) (middleware.ClientGetter, error) {
	claims, err := v.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// jsonResponse writes a JSON response
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeAndValidate(w, r, s.validate, dst)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ErrValidation{Field: verrs[0].Field(), Message: verrs[0].Tag()}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}
