package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
	"ContentFactory/pkg/logger"
)

const maxListLimit = 500

// Workflows is the slice of the orchestrator the API triggers.
type Workflows interface {
	Platforms() map[string]bool
	DiscoverAndProcess(ctx context.Context, limit int) (domain.BatchResult, error)
	ProcessKnown(ctx context.Context, productID string) (domain.WorkflowResult, error)
}

// Server exposes workflow triggers over HTTP.
type Server struct {
	cfg          config.HTTPConfig
	workflows    Workflows
	products     ports.ProductRepository
	defaultLimit int
	logger       *slog.Logger
}

func New(cfg config.HTTPConfig, workflows Workflows, products ports.ProductRepository, defaultLimit int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if defaultLimit < 1 {
		defaultLimit = 10
	}
	return &Server{cfg: cfg, workflows: workflows, products: products, defaultLimit: defaultLimit, logger: log}
}

func (s *Server) Router() http.Handler {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.JWTSecret != "" {
			r.Use(s.bearerAuth)
		}
		r.Get("/platforms", s.handlePlatforms)
		r.Get("/products", s.handleProducts)
		r.Post("/workflows/discover", s.handleDiscover)
		r.Post("/workflows/products/{productID}", s.handleProcessProduct)
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.New(s.logger, "http"),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	grace := s.cfg.ShutdownTimeout
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	})
}

func (s *Server) handlePlatforms(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"platforms": s.workflows.Platforms()})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if s.products == nil {
		respondError(w, http.StatusServiceUnavailable, "product repository is not configured")
		return
	}

	limit := s.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	products, err := s.products.ListActive(r.Context(), limit)
	if err != nil {
		s.logger.Error("list products", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list products")
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

type discoverRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	req := discoverRequest{Limit: s.defaultLimit}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit < 1 {
		respondError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	batch, err := s.workflows.DiscoverAndProcess(r.Context(), req.Limit)
	switch {
	case errors.Is(err, domain.ErrNoSources):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("discover and process", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if batch.DiscoveryError != "" {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, batch)
}

func (s *Server) handleProcessProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	result, err := s.workflows.ProcessKnown(r.Context(), productID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("process product", "product_id", productID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		_, err := jwt.Parse(strings.TrimSpace(raw), func(*jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// decodeJSON tolerates an empty body so callers can rely on defaults.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
