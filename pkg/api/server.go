// Package api serves read-only JSON views of the catalog.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"server-catalog/pkg/catalog"
	"server-catalog/pkg/metrics"
	"server-catalog/pkg/query"
	"server-catalog/pkg/selector"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Error codes
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

type contextKey string

const contextKeyRequestID contextKey = "requestID"

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Retryable bool   `json:"retryable"`
}

type Server struct {
	engine   *query.Engine
	selector *selector.Selector
	env      selector.Environment
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewServer wires the handlers. env holds the selection defaults that
// query parameters of /select may override; m may be nil.
func NewServer(engine *query.Engine, sel *selector.Selector, env selector.Environment, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		engine:   engine,
		selector: sel,
		env:      env,
		metrics:  m,
		logger:   logger,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.instrumentMiddleware)

	r.HandleFunc("/groups", s.handleGroups).Methods(http.MethodGet)
	r.HandleFunc("/servers", s.handleServers).Methods(http.MethodGet)
	r.HandleFunc("/servers/{id}", s.handleServer).Methods(http.MethodGet)
	r.HandleFunc("/select", s.handleSelect).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, requestID)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, strconv.Itoa(rec.status), elapsed)
		}
		s.logger.Debug("Request served",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, retryable bool) {
	requestID, _ := r.Context().Value(contextKeyRequestID).(string)
	respondJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Retryable: retryable,
	})
}

// writeQueryError maps storage failures to 503 and anything else to 500.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var storageErr *catalog.StorageError
	if errors.As(err, &storageErr) {
		s.logger.Error("Catalog unavailable", "error", err)
		s.writeError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "catalog data unavailable", true)
		return
	}
	s.logger.Error("Query failed", "error", err)
	s.writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "internal error", false)
}
