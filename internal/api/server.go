// Package api exposes the sync scheduler over HTTP and receives n8n webhooks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bizpulse/internal/config"
	"bizpulse/internal/metrics"
	"bizpulse/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncService is the part of the sync scheduler served over HTTP.
type SyncService interface {
	CreateSyncConfig(ctx context.Context, cfg *models.SyncConfig) (*models.SyncConfig, error)
	GetSyncConfig(ctx context.Context, tenantID string) (*models.SyncConfig, error)
	UpdateSyncConfig(ctx context.Context, tenantID string, cfg *models.SyncConfig) (*models.SyncConfig, error)
	DeleteSyncConfig(ctx context.Context, tenantID string) error
	GetSyncJobs(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, int, error)
	GetSyncJobByID(ctx context.Context, id string) (*models.SyncJob, error)
	CancelSyncJob(ctx context.Context, id string) (*models.SyncJob, error)
	GetSyncJobStats(ctx context.Context, tenantID string) (*models.SyncJobStats, error)
	GetSyncHealth(ctx context.Context, tenantID string) *models.SyncHealth
	TriggerManualSync(ctx context.Context, tenantID, jobType string) models.ManualSyncResult
}

// WebhookIngestor accepts n8n webhook payloads either immediately or as pending events.
type WebhookIngestor interface {
	ProcessWebhookEvent(ctx context.Context, integrationID string, payload models.WebhookPayload) models.ProcessResult
	Enqueue(ctx context.Context, integrationID string, payload models.WebhookPayload) models.ProcessResult
}

const maxBodyBytes = 1 << 20

// HTTPServer serves the sync API.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      SyncService
	webhooks WebhookIngestor
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
	now      func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, svc SyncService, webhooks WebhookIngestor, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		webhooks: webhooks,
		auth:     NewHTTPAuth(cfg),
		logger:   l,
		now:      time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)

	mux.HandleFunc("POST /api/v1/tenants/{tenantId}/sync-config", srv.handleCreateConfig)
	mux.HandleFunc("GET /api/v1/tenants/{tenantId}/sync-config", srv.handleGetConfig)
	mux.HandleFunc("PUT /api/v1/tenants/{tenantId}/sync-config", srv.handleUpdateConfig)
	mux.HandleFunc("DELETE /api/v1/tenants/{tenantId}/sync-config", srv.handleDeleteConfig)

	mux.HandleFunc("GET /api/v1/tenants/{tenantId}/sync-jobs", srv.handleListJobs)
	mux.HandleFunc("GET /api/v1/tenants/{tenantId}/sync-jobs/export", srv.handleExportJobs)
	mux.HandleFunc("GET /api/v1/sync-jobs/{jobId}", srv.handleGetJob)
	mux.HandleFunc("POST /api/v1/sync-jobs/{jobId}/cancel", srv.handleCancelJob)

	mux.HandleFunc("GET /api/v1/tenants/{tenantId}/sync-stats", srv.handleStats)
	mux.HandleFunc("GET /api/v1/tenants/{tenantId}/sync-health", srv.handleHealth)
	mux.HandleFunc("POST /api/v1/tenants/{tenantId}/sync/{jobType}", srv.handleTriggerSync)

	mux.HandleFunc("POST /webhooks/n8n/{integrationId}", srv.handleN8nWebhook)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return srv
}

// Handler returns the root handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

const requestIDHeader = "X-Request-ID"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		decoder.DisallowUnknownFields()
	}
	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
