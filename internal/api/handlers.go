package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"bizpulse/internal/models"
	"bizpulse/internal/syncer"
	"bizpulse/internal/webhook"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, syncer.ErrConfigNotFound), errors.Is(err, syncer.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrConfigExists), errors.Is(err, syncer.ErrJobNotCancellable),
		errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, syncer.ErrInvalidConfig), errors.Is(err, syncer.ErrUnsupportedJobType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func tenantID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("tenantId"))
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.now().UTC()})
}

func (s *HTTPServer) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.SyncConfig
	if err := decodeJSON(w, r, &cfg, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	cfg.BusinessEntityID = tenantID(r)

	created, err := s.svc.CreateSyncConfig(r.Context(), &cfg)
	if err != nil && created == nil {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		// конфиг сохранён, но часть cron-задач не зарегистрировалась
		s.logger.Warn().Err(err).Str("tenant_id", cfg.BusinessEntityID).Msg("config created with cron errors")
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.GetSyncConfig(r.Context(), tenantID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *HTTPServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.SyncConfig
	if err := decodeJSON(w, r, &cfg, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.svc.UpdateSyncConfig(r.Context(), tenantID(r), &cfg)
	if err != nil && updated == nil {
		s.fail(w, r, err)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID(r)).Msg("config updated with cron errors")
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSyncConfig(r.Context(), tenantID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseJobFilter(r *http.Request) (models.SyncJobFilter, error) {
	q := r.URL.Query()
	filter := models.SyncJobFilter{
		BusinessEntityID: tenantID(r),
		Status:           strings.TrimSpace(q.Get("status")),
		JobType:          strings.TrimSpace(q.Get("jobType")),
	}
	if filter.Status != "" && !slices.Contains(jobStatuses, filter.Status) {
		return filter, errors.New("unknown status: " + filter.Status)
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	filter.Normalize()
	return filter, nil
}

var jobStatuses = []string{
	models.JobStatusPending,
	models.JobStatusRunning,
	models.JobStatusCompleted,
	models.JobStatusFailed,
	models.JobStatusCancelled,
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, total, err := s.svc.GetSyncJobs(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*models.SyncJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.GetSyncJobByID(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.CancelSyncJob(r.Context(), r.PathValue("jobId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetSyncJobStats(r.Context(), tenantID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetSyncHealth(r.Context(), tenantID(r)))
}

func (s *HTTPServer) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	jobType := r.PathValue("jobType")
	res := s.svc.TriggerManualSync(r.Context(), tenantID(r), jobType)

	status := http.StatusOK
	switch {
	case res.Success:
	case !models.IsSyncFamily(jobType):
		status = http.StatusBadRequest
	case res.Message == syncer.ErrSyncInProgress.Error():
		status = http.StatusConflict
	case res.SyncJobID == "":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (s *HTTPServer) handleN8nWebhook(w http.ResponseWriter, r *http.Request) {
	var payload models.WebhookPayload
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ProcessResult{Errors: []string{"invalid JSON body"}})
		return
	}

	integrationID := r.PathValue("integrationId")
	var res models.ProcessResult
	if s.cfg.DeferWebhooks {
		res = s.webhooks.Enqueue(r.Context(), integrationID, payload)
	} else {
		res = s.webhooks.ProcessWebhookEvent(r.Context(), integrationID, payload)
	}

	status := http.StatusOK
	switch {
	case res.Success && s.cfg.DeferWebhooks:
		status = http.StatusAccepted
	case res.Success:
	case slices.Contains(res.Errors, webhook.ErrIntegrationNotFound.Error()):
		status = http.StatusNotFound
	case res.EventID == "" && !slices.Contains(res.Errors, webhook.ErrStoreEvent.Error()):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}
