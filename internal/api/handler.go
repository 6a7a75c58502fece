// Package api implements the HTTP surface of spec §6: health, webhook
// ingestion, job listing/retry/delete, stats, and live config.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/armtc/transcoder/internal/catalog"
	"github.com/armtc/transcoder/internal/config"
	"github.com/armtc/transcoder/internal/hwprobe"
	"github.com/armtc/transcoder/internal/ingest"
	"github.com/armtc/transcoder/internal/logger"
	"github.com/armtc/transcoder/internal/worker"
)

const maxWebhookBodyBytes = 10 * 1024 // spec §4.10, §6: reject payloads over 10 KiB

// Handler wires the HTTP surface to the Catalog, live Config, Worker
// Loop, and Ingestor.
type Handler struct {
	cat      *catalog.Catalog
	ingestor *ingest.Ingestor
	loop     *worker.Loop
	caps     hwprobe.Capabilities

	cfgMu sync.RWMutex
	cfg   *config.Config
}

// NewHandler constructs a Handler.
func NewHandler(cat *catalog.Catalog, cfg *config.Config, loop *worker.Loop, ingestor *ingest.Ingestor, caps hwprobe.Capabilities) *Handler {
	return &Handler{cat: cat, cfg: cfg, loop: loop, ingestor: ingestor, caps: caps}
}

func (h *Handler) config() *config.Config {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.cfg
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "reason": message})
}

// Health handles GET /health (spec §6).
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cfg := h.config()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    "ok",
		"worker_running":            h.loop.Running(),
		"queue_size":                h.loop.QueueSize(),
		"gpu_support":               gpuSupportSummary(h.caps),
		"config":                    healthConfigSubset(cfg),
		"require_api_auth":          cfg.RequireAPIAuth,
		"webhook_secret_configured": cfg.WebhookSecret != "",
	})
}

func gpuSupportSummary(caps hwprobe.Capabilities) map[string]bool {
	return map[string]bool{
		"nvenc":       caps.HandbrakeNVENC || caps.FFmpegHEVCNVENC,
		"qsv":         caps.FFmpegHEVCQSV,
		"vaapi":       caps.FFmpegHEVCVAAPI,
		"amf":         caps.FFmpegHEVCAMF,
		"device_node": caps.HWDevicePresent,
	}
}

func healthConfigSubset(cfg *config.Config) map[string]string {
	return map[string]string{
		"video_encoder":     cfg.VideoEncoder,
		"video_quality":     strconv.Itoa(cfg.VideoQuality),
		"max_concurrent":    strconv.Itoa(cfg.MaxConcurrent),
		"stabilize_seconds": strconv.Itoa(cfg.StabilizeSeconds),
		"log_level":         cfg.LogLevel,
	}
}

// Webhook handles POST /webhook/arm (spec §4.10, §6).
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	cfg := h.config()
	if cfg.WebhookSecret != "" {
		if r.Header.Get("X-Webhook-Secret") != cfg.WebhookSecret {
			writeError(w, http.StatusForbidden, "invalid webhook secret")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	var payload ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if strings.Contains(err.Error(), "too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds 10 KiB")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, ok, err := h.ingestor.Ingest(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.loop.Enqueue(result.JobID)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "queued",
		"job_id":     result.JobID,
		"path":       result.Title,
		"queue_size": h.loop.QueueSize(),
	})
}

// ListJobs handles GET /jobs?status=&limit=&offset= (spec §6, §8 boundary
// clamping).
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var statusFilter *catalog.Status
	if v := q.Get("status"); v != "" {
		s := catalog.Status(v)
		statusFilter = &s
	}

	jobs, err := h.cat.ListJobs(statusFilter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	counts, err := h.cat.CountJobsByStatus()
	total := 0
	if err == nil {
		for _, n := range counts {
			total += n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// RetryJob handles POST /jobs/{id}/retry (admin; spec §6, §7).
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.cat.GetJob(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != catalog.StatusFailed {
		writeError(w, http.StatusBadRequest, "job is not failed")
		return
	}

	cfg := h.config()
	if job.RetryCount >= cfg.MaxRetryCount {
		writeError(w, http.StatusBadRequest, "retry limit reached")
		return
	}

	pending := catalog.StatusPending
	newRetryCount := job.RetryCount + 1
	zero := 0.0
	if err := h.cat.UpdateJob(id, catalog.JobPatch{
		Status:     &pending,
		RetryCount: &newRetryCount,
		ClearError: true,
		Progress:   &zero,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retry job")
		return
	}

	h.loop.Enqueue(id)
	writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "retry_count": newRetryCount})
}

// DeleteJob handles DELETE /jobs/{id} (admin; spec §6, §7).
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := h.cat.DeleteJob(id); err != nil {
		switch {
		case errors.Is(err, catalog.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, catalog.ErrJobNotDeletable):
			writeError(w, http.StatusBadRequest, "cannot delete a job that is processing")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete job")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Stats handles GET /stats (spec §6).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.cat.CountJobsByStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"counts":         counts,
		"worker_running": h.loop.Running(),
		"current_job":    h.loop.CurrentJob(),
		"queue_size":     h.loop.QueueSize(),
	})
}

// GetConfig handles GET /config (spec §6, SPEC_FULL supplement #1): the
// live values alongside the schema each PATCH /config key is validated
// against.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"values": h.config().AsMap(),
		"schema": config.Schema,
	})
}

// PatchConfig handles PATCH /config (admin; spec §6, §8). Every key in
// the request is validated before any is applied, so a single bad key
// cannot leave the live config partially updated.
func (h *Handler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]string
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	normalized := make(map[string]string, len(patch))
	for key, value := range patch {
		v, err := config.Validate(key, value)
		if err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				writeError(w, http.StatusBadRequest, err.Error())
			} else {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			}
			return
		}
		normalized[key] = v
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	for key, value := range normalized {
		if err := h.cfg.Set(key, value); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if key == "log_level" {
			logger.SetLevel(value)
		}
		if err := h.cat.UpsertOverride(key, value); err != nil {
			logger.Error("api: failed to persist config override", "key", key, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, h.cfg.AsMap())
}

// correlationID stamps every request with an X-Request-Id header so
// requests can be traced across log lines.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}
