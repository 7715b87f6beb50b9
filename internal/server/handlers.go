package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc                 *tasks.Service
	store               Pinger
	storeName           string
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Store, OpenAPISpec.
type HandlersDeps struct {
	Service             *tasks.Service
	Store               Pinger
	StoreName           string
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		svc:                 d.Service,
		store:               d.Store,
		storeName:           d.StoreName,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleEnqueue handles PUT /tasks.
func (h *Handlers) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, key := range []string{"task_type", "query", "requested_by_user"} {
		if !q.Has(key) {
			writeMissingParam(w, r, key)
			return
		}
	}
	req := model.EnqueueRequest{
		TaskType:        q.Get("task_type"),
		Query:           q.Get("query"),
		RequestedByUser: q.Get("requested_by_user"),
		Notes:           optionalParam(r, "notes"),
	}

	task, err := h.svc.Enqueue(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "Task enqueued", model.EnqueueResult{
		ID:                task.ID,
		ParameterChecksum: task.ParameterChecksum,
		Revision:          task.Revision,
	})
}

// HandleClaim handles POST /tasks/claim.
func (h *Handlers) HandleClaim(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, key := range []string{"task_type", "agent_id"} {
		if !q.Has(key) {
			writeMissingParam(w, r, key)
			return
		}
	}

	task, err := h.svc.Claim(r.Context(), q.Get("task_type"), q.Get("agent_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "", task)
}

// HandleComplete handles PUT /tasks/complete.
func (h *Handlers) HandleComplete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := requiredInt64(w, r, "task_id")
	if !ok {
		return
	}
	raw := r.URL.Query().Get("success")
	if !r.URL.Query().Has("success") {
		writeMissingParam(w, r, "success")
		return
	}
	success, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral,
			fmt.Sprintf("invalid success: %q is not a boolean", raw))
		return
	}

	_, err = h.svc.Complete(r.Context(), model.CompleteRequest{
		TaskID:                     taskID,
		Success:                    success,
		ObjectStorageKeyForResults: optionalParam(r, "object_storage_key_for_results"),
		Message:                    optionalParam(r, "message"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "Task status updated", nil)
}

// HandleUpdateMetrics handles PUT /tasks/metrics/{task_id}. The body is the
// metrics object itself or an object wrapping it under job_progress_metrics.
func (h *Handlers) HandleUpdateMetrics(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("task_id")
	taskID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral,
			fmt.Sprintf("invalid task_id: %q", raw))
		return
	}

	var body map[string]any
	if err := decodeJSON(w, r, &body, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if body == nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral, "metrics must be a JSON object")
		return
	}
	metrics := model.Metrics(body)
	if inner, ok := body["job_progress_metrics"].(map[string]any); ok && len(body) == 1 {
		metrics = inner
	}

	if err := h.svc.UpdateProgress(r.Context(), taskID, metrics); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeOK(w, "Job progress metrics updated successfully", nil)
}

// HandleListTasks handles GET /tasks.
func (h *Handlers) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	out, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleTaskStatus handles GET /tasks/status.
func (h *Handlers) HandleTaskStatus(w http.ResponseWriter, r *http.Request) {
	f, ok := listFilter(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Status(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleJobStatus handles GET /JobStatus.
func (h *Handlers) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.FindByQuery(r.Context(), q.Get("task_type"), q.Get("query"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDatasetDiscovery handles GET /DatasetDiscovery.
func (h *Handlers) HandleDatasetDiscovery(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Discover(r.Context(), r.URL.Query().Get("revision"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleEcho handles GET /echo.
func (h *Handlers) HandleEcho(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*string{"message": optionalParam(r, "message")})
}

// HandleReadiness handles GET /health/readiness.
func (h *Handlers) HandleReadiness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("health: store ping failed", "error", err)
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, model.HealthResponse{
		Status:  status,
		Version: h.version,
		Store:   h.storeName,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI document.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

func listFilter(w http.ResponseWriter, r *http.Request) (tasks.ListFilter, bool) {
	f := tasks.ListFilter{
		TaskType:   optionalParam(r, "task_type"),
		TaskStatus: optionalParam(r, "task_status"),
	}
	if raw := r.URL.Query().Get("task_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral, "task_id must be an integer")
			return f, false
		}
		f.TaskID = &id
	}
	return f, true
}

// optionalParam returns nil when key is absent from the query string.
func optionalParam(r *http.Request, key string) *string {
	q := r.URL.Query()
	if !q.Has(key) {
		return nil
	}
	v := q.Get(key)
	return &v
}

func requiredInt64(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	q := r.URL.Query()
	if !q.Has(key) {
		writeMissingParam(w, r, key)
		return 0, false
	}
	n, err := strconv.ParseInt(q.Get(key), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral,
			fmt.Sprintf("%s must be an integer", key))
		return 0, false
	}
	return n, true
}

func writeMissingParam(w http.ResponseWriter, r *http.Request, key string) {
	writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral,
		fmt.Sprintf("missing required parameter: %s", key))
}

// handleDecodeError maps body decoding failures to 413 or 422.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeGeneral,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeGeneral, "invalid JSON body: "+err.Error())
}
