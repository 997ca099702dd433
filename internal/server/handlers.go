package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/pipeline"
	"github.com/rmateos/videogen-api/internal/sysinfo"
	"github.com/rmateos/videogen-api/internal/task"
	"github.com/rmateos/videogen-api/internal/validate"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	manager   *task.Manager
	status    *model.Status
	kind      model.Kind
	pipe      pipeline.Client
	validator *validator.Validate
	logger    *slog.Logger
	syncMode  bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithSyncMode switches POST /generate to inline generation: the handler
// blocks for the render and returns the binary instead of a task handle.
func WithSyncMode(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.syncMode = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *task.Manager, status *model.Status, kind model.Kind, pipe pipeline.Client, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		manager:   manager,
		status:    status,
		kind:      kind,
		pipe:      pipe,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.status.Loaded() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status})
}

// Info handles GET /info requests.
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	snap := h.status.Snapshot()

	cfg, err := model.Lookup(h.kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "UNKNOWN_MODEL")
		return
	}

	writeJSON(w, http.StatusOK, InfoResponse{
		Model:      string(h.kind),
		IsLoaded:   snap.Loaded,
		Error:      snap.Error,
		Config:     cfg,
		SystemInfo: sysinfo.Collect(r.Context(), h.pipe, h.logger),
	})
}

// Generate handles POST /generate requests. In the default asynchronous
// mode it returns a task handle; in sync mode it blocks and returns the
// rendered file.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	params, err := validate.Params(h.kind, req.Prompt, validate.Raw{
		GuidanceScale:     req.GuidanceScale,
		NumInferenceSteps: req.NumInferenceSteps,
		NumFrames:         req.NumFrames,
		FPS:               req.FPS,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.syncMode {
		h.generateSync(w, r, params)
		return
	}

	created, err := h.manager.Submit(r.Context(), params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, GenerateResponse{
		TaskID:         created.ID,
		Status:         string(created.Status),
		StatusEndpoint: fmt.Sprintf("/tasks/%s/status", created.ID),
		VideoEndpoint:  fmt.Sprintf("/tasks/%s/video", created.ID),
	})
}

// generateSync runs the render inline and streams the file back.
// The temporary output is removed once the response has been written.
func (h *Handlers) generateSync(w http.ResponseWriter, r *http.Request, params model.GenerationParams) {
	path, mediaType, err := h.manager.GenerateSync(r.Context(), params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	defer func() {
		if err := h.manager.RemoveFile(r.Context(), path); err != nil {
			h.logger.Warn("failed to remove sync output",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}()

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", "attachment; filename=generated_video."+extFromMediaType(mediaType))
	http.ServeFile(w, r, path)
}

// TaskStatus handles GET /tasks/{id}/status requests.
func (h *Handlers) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	t, err := h.manager.Status(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := TaskStatusResponse{
		TaskID:    t.ID,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		Error:     t.Error,
		Progress:  t.Progress,
		VideoURL:  t.VideoURL,
	}
	if !t.CompletedAt.IsZero() {
		completedAt := t.CompletedAt
		resp.CompletedAt = &completedAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// TaskVideo handles GET /tasks/{id}/video requests.
func (h *Handlers) TaskVideo(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	path, mediaType, err := h.manager.Output(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Disposition", "attachment; filename=generated_video."+extFromMediaType(mediaType))
	http.ServeFile(w, r, path)
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	if err := h.manager.Delete(r.Context(), taskID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Status: "deleted"})
}

// writeDomainError maps domain errors to HTTP status codes and error codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validate.ErrInvalidPrompt):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_PROMPT")
	case errors.Is(err, validate.ErrInvalidType):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_TYPE")
	case errors.Is(err, validate.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error(), "OUT_OF_RANGE")
	case errors.Is(err, model.ErrUnknownModel), errors.Is(err, model.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_MODEL")
	case errors.Is(err, task.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "MODEL_UNAVAILABLE")
	case errors.Is(err, task.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "QUEUE_FULL")
	case errors.Is(err, task.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
	case errors.Is(err, task.ErrTaskNotReady):
		writeError(w, http.StatusBadRequest, err.Error(), "TASK_NOT_READY")
	case errors.Is(err, task.ErrOutputMissing):
		writeError(w, http.StatusNotFound, err.Error(), "OUTPUT_MISSING")
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// extFromMediaType returns the download filename extension for a media type.
func extFromMediaType(mediaType string) string {
	if mediaType == "image/gif" {
		return "gif"
	}
	return "mp4"
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
