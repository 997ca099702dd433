// Package server provides the HTTP server for the video generation API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/sysinfo"
)

// GenerateRequest is the HTTP request body for submitting a generation.
// The optional numeric fields deliberately stay untyped: clients send them
// as JSON numbers or strings and the validation layer coerces them.
type GenerateRequest struct {
	// Prompt is the text the video is generated from.
	Prompt string `json:"prompt" validate:"required"`
	// NumFrames is the number of frames to generate.
	NumFrames any `json:"num_frames,omitempty"`
	// FPS is the playback frame rate.
	FPS any `json:"fps,omitempty"`
	// GuidanceScale controls prompt adherence strength.
	GuidanceScale any `json:"guidance_scale,omitempty"`
	// NumInferenceSteps is the number of denoising steps.
	NumInferenceSteps any `json:"num_inference_steps,omitempty"`
}

// GenerateResponse is the HTTP response after an asynchronous submission.
type GenerateResponse struct {
	// TaskID is the unique identifier for the created task.
	TaskID string `json:"task_id"`
	// Status is the initial task status.
	Status string `json:"status"`
	// StatusEndpoint is the polling URL for this task.
	StatusEndpoint string `json:"status_endpoint"`
	// VideoEndpoint is the output download URL for this task.
	VideoEndpoint string `json:"video_endpoint"`
}

// TaskStatusResponse is the HTTP response for a task status poll.
type TaskStatusResponse struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    float64    `json:"progress"`
	// VideoURL is the S3 URL of the output when bucket delivery is configured.
	VideoURL string `json:"video_url,omitempty"`
}

// DeleteResponse is the HTTP response after deleting a task.
type DeleteResponse struct {
	Status string `json:"status"`
}

// InfoResponse is the HTTP response for the info endpoint.
type InfoResponse struct {
	Model      string       `json:"model"`
	IsLoaded   bool         `json:"is_loaded"`
	Error      string       `json:"error,omitempty"`
	Config     model.Config `json:"config"`
	SystemInfo sysinfo.Info `json:"system_info"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "healthy" when the model is loaded, "degraded" otherwise.
	Status string `json:"status"`
}
