// Package pipeline provides an HTTP client for the inference sidecar that
// owns pipeline loading, rendering, and device memory.
package pipeline

// LoadRequest represents the request body for the sidecar's /pipelines/load endpoint.
type LoadRequest struct {
	// PipelineID identifies the pipeline to load (e.g. "THUDM/CogVideoX-2b").
	PipelineID string `json:"pipeline_id"`
	// Device is the target device (e.g. "xpu", "cuda").
	Device string `json:"device,omitempty"`
	// Dtype is the weight precision (e.g. "bfloat16").
	Dtype string `json:"dtype,omitempty"`
}

// RenderRequest represents the request body for the sidecar's /pipelines/render endpoint.
// The sidecar writes the encoded result to OutputPath on shared storage.
type RenderRequest struct {
	PipelineID        string  `json:"pipeline_id"`
	Prompt            string  `json:"prompt"`
	NumFrames         int     `json:"num_frames"`
	FPS               int     `json:"fps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              int64   `json:"seed,omitempty"`
	OutputPath        string  `json:"output_path"`
	// OutputFormat selects the container written by the sidecar ("mp4" or "gif").
	OutputFormat string `json:"output_format"`
}

// renderResponse represents the response from the /pipelines/render endpoint.
type renderResponse struct {
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// loadResponse represents the response from the /pipelines/load endpoint.
type loadResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DeviceInfo describes the accelerator the sidecar is driving.
type DeviceInfo struct {
	Device        string  `json:"device"`
	TotalMemoryGB float64 `json:"total_memory_gb"`
	UsedMemoryGB  float64 `json:"used_memory_gb"`
}

// pingResponse represents the response from the /healthz endpoint.
type pingResponse struct {
	Status string     `json:"status"`
	Device DeviceInfo `json:"device"`
}
