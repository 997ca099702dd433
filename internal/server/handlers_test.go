package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/pipeline"
	"github.com/rmateos/videogen-api/internal/storage"
	"github.com/rmateos/videogen-api/internal/task"
)

// fakeModel writes a small file to the requested output path.
type fakeModel struct {
	generateErr error
}

func (f *fakeModel) Load(_ context.Context) error { return nil }

func (f *fakeModel) Generate(_ context.Context, _ model.GenerationParams, outputPath string) (string, error) {
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if err := os.WriteFile(outputPath, []byte("video bytes"), 0600); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (f *fakeModel) Info() model.Info {
	return model.Info{
		Kind:      model.KindCogVideoX2B,
		ModelID:   "THUDM/CogVideoX-2b",
		ModelType: "CogVideoX",
		MediaType: "video/mp4",
		FileExt:   "mp4",
	}
}

type fakePipeline struct{}

func (fakePipeline) Load(_ context.Context, _ pipeline.LoadRequest) error     { return nil }
func (fakePipeline) Render(_ context.Context, _ pipeline.RenderRequest) error { return nil }
func (fakePipeline) Release(_ context.Context) error                          { return nil }
func (fakePipeline) Ping(_ context.Context) (pipeline.DeviceInfo, error) {
	return pipeline.DeviceInfo{Device: "cuda", TotalMemoryGB: 24}, nil
}

type serverFixture struct {
	srv    *httptest.Server
	status *model.Status
}

func newServerFixture(t *testing.T, serverCfg Config, handlerOpts ...HandlerOption) *serverFixture {
	t.Helper()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	status := model.NewStatus(model.KindCogVideoX2B)
	status.MarkLoaded()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	manager := task.NewManager(task.NewMemoryRepository(), &fakeModel{}, status, store, fakePipeline{}, logger)
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	h := NewHandlers(manager, status, model.KindCogVideoX2B, fakePipeline{}, logger, handlerOpts...)
	if serverCfg.AllowedOrigins == nil {
		serverCfg.AllowedOrigins = []string{"*"}
	}

	srv := httptest.NewServer(NewRouter(h, logger, serverCfg))
	t.Cleanup(srv.Close)

	return &serverFixture{srv: srv, status: status}
}

func (f *serverFixture) postGenerate(t *testing.T, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+"/generate", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeJSON[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
}

func TestHealth_Degraded(t *testing.T) {
	f := newServerFixture(t, Config{})
	f.status.MarkFailed(errors.New("device out of memory"))

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := decodeJSON[HealthResponse](t, resp)
	assert.Equal(t, "degraded", health.Status)
}

func TestInfo(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp, err := http.Get(f.srv.URL + "/info")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	info := decodeJSON[InfoResponse](t, resp)
	assert.Equal(t, "cogvideox-2b", info.Model)
	assert.True(t, info.IsLoaded)
	assert.Equal(t, 8, info.Config.MinFrames)
	assert.Equal(t, 49, info.Config.MaxFrames)
	assert.Equal(t, "video/mp4", info.Config.MediaType)
	assert.NotEmpty(t, info.SystemInfo.Device)
}

func TestGenerate_InvalidJSON(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp, err := http.Post(f.srv.URL+"/generate", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "INVALID_JSON", errResp.Code)
}

func TestGenerate_MissingPrompt(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp := f.postGenerate(t, map[string]any{"num_frames": 24})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
}

func TestGenerate_PromptTooLong(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp := f.postGenerate(t, map[string]any{"prompt": strings.Repeat("a", 301)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "INVALID_PROMPT", errResp.Code)
}

func TestGenerate_FramesOutOfRange(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp := f.postGenerate(t, map[string]any{"prompt": "a cat", "num_frames": 500})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "OUT_OF_RANGE", errResp.Code)
}

func TestGenerate_WrongParameterType(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp := f.postGenerate(t, map[string]any{"prompt": "a cat", "num_frames": "twenty"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "INVALID_TYPE", errResp.Code)
}

func TestGenerate_ModelUnavailable(t *testing.T) {
	f := newServerFixture(t, Config{})
	f.status.MarkFailed(errors.New("device out of memory"))

	resp := f.postGenerate(t, map[string]any{"prompt": "a cat"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "MODEL_UNAVAILABLE", errResp.Code)
}

func TestGenerate_FullLifecycle(t *testing.T) {
	f := newServerFixture(t, Config{})

	// Submit.
	resp := f.postGenerate(t, map[string]any{
		"prompt":     "a cat playing piano",
		"num_frames": 24,
		"fps":        24,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	gen := decodeJSON[GenerateResponse](t, resp)
	assert.NotEmpty(t, gen.TaskID)
	assert.Equal(t, "PENDING", gen.Status)
	assert.Equal(t, "/tasks/"+gen.TaskID+"/status", gen.StatusEndpoint)
	assert.Equal(t, "/tasks/"+gen.TaskID+"/video", gen.VideoEndpoint)

	// Poll until the worker finishes.
	var status TaskStatusResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(f.srv.URL + gen.StatusEndpoint)
		if err != nil {
			return false
		}
		status = decodeJSON[TaskStatusResponse](t, resp)
		return status.Status == "COMPLETED" || status.Status == "FAILED"
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, "COMPLETED", status.Status)
	assert.InDelta(t, 1.0, status.Progress, 1e-9)
	require.NotNil(t, status.CompletedAt)

	// Fetch the video.
	videoResp, err := http.Get(f.srv.URL + gen.VideoEndpoint)
	require.NoError(t, err)
	defer func() { _ = videoResp.Body.Close() }()
	assert.Equal(t, http.StatusOK, videoResp.StatusCode)
	assert.Equal(t, "video/mp4", videoResp.Header.Get("Content-Type"))
	assert.Contains(t, videoResp.Header.Get("Content-Disposition"), "generated_video.mp4")

	data, err := io.ReadAll(videoResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	// Delete.
	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/tasks/"+gen.TaskID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	deleted := decodeJSON[DeleteResponse](t, delResp)
	assert.Equal(t, "deleted", deleted.Status)

	// The task is gone afterwards.
	afterResp, err := http.Get(f.srv.URL + gen.StatusEndpoint)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, afterResp.StatusCode)
	errResp := decodeJSON[ErrorResponse](t, afterResp)
	assert.Equal(t, "TASK_NOT_FOUND", errResp.Code)
}

func TestTaskStatus_NotFound(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp, err := http.Get(f.srv.URL + "/tasks/task-missing/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "TASK_NOT_FOUND", errResp.Code)
}

func TestTaskVideo_NotFound(t *testing.T) {
	f := newServerFixture(t, Config{})

	resp, err := http.Get(f.srv.URL + "/tasks/task-missing/video")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteTask_NotFound(t *testing.T) {
	f := newServerFixture(t, Config{})

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/tasks/task-missing", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerate_SyncMode(t *testing.T) {
	f := newServerFixture(t, Config{}, WithSyncMode(true))

	resp := f.postGenerate(t, map[string]any{"prompt": "a cat playing piano"})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))
}

func TestAuth_MissingToken(t *testing.T) {
	f := newServerFixture(t, Config{AuthToken: "secret"})

	resp, err := http.Get(f.srv.URL + "/info")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	errResp := decodeJSON[ErrorResponse](t, resp)
	assert.Equal(t, "UNAUTHORIZED", errResp.Code)
}

func TestAuth_WrongToken(t *testing.T) {
	f := newServerFixture(t, Config{AuthToken: "secret"})

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/info", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ValidToken(t *testing.T) {
	f := newServerFixture(t, Config{AuthToken: "secret"})

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/info", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_HealthBypassesAuth(t *testing.T) {
	f := newServerFixture(t, Config{AuthToken: "secret"})

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS_Preflight(t *testing.T) {
	f := newServerFixture(t, Config{})

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/generate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
