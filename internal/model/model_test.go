package model

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

// fakePipeline records sidecar calls for assertions.
type fakePipeline struct {
	loadReqs   []pipeline.LoadRequest
	renderReqs []pipeline.RenderRequest
	renderErr  error
	released   int
}

func (f *fakePipeline) Load(_ context.Context, req pipeline.LoadRequest) error {
	f.loadReqs = append(f.loadReqs, req)
	return nil
}

func (f *fakePipeline) Render(_ context.Context, req pipeline.RenderRequest) error {
	f.renderReqs = append(f.renderReqs, req)
	return f.renderErr
}

func (f *fakePipeline) Release(_ context.Context) error {
	f.released++
	return nil
}

func (f *fakePipeline) Ping(_ context.Context) (pipeline.DeviceInfo, error) {
	return pipeline.DeviceInfo{Device: "xpu"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("cogvideo5b"), &fakePipeline{}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNew_AllRegisteredKinds(t *testing.T) {
	for _, kind := range Kinds() {
		m, err := New(kind, &fakePipeline{}, testLogger())
		require.NoError(t, err, "kind %s", kind)
		assert.Equal(t, kind, m.Info().Kind)
	}
}

func TestCogVideoX_LoadRunsWarmup(t *testing.T) {
	pipe := &fakePipeline{}
	m, err := New(KindCogVideoX2B, pipe, testLogger())
	require.NoError(t, err)

	require.NoError(t, m.Load(context.Background()))

	require.Len(t, pipe.loadReqs, 1)
	assert.Equal(t, "THUDM/CogVideoX-2b", pipe.loadReqs[0].PipelineID)
	assert.Equal(t, "bfloat16", pipe.loadReqs[0].Dtype)

	// Warmup is a throwaway render with minimal parameters.
	require.Len(t, pipe.renderReqs, 1)
	warmup := pipe.renderReqs[0]
	assert.Equal(t, "test", warmup.Prompt)
	assert.Equal(t, 1, warmup.NumInferenceSteps)
	assert.Equal(t, 8, warmup.NumFrames)
}

func TestCogVideoX_Generate(t *testing.T) {
	pipe := &fakePipeline{}
	m, err := New(KindCogVideoX5B, pipe, testLogger())
	require.NoError(t, err)

	params := GenerationParams{
		Prompt:            "a calm lake at sunset",
		NumFrames:         24,
		FPS:               24,
		GuidanceScale:     6.0,
		NumInferenceSteps: 50,
	}

	path, err := m.Generate(context.Background(), params, "/tmp/out.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.mp4", path)

	require.Len(t, pipe.renderReqs, 1)
	req := pipe.renderReqs[0]
	assert.Equal(t, "THUDM/CogVideoX-5b", req.PipelineID)
	assert.Equal(t, "a calm lake at sunset", req.Prompt)
	assert.Equal(t, 24, req.NumFrames)
	assert.Equal(t, 50, req.NumInferenceSteps)
	assert.Equal(t, "mp4", req.OutputFormat)
}

func TestCogVideoX_GenerateError(t *testing.T) {
	pipe := &fakePipeline{renderErr: errors.New("device out of memory")}
	m, err := New(KindCogVideoX2B, pipe, testLogger())
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), GenerationParams{Prompt: "x"}, "/tmp/out.mp4")
	require.Error(t, err)
}

func TestAnimateDiff_StepClamping(t *testing.T) {
	tests := []struct {
		requested int
		used      int
	}{
		{1, 1},
		{2, 2},
		{3, 2}, // tie between 2 and 4 resolves down
		{4, 4},
		{5, 4},
		{6, 4}, // tie between 4 and 8 resolves down
		{7, 8},
		{8, 8},
		{20, 8},
		{50, 8},
	}

	for _, tt := range tests {
		pipe := &fakePipeline{}
		m, err := New(KindAnimateDiff, pipe, testLogger())
		require.NoError(t, err)

		_, err = m.Generate(context.Background(), GenerationParams{
			Prompt:            "a dancing robot",
			NumFrames:         8,
			FPS:               8,
			GuidanceScale:     1.0,
			NumInferenceSteps: tt.requested,
		}, "/tmp/out.gif")
		require.NoError(t, err)

		require.Len(t, pipe.renderReqs, 1)
		assert.Equal(t, tt.used, pipe.renderReqs[0].NumInferenceSteps,
			"requested %d", tt.requested)
		assert.Equal(t, "gif", pipe.renderReqs[0].OutputFormat)
	}
}

func TestAnimateDiff_Info(t *testing.T) {
	m, err := New(KindAnimateDiff, &fakePipeline{}, testLogger())
	require.NoError(t, err)

	info := m.Info()
	assert.Equal(t, KindAnimateDiff, info.Kind)
	assert.Equal(t, "AnimateDiff", info.ModelType)
	assert.Equal(t, "image/gif", info.MediaType)
	assert.Equal(t, "gif", info.FileExt)
}

func TestStatus(t *testing.T) {
	s := NewStatus(KindCogVideoX2B)
	assert.False(t, s.Loaded())

	s.MarkLoaded()
	assert.True(t, s.Loaded())
	snap := s.Snapshot()
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Error)
	assert.Equal(t, KindCogVideoX2B, snap.Kind)

	s.MarkFailed(errors.New("device out of memory"))
	assert.False(t, s.Loaded())
	snap = s.Snapshot()
	assert.Equal(t, "device out of memory", snap.Error)

	// A successful reload clears the failure.
	s.MarkLoaded()
	assert.Empty(t, s.Snapshot().Error)
}
