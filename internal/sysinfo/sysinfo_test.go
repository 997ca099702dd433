package sysinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

type stubPipeline struct {
	info pipeline.DeviceInfo
	err  error
}

func (s stubPipeline) Load(_ context.Context, _ pipeline.LoadRequest) error     { return nil }
func (s stubPipeline) Render(_ context.Context, _ pipeline.RenderRequest) error { return nil }
func (s stubPipeline) Release(_ context.Context) error                          { return nil }
func (s stubPipeline) Ping(_ context.Context) (pipeline.DeviceInfo, error)      { return s.info, s.err }

func TestCollect(t *testing.T) {
	info := Collect(t.Context(), stubPipeline{
		info: pipeline.DeviceInfo{Device: "cuda", TotalMemoryGB: 24, UsedMemoryGB: 5.5},
	}, nil)

	assert.Positive(t, info.TotalMemoryGB)
	assert.Equal(t, "cuda", info.Device)
	assert.Equal(t, 24.0, info.TotalVRAMGB)
	assert.Equal(t, 5.5, info.UsedVRAMGB)
}

func TestCollect_SidecarDown(t *testing.T) {
	info := Collect(t.Context(), stubPipeline{err: errors.New("connection refused")}, nil)

	// Host stats survive a dead sidecar.
	assert.Positive(t, info.TotalMemoryGB)
	assert.Empty(t, info.Device)
	assert.Zero(t, info.TotalVRAMGB)
}

func TestCollect_NilPipeline(t *testing.T) {
	info := Collect(t.Context(), nil, nil)
	assert.Empty(t, info.Device)
}
