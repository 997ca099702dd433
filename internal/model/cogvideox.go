package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

// Compile-time check that cogVideoX implements Model.
var _ Model = (*cogVideoX)(nil)

// cogVideoX is the continuous-step CogVideoX variant. The 2b and 5b kinds
// share the implementation and differ only in the sidecar pipeline they load.
type cogVideoX struct {
	kind      Kind
	modelType string
	cfg       Config
	pipe      pipeline.Client
	logger    *slog.Logger
}

func newCogVideoX(kind Kind, modelType string, cfg Config, pipe pipeline.Client, logger *slog.Logger) *cogVideoX {
	return &cogVideoX{
		kind:      kind,
		modelType: modelType,
		cfg:       cfg,
		pipe:      pipe,
		logger:    logger,
	}
}

// Load loads the pipeline weights on the sidecar and runs a throwaway warmup
// render so lazy initialization happens before real traffic.
func (m *cogVideoX) Load(ctx context.Context) error {
	if err := m.pipe.Load(ctx, pipeline.LoadRequest{
		PipelineID: m.cfg.PipelineID,
		Dtype:      "bfloat16",
	}); err != nil {
		return fmt.Errorf("load %s: %w", m.cfg.PipelineID, err)
	}

	if err := warmup(ctx, m.pipe, m.cfg); err != nil {
		return fmt.Errorf("warmup %s: %w", m.cfg.PipelineID, err)
	}

	m.logger.Info("model initialized",
		slog.String("model_id", m.cfg.PipelineID),
		slog.String("kind", string(m.kind)),
	)
	return nil
}

// Generate runs the pipeline and writes an MP4 to outputPath.
func (m *cogVideoX) Generate(ctx context.Context, params GenerationParams, outputPath string) (string, error) {
	start := time.Now()

	err := m.pipe.Render(ctx, pipeline.RenderRequest{
		PipelineID:        m.cfg.PipelineID,
		Prompt:            params.Prompt,
		NumFrames:         params.NumFrames,
		FPS:               params.FPS,
		GuidanceScale:     params.GuidanceScale,
		NumInferenceSteps: params.NumInferenceSteps,
		Seed:              42,
		OutputPath:        outputPath,
		OutputFormat:      m.cfg.FileExt,
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("inference finished",
		slog.String("model_id", m.cfg.PipelineID),
		slog.Duration("duration", time.Since(start)),
		slog.String("output", outputPath),
	)
	return outputPath, nil
}

// Info returns static identity metadata.
func (m *cogVideoX) Info() Info {
	return Info{
		Kind:      m.kind,
		ModelID:   m.cfg.PipelineID,
		ModelType: m.modelType,
		MediaType: m.cfg.MediaType,
		FileExt:   m.cfg.FileExt,
	}
}

// warmup runs a minimal throwaway render and removes its output.
func warmup(ctx context.Context, pipe pipeline.Client, cfg Config) error {
	warmupPath := filepath.Join(os.TempDir(), fmt.Sprintf("warmup_%d.%s", time.Now().UnixNano(), cfg.FileExt))
	defer func() { _ = os.Remove(warmupPath) }()

	steps := 1
	if cfg.ValidSteps != nil {
		steps = cfg.ValidSteps[0]
	}

	return pipe.Render(ctx, pipeline.RenderRequest{
		PipelineID:        cfg.PipelineID,
		Prompt:            "test",
		NumFrames:         cfg.MinFrames,
		FPS:               cfg.DefaultFPS,
		GuidanceScale:     cfg.DefaultGuidance,
		NumInferenceSteps: steps,
		Seed:              42,
		OutputPath:        warmupPath,
		OutputFormat:      cfg.FileExt,
	})
}
