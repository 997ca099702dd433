package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

// Compile-time check that animateDiff implements Model.
var _ Model = (*animateDiff)(nil)

// animateDiff is the discrete-step animation variant. The distilled
// Lightning pipeline only supports a small fixed set of step counts, so any
// requested value is coerced to the nearest allowed one rather than
// rejected. The validator has already bounds-checked the value; the
// discreteness policy lives here on purpose.
type animateDiff struct {
	cfg    Config
	pipe   pipeline.Client
	logger *slog.Logger
}

func newAnimateDiff(cfg Config, pipe pipeline.Client, logger *slog.Logger) *animateDiff {
	return &animateDiff{
		cfg:    cfg,
		pipe:   pipe,
		logger: logger,
	}
}

// Load loads the pipeline weights on the sidecar and runs a warmup render.
func (m *animateDiff) Load(ctx context.Context) error {
	if err := m.pipe.Load(ctx, pipeline.LoadRequest{
		PipelineID: m.cfg.PipelineID,
		Dtype:      "float16",
	}); err != nil {
		return fmt.Errorf("load %s: %w", m.cfg.PipelineID, err)
	}

	if err := warmup(ctx, m.pipe, m.cfg); err != nil {
		return fmt.Errorf("warmup %s: %w", m.cfg.PipelineID, err)
	}

	m.logger.Info("model initialized",
		slog.String("model_id", m.cfg.PipelineID),
		slog.String("kind", string(KindAnimateDiff)),
	)
	return nil
}

// Generate runs the pipeline and writes a GIF to outputPath. Step counts
// outside the supported set are clamped to the nearest allowed value.
func (m *animateDiff) Generate(ctx context.Context, params GenerationParams, outputPath string) (string, error) {
	start := time.Now()

	steps := m.clampSteps(params.NumInferenceSteps)
	if steps != params.NumInferenceSteps {
		m.logger.Warn("coercing step count to supported value",
			slog.Int("requested", params.NumInferenceSteps),
			slog.Int("used", steps),
		)
	}

	err := m.pipe.Render(ctx, pipeline.RenderRequest{
		PipelineID:        m.cfg.PipelineID,
		Prompt:            params.Prompt,
		NumFrames:         params.NumFrames,
		FPS:               params.FPS,
		GuidanceScale:     params.GuidanceScale,
		NumInferenceSteps: steps,
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
func (m *animateDiff) Info() Info {
	return Info{
		Kind:      KindAnimateDiff,
		ModelID:   m.cfg.PipelineID,
		ModelType: "AnimateDiff",
		MediaType: m.cfg.MediaType,
		FileExt:   m.cfg.FileExt,
	}
}

// clampSteps returns the nearest value in the supported step set.
// Ties resolve to the smaller value.
func (m *animateDiff) clampSteps(requested int) int {
	best := m.cfg.ValidSteps[0]
	for _, s := range m.cfg.ValidSteps {
		if abs(s-requested) < abs(best-requested) {
			best = s
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
