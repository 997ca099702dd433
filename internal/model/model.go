// Package model provides the model abstraction for text-to-video generation.
// It includes the per-kind configuration registry, the Model capability
// interface implemented by each pipeline variant, the factory, and the
// load-status tracker shared with the task layer.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmateos/videogen-api/internal/pipeline"
)

// Kind identifies a generative pipeline variant.
type Kind string

// Registered model kinds. These are the canonical spellings; historical
// variants like "cogvideoX2b" are not accepted.
const (
	KindCogVideoX2B Kind = "cogvideox-2b"
	KindCogVideoX5B Kind = "cogvideox-5b"
	KindAnimateDiff Kind = "animatediff"
)

// ErrUnknownKind is returned by the factory for unrecognized model kinds.
var ErrUnknownKind = errors.New("model: unknown model kind")

// GenerationParams is the canonical, bounds-checked parameter record for one
// generation. All fields are populated after validation; the struct is never
// mutated once constructed.
type GenerationParams struct {
	Prompt            string
	NumFrames         int
	FPS               int
	GuidanceScale     float64
	NumInferenceSteps int
}

// Info describes a model variant. Static identity metadata, no side effects.
type Info struct {
	Kind      Kind   `json:"kind"`
	ModelID   string `json:"model_id"`
	ModelType string `json:"model_type"`
	MediaType string `json:"media_type"`
	FileExt   string `json:"file_ext"`
}

// Model is the capability contract implemented by every pipeline variant.
type Model interface {
	// Load initializes the pipeline on the sidecar and runs a throwaway
	// warmup render. A Model is not usable before Load succeeds.
	Load(ctx context.Context) error

	// Generate runs the pipeline for the given params and writes the result
	// to outputPath. It blocks for the duration of the render and returns
	// the path of the written file.
	Generate(ctx context.Context, params GenerationParams, outputPath string) (string, error)

	// Info returns static identity metadata for the variant.
	Info() Info
}

// constructors maps each kind to its variant constructor. The key set must
// match the registry exactly; VerifyIntegrity checks the parity at startup.
var constructors = map[Kind]func(cfg Config, pipe pipeline.Client, logger *slog.Logger) Model{
	KindCogVideoX2B: func(cfg Config, pipe pipeline.Client, logger *slog.Logger) Model {
		return newCogVideoX(KindCogVideoX2B, "CogVideoX", cfg, pipe, logger)
	},
	KindCogVideoX5B: func(cfg Config, pipe pipeline.Client, logger *slog.Logger) Model {
		return newCogVideoX(KindCogVideoX5B, "CogVideoX5B", cfg, pipe, logger)
	},
	KindAnimateDiff: func(cfg Config, pipe pipeline.Client, logger *slog.Logger) Model {
		return newAnimateDiff(cfg, pipe, logger)
	},
}

// New creates the model variant for the given kind.
func New(kind Kind, pipe pipeline.Client, logger *slog.Logger) (Model, error) {
	ctor, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	cfg, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return ctor(cfg, pipe, logger), nil
}
