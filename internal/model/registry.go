package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrUnknownModel is returned when a model kind has no registry entry.
var ErrUnknownModel = errors.New("model: unknown model")

// Config holds the per-kind parameter bounds and defaults.
// The registry is populated at process start and never mutated.
type Config struct {
	MinFrames     int `json:"min_frames"`
	MaxFrames     int `json:"max_frames"`
	DefaultFrames int `json:"default_frames"`

	MinFPS     int `json:"min_fps"`
	MaxFPS     int `json:"max_fps"`
	DefaultFPS int `json:"default_fps"`

	DefaultGuidance float64 `json:"default_guidance"`
	DefaultSteps    int     `json:"default_steps"`
	// MaxSteps is the validator ceiling for num_inference_steps.
	MaxSteps int `json:"max_steps"`
	// ValidSteps restricts step counts to a discrete set. Nil for
	// continuous-step models.
	ValidSteps []int `json:"valid_steps,omitempty"`

	// Default marks the fallback kind when none is configured.
	// Exactly one registry entry carries this flag.
	Default bool `json:"default"`

	// PipelineID identifies the sidecar pipeline backing this kind.
	PipelineID string `json:"pipeline_id"`
	// MediaType and FileExt select the output container for this kind.
	MediaType string `json:"media_type"`
	FileExt   string `json:"file_ext"`
}

// registry holds the static per-kind configuration. Keys must stay in
// lockstep with the factory's constructors; VerifyIntegrity enforces the
// parity at startup.
var registry = map[Kind]Config{
	KindCogVideoX2B: {
		MinFrames:       8,
		MaxFrames:       49,
		DefaultFrames:   24,
		MinFPS:          1,
		MaxFPS:          60,
		DefaultFPS:      49,
		DefaultGuidance: 6.0,
		DefaultSteps:    50,
		MaxSteps:        50,
		Default:         true,
		PipelineID:      "THUDM/CogVideoX-2b",
		MediaType:       "video/mp4",
		FileExt:         "mp4",
	},
	KindCogVideoX5B: {
		MinFrames:       8,
		MaxFrames:       49,
		DefaultFrames:   24,
		MinFPS:          1,
		MaxFPS:          60,
		DefaultFPS:      49,
		DefaultGuidance: 6.0,
		DefaultSteps:    50,
		MaxSteps:        50,
		PipelineID:      "THUDM/CogVideoX-5b",
		MediaType:       "video/mp4",
		FileExt:         "mp4",
	},
	KindAnimateDiff: {
		MinFrames:       8,
		MaxFrames:       32,
		DefaultFrames:   8,
		MinFPS:          1,
		MaxFPS:          30,
		DefaultFPS:      8,
		DefaultGuidance: 1.0,
		DefaultSteps:    4,
		MaxSteps:        50,
		ValidSteps:      []int{1, 2, 4, 8},
		PipelineID:      "ByteDance/AnimateDiff-Lightning",
		MediaType:       "image/gif",
		FileExt:         "gif",
	},
}

// Lookup returns the configuration for a model kind.
func Lookup(kind Kind) (Config, error) {
	cfg, ok := registry[kind]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownModel, kind)
	}
	return cfg, nil
}

// Kinds returns all registered model kinds in stable order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DefaultKind returns the registry entry marked as the fallback kind.
func DefaultKind() Kind {
	for k, cfg := range registry {
		if cfg.Default {
			return k
		}
	}
	// Unreachable after VerifyIntegrity has passed.
	return ""
}

// VerifyIntegrity validates every registry entry and checks that the
// registry keys and the factory's supported kinds match exactly in both
// directions. It is called once at startup; boot fails on any violation.
func VerifyIntegrity() error {
	var defaults int
	for kind, cfg := range registry {
		if cfg.MinFrames > cfg.DefaultFrames || cfg.DefaultFrames > cfg.MaxFrames {
			return fmt.Errorf("model: %s: default frames %d outside [%d, %d]",
				kind, cfg.DefaultFrames, cfg.MinFrames, cfg.MaxFrames)
		}
		if cfg.MinFPS > cfg.DefaultFPS || cfg.DefaultFPS > cfg.MaxFPS {
			return fmt.Errorf("model: %s: default fps %d outside [%d, %d]",
				kind, cfg.DefaultFPS, cfg.MinFPS, cfg.MaxFPS)
		}
		if cfg.DefaultSteps < 1 || cfg.DefaultSteps > cfg.MaxSteps {
			return fmt.Errorf("model: %s: default steps %d outside [1, %d]",
				kind, cfg.DefaultSteps, cfg.MaxSteps)
		}
		if cfg.ValidSteps != nil && !slices.Contains(cfg.ValidSteps, cfg.DefaultSteps) {
			return fmt.Errorf("model: %s: default steps %d not in valid set %v",
				kind, cfg.DefaultSteps, cfg.ValidSteps)
		}
		if cfg.PipelineID == "" || cfg.MediaType == "" || cfg.FileExt == "" {
			return fmt.Errorf("model: %s: incomplete output metadata", kind)
		}
		if cfg.Default {
			defaults++
		}
		if _, ok := constructors[kind]; !ok {
			return fmt.Errorf("model: %s registered but has no implementation", kind)
		}
	}
	for kind := range constructors {
		if _, ok := registry[kind]; !ok {
			return fmt.Errorf("model: %s implemented but missing from registry", kind)
		}
	}
	if defaults != 1 {
		return fmt.Errorf("model: expected exactly one default kind, found %d", defaults)
	}
	return nil
}
