// Package validate turns loosely-typed request input into a canonical,
// bounds-checked GenerationParams record using the model registry.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rmateos/videogen-api/internal/model"
)

const (
	// MaxPromptLength is the maximum prompt length in characters.
	MaxPromptLength = 300
	// MaxGuidanceScale is the global guidance-scale ceiling. Guidance is
	// checked against this fixed bound, not against per-model ranges.
	MaxGuidanceScale = 10.0
)

// Static validation errors. All are client-caused and map to 400 responses.
var (
	// ErrInvalidPrompt is returned for empty or over-long prompts.
	ErrInvalidPrompt = errors.New("validate: invalid prompt")
	// ErrInvalidType is returned when a value cannot be coerced to the expected type.
	ErrInvalidType = errors.New("validate: invalid type")
	// ErrOutOfRange is returned when a value is outside its allowed range.
	ErrOutOfRange = errors.New("validate: out of range")
)

// Raw carries the optional generation parameters as they arrived on the
// wire: absent (nil), JSON numbers, or strings.
type Raw struct {
	GuidanceScale     any
	NumInferenceSteps any
	NumFrames         any
	FPS               any
}

// Prompt validates and trims a generation prompt.
func Prompt(prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}
	if len([]rune(trimmed)) > MaxPromptLength {
		return "", fmt.Errorf("%w: prompt too long (max %d characters)", ErrInvalidPrompt, MaxPromptLength)
	}
	return trimmed, nil
}

// Range validates an optional integer value against [minVal, maxVal].
// A nil value yields the default. Values outside the range are rejected,
// never clamped.
func Range(value any, minVal, maxVal int, name string, def int) (int, error) {
	if value == nil {
		return def, nil
	}

	n, err := coerceInt(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidType, name)
	}

	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("%w: %s must be between %d and %d (provided: %v)",
			ErrOutOfRange, name, minVal, maxVal, value)
	}
	return n, nil
}

// Params validates all generation parameters for a model kind at once and
// returns the canonical record. The whole request is rejected on the first
// failing field.
func Params(kind model.Kind, prompt string, raw Raw) (model.GenerationParams, error) {
	trimmed, err := Prompt(prompt)
	if err != nil {
		return model.GenerationParams{}, err
	}

	cfg, err := model.Lookup(kind)
	if err != nil {
		return model.GenerationParams{}, err
	}

	guidance := cfg.DefaultGuidance
	if raw.GuidanceScale != nil {
		guidance, err = coerceFloat(raw.GuidanceScale)
		if err != nil {
			return model.GenerationParams{}, fmt.Errorf("%w: guidance_scale must be a number", ErrInvalidType)
		}
		if guidance < 0 || guidance > MaxGuidanceScale {
			return model.GenerationParams{}, fmt.Errorf("%w: guidance_scale must be between 0 and %v (provided: %v)",
				ErrOutOfRange, MaxGuidanceScale, raw.GuidanceScale)
		}
	}

	steps, err := Range(raw.NumInferenceSteps, 1, cfg.MaxSteps, "num_inference_steps", cfg.DefaultSteps)
	if err != nil {
		return model.GenerationParams{}, err
	}

	frames, err := Range(raw.NumFrames, cfg.MinFrames, cfg.MaxFrames, "num_frames", cfg.DefaultFrames)
	if err != nil {
		return model.GenerationParams{}, err
	}

	fps, err := Range(raw.FPS, cfg.MinFPS, cfg.MaxFPS, "fps", cfg.DefaultFPS)
	if err != nil {
		return model.GenerationParams{}, err
	}

	return model.GenerationParams{
		Prompt:            trimmed,
		NumFrames:         frames,
		FPS:               fps,
		GuidanceScale:     guidance,
		NumInferenceSteps: steps,
	}, nil
}

// coerceInt converts a wire value to an int. JSON numbers arrive as float64;
// a fractional part is a type error, not a rounding opportunity.
func coerceInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

// coerceFloat converts a wire value to a float64.
func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
