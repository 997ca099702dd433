// Package task provides the generation-task aggregate and its lifecycle
// manager. A task tracks one asynchronous video generation through a
// bounded state machine; the Manager is the single point of truth for
// task state.
package task

import (
	"errors"
	"sync"
	"time"

	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/task/id"
)

// Status represents the current state of a Task.
type Status string

const (
	// StatusPending indicates the task is waiting for the worker.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates the task is being generated.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted indicates generation finished and an output file exists.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates generation failed.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed. Terminal
// states have no outgoing edges; the only way out is deletion.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Task represents one asynchronous generation job.
type Task struct {
	mu sync.RWMutex

	// ID is the opaque unique identifier for this task.
	ID string
	// Status is the current task state.
	Status Status
	// Params is the validated, immutable parameter record for the generation.
	Params model.GenerationParams
	// Progress is the fraction of completion in [0, 1].
	Progress float64
	// Error contains the failure message if the task failed.
	Error string
	// OutputPath is the path of the rendered file once completed.
	OutputPath string
	// MediaType is the content type of the output file.
	MediaType string
	// VideoURL is the S3 URL if the output was pushed to a bucket.
	VideoURL string
	// CreatedAt is when the task was accepted.
	CreatedAt time.Time
	// StartedAt is when generation started.
	StartedAt time.Time
	// CompletedAt is when the task reached a terminal state.
	CompletedAt time.Time
	// UpdatedAt is when the task was last updated.
	UpdatedAt time.Time
}

// New creates a new Task with a generated ID in PENDING state.
func New(params model.GenerationParams) *Task {
	now := time.Now()
	return &Task{
		ID:        id.Generate(),
		Status:    StatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Task with the specified ID. Useful for testing.
func NewWithID(taskID string, params model.GenerationParams) *Task {
	now := time.Now()
	return &Task{
		ID:        taskID,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the task status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (t *Task) TransitionTo(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !canTransition(t.Status, status) {
		return ErrInvalidTransition
	}

	t.Status = status
	t.UpdatedAt = time.Now()

	switch status {
	case StatusProcessing:
		t.StartedAt = t.UpdatedAt
	case StatusCompleted, StatusFailed:
		t.CompletedAt = t.UpdatedAt
	}

	return nil
}

// Start transitions the task from PENDING to PROCESSING.
func (t *Task) Start() error {
	if err := t.TransitionTo(StatusProcessing); err != nil {
		return err
	}
	t.mu.Lock()
	t.Progress = 0.1
	t.mu.Unlock()
	return nil
}

// Complete transitions the task to COMPLETED, recording the output file.
func (t *Task) Complete(outputPath, videoURL string) error {
	t.mu.Lock()
	t.OutputPath = outputPath
	t.VideoURL = videoURL
	t.Progress = 1.0
	t.mu.Unlock()
	return t.TransitionTo(StatusCompleted)
}

// Fail transitions the task to FAILED with an error message.
func (t *Task) Fail(errMsg string) error {
	t.mu.Lock()
	t.Error = errMsg
	t.Progress = 1.0
	t.mu.Unlock()
	return t.TransitionTo(StatusFailed)
}

// SetProgress sets the completion fraction, clamped to [0, 1].
func (t *Task) SetProgress(progress float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Clone creates a deep copy of the task for safe reads.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:          t.ID,
		Status:      t.Status,
		Params:      t.Params,
		Progress:    t.Progress,
		Error:       t.Error,
		OutputPath:  t.OutputPath,
		MediaType:   t.MediaType,
		VideoURL:    t.VideoURL,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
