package task

import (
	"context"
	"errors"
)

// ErrTaskNotFound is returned when a task cannot be found by ID.
var ErrTaskNotFound = errors.New("task not found")

// Repository defines the interface for task persistence.
type Repository interface {
	// Save inserts a task into storage. Saving an existing ID overwrites it.
	Save(ctx context.Context, task *Task) error

	// Update replaces an existing task.
	// Returns ErrTaskNotFound if the task does not exist; a task deleted
	// while its generation was in flight must not be resurrected.
	Update(ctx context.Context, task *Task) error

	// FindByID retrieves a task by its unique identifier.
	// Returns ErrTaskNotFound if the task does not exist.
	FindByID(ctx context.Context, id string) (*Task, error)

	// List returns all tasks.
	List(ctx context.Context) ([]*Task, error)

	// Delete removes a task from storage.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id string) error
}
