package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	tk := NewWithID("task-1", testParams())

	require.NoError(t, repo.Save(t.Context(), tk))

	found, err := repo.FindByID(t.Context(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", found.ID)
	assert.Equal(t, StatusPending, found.Status)
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryRepository_ReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	tk := NewWithID("task-1", testParams())
	require.NoError(t, repo.Save(t.Context(), tk))

	found, err := repo.FindByID(t.Context(), "task-1")
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the stored task.
	found.Status = StatusFailed
	again, err := repo.FindByID(t.Context(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemoryRepository()
	tk := NewWithID("task-1", testParams())
	require.NoError(t, repo.Save(t.Context(), tk))

	require.NoError(t, tk.Start())
	require.NoError(t, repo.Update(t.Context(), tk))

	found, err := repo.FindByID(t.Context(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, found.Status)
}

func TestMemoryRepository_UpdateMissingTask(t *testing.T) {
	repo := NewMemoryRepository()
	tk := NewWithID("task-1", testParams())

	// A task deleted between reads must not be resurrected by a late update.
	err := repo.Update(t.Context(), tk)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = repo.FindByID(t.Context(), "task-1")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(t.Context(), NewWithID("task-1", testParams())))
	require.NoError(t, repo.Save(t.Context(), NewWithID("task-2", testParams())))

	tasks, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Save(t.Context(), NewWithID("task-1", testParams())))

	require.NoError(t, repo.Delete(t.Context(), "task-1"))

	_, err := repo.FindByID(t.Context(), "task-1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.ErrorIs(t, repo.Delete(t.Context(), "task-1"), ErrTaskNotFound)
}
