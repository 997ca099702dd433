package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/pipeline"
	"github.com/rmateos/videogen-api/internal/storage"
)

// Static errors for task lifecycle operations.
var (
	// ErrModelUnavailable is returned when submission is attempted while the
	// model is not loaded. Operator-actionable; requires a reload.
	ErrModelUnavailable = errors.New("task: model is not available")
	// ErrQueueFull is returned when the work queue has no capacity left.
	ErrQueueFull = errors.New("task: generation queue is full")
	// ErrTaskNotReady is returned when output is requested before completion.
	ErrTaskNotReady = errors.New("task: not completed yet")
	// ErrOutputMissing is returned when the recorded output file is gone.
	ErrOutputMissing = errors.New("task: output file no longer exists")
)

// DefaultRetentionWindow is the maximum task age before the sweep removes it.
const DefaultRetentionWindow = 2 * time.Hour

// DefaultSweepSpec schedules the retention sweep hourly.
const DefaultSweepSpec = "@hourly"

// Manager creates, tracks, transitions, and garbage-collects generation
// tasks. It exclusively owns the task table; submission hands work to a
// single dedicated worker goroutine over a bounded channel, which
// serializes all generation calls through the one model handle.
type Manager struct {
	repo   Repository
	mdl    model.Model
	status *model.Status
	store  storage.Storage
	pipe   pipeline.Client
	logger *slog.Logger

	queue     chan string
	retention time.Duration
	sweepSpec string

	// genMu serializes access to the model handle across the async worker
	// and the synchronous generation path.
	genMu sync.Mutex
	// removeMu serializes Delete and Sweep so the same backing file cannot
	// be freed twice.
	removeMu sync.Mutex

	cron     *cron.Cron
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ManagerOption is a function that configures a Manager.
type ManagerOption func(*Manager)

// WithRetentionWindow sets how long finished tasks and their files are kept.
func WithRetentionWindow(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithQueueSize sets the capacity of the pending-work channel.
func WithQueueSize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.queue = make(chan string, n)
		}
	}
}

// WithSweepSpec sets the cron spec for the retention sweep.
func WithSweepSpec(spec string) ManagerOption {
	return func(m *Manager) {
		if spec != "" {
			m.sweepSpec = spec
		}
	}
}

// NewManager creates a Manager. Call Start to launch the worker and the
// sweep schedule, and Stop on shutdown.
func NewManager(repo Repository, mdl model.Model, status *model.Status, store storage.Storage, pipe pipeline.Client, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:      repo,
		mdl:       mdl,
		status:    status,
		store:     store,
		pipe:      pipe,
		logger:    logger,
		queue:     make(chan string, 16),
		retention: DefaultRetentionWindow,
		sweepSpec: DefaultSweepSpec,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker goroutine and schedules the retention sweep.
func (m *Manager) Start() error {
	m.wg.Add(1)
	go m.runWorker()

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.sweepSpec, func() {
		m.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	m.cron.Start()

	m.logger.Info("task manager started",
		slog.Int("queue_capacity", cap(m.queue)),
		slog.Duration("retention_window", m.retention),
		slog.String("sweep_spec", m.sweepSpec),
	)
	return nil
}

// Stop halts the sweep schedule and the worker. An in-flight generation
// runs to completion; pending queue entries are abandoned and later swept.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cron != nil {
			m.cron.Stop()
		}
		close(m.stopCh)
	})
	m.wg.Wait()
}

// Submit accepts a validated parameter record, stores a PENDING task, and
// hands it to the worker. It never waits on the model; the enqueue either
// succeeds immediately or the submission is rejected.
func (m *Manager) Submit(ctx context.Context, params model.GenerationParams) (*Task, error) {
	if !m.status.Loaded() {
		snap := m.status.Snapshot()
		if snap.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, snap.Error)
		}
		return nil, ErrModelUnavailable
	}

	t := New(params)
	t.MediaType = m.mdl.Info().MediaType

	if err := m.repo.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	select {
	case m.queue <- t.ID:
	default:
		_ = m.repo.Delete(ctx, t.ID)
		return nil, ErrQueueFull
	}

	m.logger.Info("task submitted",
		slog.String("task_id", t.ID),
		slog.Int("num_frames", params.NumFrames),
		slog.Int("fps", params.FPS),
		slog.Int("num_inference_steps", params.NumInferenceSteps),
	)
	return t.Clone(), nil
}

// Status returns a snapshot of a task.
func (m *Manager) Status(ctx context.Context, taskID string) (*Task, error) {
	return m.repo.FindByID(ctx, taskID)
}

// Output returns the path and media type of a completed task's file.
func (m *Manager) Output(ctx context.Context, taskID string) (string, string, error) {
	t, err := m.repo.FindByID(ctx, taskID)
	if err != nil {
		return "", "", err
	}
	if t.Status != StatusCompleted {
		return "", "", fmt.Errorf("%w: status is %s", ErrTaskNotReady, t.Status)
	}
	if _, err := os.Stat(t.OutputPath); err != nil {
		return "", "", ErrOutputMissing
	}
	return t.OutputPath, t.MediaType, nil
}

// Delete removes a task and its backing file. Repeated deletion of the
// same ID returns ErrTaskNotFound.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	m.removeMu.Lock()
	defer m.removeMu.Unlock()

	t, err := m.repo.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t.OutputPath != "" {
		if err := m.store.Remove(ctx, t.OutputPath); err != nil {
			m.logger.Warn("failed to remove output file",
				slog.String("task_id", taskID),
				slog.String("path", t.OutputPath),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := m.repo.Delete(ctx, taskID); err != nil {
		return err
	}
	m.logger.Info("task deleted", slog.String("task_id", taskID))
	return nil
}

// Sweep removes every task older than the retention window, deleting
// backing files first. It shares the removal lock with Delete so the two
// can never double-free the same file.
func (m *Manager) Sweep(ctx context.Context) {
	m.removeMu.Lock()
	defer m.removeMu.Unlock()

	tasks, err := m.repo.List(ctx)
	if err != nil {
		m.logger.Error("sweep: listing tasks failed", slog.String("error", err.Error()))
		return
	}

	cutoff := time.Now().Add(-m.retention)
	removed := 0
	for _, t := range tasks {
		if !t.CreatedAt.Before(cutoff) {
			continue
		}
		if t.OutputPath != "" {
			if err := m.store.Remove(ctx, t.OutputPath); err != nil {
				m.logger.Warn("sweep: failed to remove output file",
					slog.String("task_id", t.ID),
					slog.String("path", t.OutputPath),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := m.repo.Delete(ctx, t.ID); err != nil && !errors.Is(err, ErrTaskNotFound) {
			m.logger.Warn("sweep: failed to delete task",
				slog.String("task_id", t.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("retention sweep finished",
			slog.Int("removed", removed),
			slog.Duration("retention_window", m.retention),
		)
	}
}

// GenerateSync runs one generation inline for the synchronous server
// variant. It shares the model-handle lock and failure semantics with the
// worker but bypasses the task table entirely; the caller owns the file.
func (m *Manager) GenerateSync(ctx context.Context, params model.GenerationParams) (string, string, error) {
	if !m.status.Loaded() {
		return "", "", ErrModelUnavailable
	}

	info := m.mdl.Info()
	outputPath := m.store.OutputPath(fmt.Sprintf("sync-%d.%s", time.Now().UnixNano(), info.FileExt))

	m.genMu.Lock()
	path, err := m.mdl.Generate(ctx, params, outputPath)
	m.genMu.Unlock()
	if err != nil {
		m.handleGenerationFailure(ctx, err)
		return "", "", fmt.Errorf("generate: %w", err)
	}
	return path, info.MediaType, nil
}

// RemoveFile deletes a file handed out by GenerateSync once the caller is
// done streaming it.
func (m *Manager) RemoveFile(ctx context.Context, path string) error {
	return m.store.Remove(ctx, path)
}

// runWorker is the single background routine executing queued generations.
// It is the only writer of task state after submission.
func (m *Manager) runWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case taskID := <-m.queue:
			m.process(context.Background(), taskID)
		}
	}
}

// process executes one queued task to a terminal state.
func (m *Manager) process(ctx context.Context, taskID string) {
	t, err := m.repo.FindByID(ctx, taskID)
	if err != nil {
		// Deleted while queued; whoever removed it wins.
		return
	}

	if err := t.Start(); err != nil {
		m.logger.Error("task cannot start",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := m.repo.Update(ctx, t); err != nil {
		return
	}

	info := m.mdl.Info()
	outputPath := m.store.OutputPath(fmt.Sprintf("%s.%s", taskID, info.FileExt))

	m.genMu.Lock()
	path, genErr := m.mdl.Generate(ctx, t.Params, outputPath)
	m.genMu.Unlock()

	if genErr != nil {
		m.handleGenerationFailure(ctx, genErr)
		_ = t.Fail(genErr.Error())
		if err := m.repo.Update(ctx, t); err != nil {
			m.logger.Warn("task vanished before failure could be recorded",
				slog.String("task_id", taskID),
			)
		}
		m.logger.Error("generation failed",
			slog.String("task_id", taskID),
			slog.String("error", genErr.Error()),
		)
		return
	}

	videoURL := m.maybeUpload(ctx, taskID, path)

	_ = t.Complete(path, videoURL)
	if err := m.repo.Update(ctx, t); err != nil {
		// Deleted mid-generation; drop the orphaned file.
		_ = m.store.Remove(ctx, path)
		return
	}

	m.logger.Info("task completed",
		slog.String("task_id", taskID),
		slog.String("output", path),
	)
}

// handleGenerationFailure marks the model unavailable and reclaims device
// memory best-effort. Subsequent submissions see the unavailable state
// until an operator reloads.
func (m *Manager) handleGenerationFailure(ctx context.Context, genErr error) {
	m.status.MarkFailed(genErr)
	if err := m.pipe.Release(ctx); err != nil {
		m.logger.Warn("device memory release failed", slog.String("error", err.Error()))
	}
}

// maybeUpload pushes a completed output to S3 when configured.
// Upload failures are logged, not fatal; the local file remains the output.
func (m *Manager) maybeUpload(ctx context.Context, taskID, path string) string {
	f, err := m.store.Open(ctx, path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	url, err := m.store.UploadToS3(ctx, fmt.Sprintf("outputs/%s.%s", taskID, m.mdl.Info().FileExt), f)
	if err != nil {
		if !errors.Is(err, storage.ErrS3NotConfigured) {
			m.logger.Warn("S3 upload failed",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
		return ""
	}
	return url
}
