// Package bootstrap provides dependency initialization for the video
// generation API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rmateos/videogen-api/internal/config"
	"github.com/rmateos/videogen-api/internal/model"
	"github.com/rmateos/videogen-api/internal/pipeline"
	"github.com/rmateos/videogen-api/internal/storage"
	"github.com/rmateos/videogen-api/internal/task"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Manager  *task.Manager
	Status   *model.Status
	Kind     model.Kind
	Pipeline pipeline.Client
}

// NewDependencies creates and initializes all dependencies for the application.
// The model is loaded synchronously; a load failure does not abort boot, the
// server comes up degraded and reports the error on /info and /health.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// The registry and factory are maintained by hand; fail boot on drift.
	if err := model.VerifyIntegrity(); err != nil {
		return nil, err
	}

	kind := model.DefaultKind()
	if cfg.DefaultModel != "" {
		kind = model.Kind(cfg.DefaultModel)
	}
	if _, err := model.Lookup(kind); err != nil {
		return nil, err
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var pipeOpts []pipeline.ClientOption
	if cfg.PipelineAPIKey != "" {
		pipeOpts = append(pipeOpts, pipeline.WithAPIKey(cfg.PipelineAPIKey))
	}
	pipe, err := pipeline.NewClient(cfg.PipelineURL, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("create pipeline client: %w", err)
	}

	mdl, err := model.New(kind, pipe, logger)
	if err != nil {
		return nil, err
	}

	status := model.NewStatus(kind)
	logger.Info("loading model", slog.String("kind", string(kind)))
	if err := mdl.Load(ctx); err != nil {
		status.MarkFailed(err)
		logger.Error("model load failed; serving degraded",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	} else {
		status.MarkLoaded()
		logger.Info("model loaded", slog.String("kind", string(kind)))
	}

	repo := task.NewMemoryRepository()

	manager := task.NewManager(repo, mdl, status, store, pipe, logger,
		task.WithQueueSize(cfg.QueueSize),
		task.WithRetentionWindow(cfg.RetentionWindow),
		task.WithSweepSpec(cfg.SweepSpec),
	)

	return &Dependencies{
		Manager:  manager,
		Status:   status,
		Kind:     kind,
		Pipeline: pipe,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocal(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
