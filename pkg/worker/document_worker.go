package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
)

type DocumentWorker struct {
	BaseWorker
	docService      document.DocumentProcessor
	cleanupInterval time.Duration
}

func NewDocumentWorker(cfg *Config, docService document.DocumentProcessor, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = map[string]int{"critical": 6, "default": 3, "low": 1}
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		docService:      docService,
		cleanupInterval: cfg.CleanupInterval,
	}
	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeTranscribe, w.handleTranscribe)
}

func (w *DocumentWorker) handleTranscribe(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || task.Payload.FileID == "" {
		w.logger.Error("Invalid task data", logger.Any("task", task))
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	ctx = logger.WithTaskID(ctx, task.ID)
	w.logger.Info("Processing transcription task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.FileName),
	)

	if err := w.docService.HandleDocument(ctx, &task); err != nil {
		if !retryable(err) {
			w.logger.Warn("Task failed permanently",
				logger.String("taskId", task.ID),
				logger.Error(err),
			)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// retryable reports whether running the task again could change the outcome.
func retryable(err error) bool {
	switch {
	case errors.Is(err, pdf.ErrNoTextExtracted),
		errors.Is(err, pdf.ErrDocumentLoad),
		errors.Is(err, validator.ErrInvalidDocument),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	if w.cleanupInterval > 0 {
		go w.cleanupLoop(ctx)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}

func (w *DocumentWorker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := w.docService.CleanupTasks(ctx); err != nil {
				w.logger.Warn("Cleanup failed", logger.Error(err))
			}
		}
	}
}
