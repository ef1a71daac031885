package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent"
	agentdoc "github.com/feichai0017/pdf-transcriber/internal/agent/document"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/converters"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
	"github.com/feichai0017/pdf-transcriber/pkg/storage"
)

const pdfContentType = "application/pdf"

type DocumentService struct {
	transcriber agentdoc.Transcriber
	queue       queue.Queue
	storage     storage.Storage
	validator   *validator.DocumentValidator
	converter   converters.DocumentConverter
	logger      logger.Logger
	config      *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize     int64
	QueuePriority   int
	RetentionPeriod time.Duration
}

func NewService(
	transcriber agentdoc.Transcriber,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = validator.DefaultMaxFileSize
	}
	if cfg.QueuePriority == 0 {
		cfg.QueuePriority = 2
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 24 * time.Hour
	}

	return &DocumentService{
		transcriber: transcriber,
		queue:       q,
		storage:     store,
		validator:   validator.NewDocumentValidator(log, &validator.ValidatorConfig{MaxFileSize: cfg.MaxFileSize}),
		converter:   converters.NewJSONConverter(),
		logger:      log,
		config:      cfg,
	}
}

// GetService wires the service from environment configuration.
func GetService(ctx context.Context, log logger.Logger) (*DocumentService, error) {
	serverCfg := config.GetServerConfig()

	store, err := storage.NewStorage(ctx, storage.StorageType(serverCfg.StorageType), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	pipeline, err := config.LoadPipeline(serverCfg.PipelineFile)
	if err != nil {
		return nil, err
	}

	gen, err := agent.NewGenerator(ctx, config.GetOCRConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR generator: %w", err)
	}

	return NewService(
		agent.NewTranscriber(gen, pipeline, log),
		q, store, log,
		serviceConfigFor(pipeline, serverCfg.RetentionPeriod),
	), nil
}

func serviceConfigFor(pipeline config.PipelineConfig, retention time.Duration) *ServiceConfig {
	return &ServiceConfig{
		MaxFileSize:     int64(pipeline.MaxFileMB) * 1024 * 1024,
		RetentionPeriod: retention,
	}
}

// MaxFileSize is the upload cap in bytes.
func (s *DocumentService) MaxFileSize() int64 { return s.config.MaxFileSize }

func (s *DocumentService) Transcribe(
	ctx context.Context,
	fileName string,
	data []byte,
	sink models.ProgressSink,
) (*converters.ProcessedDocument, error) {
	if err := s.validator.ValidateBytes(fileName, data).Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	start := time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, id, data, sink)
	if transcript == nil {
		return nil, err
	}
	transcript.Metadata.FileName = fileName
	transcript.Metadata.FileSize = int64(len(data))

	doc, convErr := s.convert(id, transcript, start, err)
	if convErr != nil {
		return nil, convErr
	}
	return doc, err
}

// ProcessFile stores the upload and enqueues a transcription task.
func (s *DocumentService) ProcessFile(
	ctx context.Context,
	file multipart.File,
	header *multipart.FileHeader,
) (*models.ProcessingTask, error) {
	s.logger.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	result, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		s.logger.Warn("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}

	taskID := uuid.New().String()
	now := time.Now()
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeTranscribe,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": header.Filename,
			"size":     strconv.FormatInt(header.Size, 10),
			"hash":     result.FileInfo.Hash,
		},
	}

	fileID, err := s.storage.Store(ctx, file, uploadKey(taskID), pdfContentType)
	if err != nil {
		s.logger.Error("Failed to store file",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: queue.TranscribePayload{
			FileID:   fileID,
			FileName: header.Filename,
			Size:     header.Size,
		},
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt,
	}

	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    string(models.StatusPending),
		Message:   "Queued for processing.",
		StartedAt: now,
	}); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	s.logger.Info("File processing task created",
		logger.String("taskId", taskID),
		logger.String("filename", header.Filename),
	)
	return task, nil
}

func (s *DocumentService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, header := range files {
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.ProcessFile(ctx, file, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}

			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tasks, err
	}
	return tasks, nil
}

// HandleDocument runs a queued task. Progress events are persisted as task
// status; the converted result is stored whenever a transcript exists.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload.FileID == "" {
		return fmt.Errorf("invalid task: missing required data")
	}

	log := s.logger.With(logger.String("taskId", task.ID))
	log.Info("Processing document", logger.String("filename", task.Payload.FileName))

	started := time.Now()
	data, err := s.readUpload(ctx, task.Payload.FileID)
	if err != nil {
		s.saveStatus(ctx, log, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     string(models.StatusFailed),
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		return err
	}

	sink := func(e models.ProgressEvent) {
		if e.Phase == models.PhaseCompleted || e.Phase == models.PhaseFailed {
			return
		}
		s.saveStatus(ctx, log, &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     string(models.StatusRunning),
			Progress:   e.Fraction(),
			Message:    e.Message,
			PageIndex:  e.PageIndex,
			TotalPages: e.TotalPages,
			StartedAt:  started,
		})
	}

	transcript, runErr := s.transcriber.Transcribe(ctx, task.ID, data, sink)
	final := &queue.TaskStatus{
		TaskID:     task.ID,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	if transcript != nil {
		transcript.Metadata.FileName = task.Payload.FileName
		transcript.Metadata.FileSize = task.Payload.Size
		final.TotalPages = len(transcript.Pages)
		final.PageIndex = len(transcript.Pages)

		doc, err := s.convert(task.ID, transcript, started, runErr)
		if err != nil {
			return fmt.Errorf("failed to convert document: %w", err)
		}
		if err := s.storeResult(ctx, doc); err != nil {
			return err
		}
	}

	switch {
	case runErr == nil:
		final.Status = string(models.StatusCompleted)
		final.Progress = 1.0
		final.Message = "PDF processed successfully!"
	case errors.Is(runErr, context.Canceled):
		final.Status = string(models.StatusCancelled)
		final.Error = runErr.Error()
	default:
		final.Status = string(models.StatusFailed)
		final.Message = "Failed to extract text from PDF."
		final.Error = runErr.Error()
	}
	// ctx may already be cancelled; the final status must still land.
	s.saveStatus(context.WithoutCancel(ctx), log, final)

	if runErr != nil {
		return fmt.Errorf("failed to process document: %w", runErr)
	}
	log.Info("Document processing completed", logger.Int("pages", final.TotalPages))
	return nil
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	var taskStatus models.ProcessingStatus
	switch status.Status {
	case "running", "active":
		taskStatus = models.StatusRunning
	case "completed":
		taskStatus = models.StatusCompleted
	case "failed":
		taskStatus = models.StatusFailed
	case "cancelled":
		taskStatus = models.StatusCancelled
	default:
		taskStatus = models.StatusPending
	}

	metadata := make(map[string]string, 2)
	if status.TotalPages > 0 {
		metadata["page"] = strconv.Itoa(status.PageIndex)
		metadata["totalPages"] = strconv.Itoa(status.TotalPages)
	}

	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    taskStatus,
		Type:      queue.TaskTypeTranscribe,
		Progress:  status.Progress,
		Message:   status.Message,
		Error:     status.Error,
		Metadata:  metadata,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

// GetProcessedDocument returns the stored result. Tasks that failed with an
// empty transcript still have one.
func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted && status.Status != models.StatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotReady, status.Status)
	}

	reader, err := s.storage.Get(ctx, resultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) GetTranscript(ctx context.Context, taskID string) (string, error) {
	doc, err := s.GetProcessedDocument(ctx, taskID)
	if err != nil {
		return "", err
	}
	return doc.Transcript, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupTasks removes uploads and results older than the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *DocumentService) Ping(ctx context.Context) error {
	if p, ok := s.queue.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the queue connection when it holds one.
func (s *DocumentService) Close() error {
	if c, ok := s.queue.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *DocumentService) convert(id string, t *models.Transcript, started time.Time, runErr error) (*converters.ProcessedDocument, error) {
	doc, err := s.converter.Convert(t)
	if err != nil {
		return nil, err
	}
	doc.TaskID = id
	doc.Metadata.ProcessingMs = time.Since(started).Milliseconds()
	if errors.Is(runErr, pdf.ErrNoTextExtracted) {
		doc.Status = string(models.StatusFailed)
	}
	return doc, nil
}

func (s *DocumentService) readUpload(ctx context.Context, fileID string) ([]byte, error) {
	reader, err := s.storage.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > s.config.MaxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", validator.ErrInvalidDocument, s.config.MaxFileSize)
	}
	return data, nil
}

func (s *DocumentService) storeResult(ctx context.Context, doc *converters.ProcessedDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(context.WithoutCancel(ctx), bytes.NewReader(data), resultKey(doc.TaskID), "application/json"); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

func (s *DocumentService) saveStatus(ctx context.Context, log logger.Logger, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		log.Warn("Failed to save task status",
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func uploadKey(taskID string) string { return "uploads/" + taskID + ".pdf" }
func resultKey(taskID string) string { return "results/" + taskID + ".json" }
