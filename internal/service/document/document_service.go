package document

import (
	"context"
	"errors"
	"mime/multipart"

	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/pkg/converters"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
)

// ErrTaskNotReady is returned when a result is requested before the task finished.
var ErrTaskNotReady = errors.New("task is not finished")

type DocumentProcessor interface {
	// Transcribe runs the pipeline inline and streams progress to sink.
	Transcribe(ctx context.Context, fileName string, data []byte, sink models.ProgressSink) (*converters.ProcessedDocument, error)
	ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	GetTranscript(ctx context.Context, taskID string) (string, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupTasks(ctx context.Context) error
	Ping(ctx context.Context) error
}
