package document

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
	"github.com/feichai0017/pdf-transcriber/pkg/storage/memory"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []*queue.Task
	history  map[string][]queue.TaskStatus
	cancel   error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{history: make(map[string][]queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.history[taskID]
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	last := h[len(h)-1]
	return &last, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error { return q.cancel }

func (q *fakeQueue) SaveStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history[status.TaskID] = append(q.history[status.TaskID], *status)
	return nil
}

type fakeTranscriber struct {
	pages []models.PageResult
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, id string, data []byte, sink models.ProgressSink) (*models.Transcript, error) {
	total := len(f.pages)
	sink.Emit(models.ProgressEvent{Phase: models.PhaseStart, TotalPages: total, Message: fmt.Sprintf("Processing %d page(s)...", total)})
	for _, p := range f.pages {
		sink.Emit(models.ProgressEvent{Phase: models.PhasePageDone, PageIndex: p.PageIndex, TotalPages: total, Method: p.Method})
	}
	if f.pages == nil {
		return nil, f.err
	}
	return &models.Transcript{DocumentID: id, Metadata: models.DocumentMetadata{Title: "Report"}, Pages: f.pages}, f.err
}

func newTestService(tr *fakeTranscriber) (*DocumentService, *fakeQueue, *memory.Storage) {
	q := newFakeQueue()
	store := memory.New()
	return NewService(tr, q, store, logger.NewTestLogger(), nil), q, store
}

func uploadHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func processUpload(t *testing.T, svc *DocumentService, q *fakeQueue) *queue.Task {
	t.Helper()
	header := uploadHeader(t, "report.pdf", samplePDF)
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()

	task, err := svc.ProcessFile(context.Background(), file, header)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	require.Len(t, q.enqueued, 1)
	return q.enqueued[0]
}

func TestProcessFile_RejectsNonPDF(t *testing.T) {
	svc, q, _ := newTestService(&fakeTranscriber{})
	header := uploadHeader(t, "notes.txt", []byte("plain text"))
	file, err := header.Open()
	require.NoError(t, err)
	defer file.Close()

	_, err = svc.ProcessFile(context.Background(), file, header)
	assert.ErrorIs(t, err, validator.ErrInvalidDocument)
	assert.Empty(t, q.enqueued)
}

func TestHandleDocument_Completed(t *testing.T) {
	tr := &fakeTranscriber{pages: []models.PageResult{
		{PageIndex: 1, Method: models.MethodTextLayer, Content: "Quarterly report summary text"},
		{PageIndex: 2, Method: models.MethodOCR, Content: "Scanned appendix"},
	}}
	svc, q, store := newTestService(tr)
	ctx := context.Background()

	task := processUpload(t, svc, q)
	assert.Equal(t, queue.TaskTypeTranscribe, task.Type)
	assert.Contains(t, store.Keys(), task.Payload.FileID)

	require.NoError(t, svc.HandleDocument(ctx, task))

	status, err := svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status.Status)
	assert.Equal(t, 1.0, status.Progress)
	assert.Equal(t, "PDF processed successfully!", status.Message)
	assert.Equal(t, "2", status.Metadata["totalPages"])

	var running int
	for _, s := range q.history[task.ID] {
		if s.Status == "running" {
			running++
		}
	}
	assert.Equal(t, 3, running, "start plus one status per page")

	doc, err := svc.GetProcessedDocument(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, doc.TaskID)
	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, "report.pdf", doc.Metadata.FileName)
	assert.Equal(t, "Report", doc.Metadata.Title)

	transcript, err := svc.GetTranscript(ctx, task.ID)
	require.NoError(t, err)
	assert.Contains(t, transcript, "--- Page 2 (OCR) ---\nScanned appendix")
}

func TestHandleDocument_NoText(t *testing.T) {
	tr := &fakeTranscriber{
		pages: []models.PageResult{{PageIndex: 1, Method: models.MethodOCREmpty}},
		err:   fmt.Errorf("%w: 1 page(s) processed", pdf.ErrNoTextExtracted),
	}
	svc, q, _ := newTestService(tr)
	ctx := context.Background()
	task := processUpload(t, svc, q)

	err := svc.HandleDocument(ctx, task)
	assert.ErrorIs(t, err, pdf.ErrNoTextExtracted)

	status, err := svc.GetProcessingStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, status.Status)
	assert.Equal(t, "Failed to extract text from PDF.", status.Message)

	doc, err := svc.GetProcessedDocument(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
}

func TestHandleDocument_Cancelled(t *testing.T) {
	svc, q, _ := newTestService(&fakeTranscriber{err: context.Canceled})
	task := processUpload(t, svc, q)

	err := svc.HandleDocument(context.Background(), task)
	assert.ErrorIs(t, err, context.Canceled)

	status, err := svc.GetProcessingStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)
}

func TestHandleDocument_MissingUpload(t *testing.T) {
	svc, _, _ := newTestService(&fakeTranscriber{})
	err := svc.HandleDocument(context.Background(), &queue.Task{
		ID:      "t1",
		Payload: queue.TranscribePayload{FileID: "uploads/missing.pdf"},
	})
	assert.Error(t, err)

	assert.Error(t, svc.HandleDocument(context.Background(), &queue.Task{ID: "t2"}))
}

func TestGetProcessedDocument_NotReady(t *testing.T) {
	svc, q, _ := newTestService(&fakeTranscriber{})
	task := processUpload(t, svc, q)

	_, err := svc.GetProcessedDocument(context.Background(), task.ID)
	assert.ErrorIs(t, err, ErrTaskNotReady)

	_, err = svc.GetProcessedDocument(context.Background(), "unknown")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestTranscribe_Inline(t *testing.T) {
	tr := &fakeTranscriber{pages: []models.PageResult{
		{PageIndex: 1, Method: models.MethodOCR, Content: "hello"},
	}}
	svc, _, _ := newTestService(tr)

	var events []models.ProgressEvent
	doc, err := svc.Transcribe(context.Background(), "a.pdf", samplePDF, func(e models.ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 (OCR) ---\nhello", doc.Transcript)
	assert.Equal(t, int64(len(samplePDF)), doc.Metadata.FileSize)
	assert.Len(t, events, 2)

	_, err = svc.Transcribe(context.Background(), "a.pdf", []byte("nope"), nil)
	assert.ErrorIs(t, err, validator.ErrInvalidDocument)
}

func TestCleanupTasks(t *testing.T) {
	svc, q, store := newTestService(&fakeTranscriber{})
	processUpload(t, svc, q)
	require.Len(t, store.Keys(), 1)

	svc.config.RetentionPeriod = -time.Minute
	require.NoError(t, svc.CleanupTasks(context.Background()))
	assert.Empty(t, store.Keys())
}

func TestServiceConfigFor(t *testing.T) {
	pipeline := config.DefaultPipelineConfig()
	pipeline.MaxFileMB = 4

	cfg := serviceConfigFor(pipeline, 6*time.Hour)
	assert.EqualValues(t, 4*1024*1024, cfg.MaxFileSize)
	assert.Equal(t, 6*time.Hour, cfg.RetentionPeriod)

	svc := NewService(&fakeTranscriber{}, newFakeQueue(), memory.New(), logger.NewTestLogger(), cfg)
	assert.EqualValues(t, 4*1024*1024, svc.MaxFileSize())
}
