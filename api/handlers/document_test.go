package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/converters"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
)

type fakeService struct {
	doc       *converters.ProcessedDocument
	err       error
	events    []models.ProgressEvent
	status    *models.ProcessingTask
	cancelled []string
	pingErr   error
}

func (f *fakeService) Transcribe(ctx context.Context, fileName string, data []byte, sink models.ProgressSink) (*converters.ProcessedDocument, error) {
	for _, e := range f.events {
		sink.Emit(e)
	}
	return f.doc, f.err
}

func (f *fakeService) ProcessFile(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProcessingTask{
		ID:        "task-1",
		Status:    models.StatusPending,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:  map[string]string{"filename": header.Filename, "size": fmt.Sprint(header.Size)},
	}, nil
}

func (f *fakeService) ProcessBatch(ctx context.Context, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	var tasks []*models.ProcessingTask
	for i, h := range files {
		tasks = append(tasks, &models.ProcessingTask{
			ID:       fmt.Sprintf("task-%d", i),
			Status:   models.StatusPending,
			Metadata: map[string]string{"filename": h.Filename, "size": fmt.Sprint(h.Size)},
		})
	}
	return tasks, nil
}

func (f *fakeService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	if f.status == nil {
		return nil, fmt.Errorf("failed to get task status: %w", queue.ErrTaskNotFound)
	}
	return f.status, nil
}

func (f *fakeService) HandleDocument(ctx context.Context, task *queue.Task) error { return nil }

func (f *fakeService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	return f.doc, f.err
}

func (f *fakeService) GetTranscript(ctx context.Context, taskID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.doc.Transcript, nil
}

func (f *fakeService) CancelTask(ctx context.Context, taskID string) error {
	f.cancelled = append(f.cancelled, taskID)
	return f.err
}

func (f *fakeService) CleanupTasks(ctx context.Context) error { return nil }
func (f *fakeService) Ping(ctx context.Context) error         { return f.pingErr }

var _ document.DocumentProcessor = (*fakeService)(nil)

func setupRouter(svc document.DocumentProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(svc, logger.NewTestLogger())
	r := gin.New()
	docs := r.Group("/documents")
	docs.POST("/transcribe", h.Transcribe)
	docs.POST("/process", h.ProcessDocument)
	docs.POST("/batch", h.ProcessBatch)
	docs.GET("/status/:taskId", h.GetStatus)
	docs.GET("/download/:taskId", h.DownloadResult)
	docs.GET("/transcript/:taskId", h.GetTranscript)
	docs.DELETE("/task/:taskId", h.CancelTask)
	r.GET("/health", h.Health)
	return r
}

func uploadRequest(t *testing.T, url, field string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func sampleDoc() *converters.ProcessedDocument {
	return &converters.ProcessedDocument{
		TaskID:     "task-1",
		Status:     "completed",
		Transcript: "--- Page 1 (OCR) ---\nhello",
		Pages:      []converters.PageContent{{PageIndex: 1, Method: "ocr", Text: "hello"}},
	}
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name       string
		doc        *converters.ProcessedDocument
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "success", doc: sampleDoc(), wantStatus: http.StatusOK},
		{name: "no text", doc: sampleDoc(), err: pdf.ErrNoTextExtracted, wantStatus: http.StatusUnprocessableEntity, wantError: pdf.ErrNoTextExtracted.Error()},
		{name: "invalid", err: fmt.Errorf("%w: bad", validator.ErrInvalidDocument), wantStatus: http.StatusBadRequest, wantError: "invalid document: bad"},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(&fakeService{doc: tt.doc, err: tt.err})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, uploadRequest(t, "/documents/transcribe", "file", map[string]string{"a.pdf": "%PDF-1.4"}))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.doc != nil {
				assert.Equal(t, tt.doc.Transcript, body["transcript"])
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestTranscribe_Stream(t *testing.T) {
	svc := &fakeService{
		doc: sampleDoc(),
		events: []models.ProgressEvent{
			{Phase: models.PhaseStart, TotalPages: 1, Message: "Processing 1 page(s)..."},
			{Phase: models.PhaseOCR, PageIndex: 1, TotalPages: 1, Message: "Rendering page 1 of 1 and sending to OCR..."},
		},
	}
	r := setupRouter(svc)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, uploadRequest(t, "/documents/transcribe?stream=true", "file", map[string]string{"a.pdf": "%PDF-1.4"}))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event:progress"))
	assert.Contains(t, body, "Rendering page 1 of 1 and sending to OCR...")
	assert.Contains(t, body, "event:result")
	assert.Less(t, strings.Index(body, "event:progress"), strings.Index(body, "event:result"))
}

// streamRecorder satisfies http.CloseNotifier, which gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestTranscribe_TooLarge(t *testing.T) {
	svc := &fakeService{doc: sampleDoc()}
	h := NewDocumentHandler(svc, logger.NewTestLogger())
	h.maxUploadSize = 4

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/t", h.Transcribe)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/t", "file", map[string]string{"a.pdf": "%PDF-1.4"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestProcessDocument(t *testing.T) {
	r := setupRouter(&fakeService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/documents/process", "file", map[string]string{"scan.pdf": "%PDF-1.4"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "scan.pdf", resp.Filename)
	assert.Equal(t, "2026-01-02T03:04:05Z", resp.CreatedAt)
}

func TestProcessBatch(t *testing.T) {
	r := setupRouter(&fakeService{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/documents/batch", "files", map[string]string{"a.pdf": "%PDF-1.4", "b.pdf": "%PDF-1.5"}))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "Processing 2 documents")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "/documents/batch", "other", map[string]string{"a.pdf": "x"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	r := setupRouter(&fakeService{status: &models.ProcessingTask{
		ID:       "task-1",
		Status:   models.StatusRunning,
		Progress: 0.5,
		Message:  "OCR succeeded for page 1 of 2.",
	}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/status/task-1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, 0.5, body["progress"])
	assert.Equal(t, "OCR succeeded for page 1 of 2.", body["message"])

	w = httptest.NewRecorder()
	setupRouter(&fakeService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/status/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadAndTranscript(t *testing.T) {
	r := setupRouter(&fakeService{doc: sampleDoc()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/download/task-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=result_task-1.json", w.Header().Get("Content-Disposition"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/transcript/task-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "--- Page 1 (OCR) ---\nhello", w.Body.String())

	w = httptest.NewRecorder()
	setupRouter(&fakeService{err: document.ErrTaskNotReady}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/download/task-1", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelAndHealth(t *testing.T) {
	svc := &fakeService{}
	r := setupRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/task/task-9", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"task-9"}, svc.cancelled)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	svc.pingErr = errors.New("redis unreachable")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
