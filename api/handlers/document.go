package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/converters"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
	"github.com/feichai0017/pdf-transcriber/pkg/queue"
)

type DocumentHandler struct {
	service       document.DocumentProcessor
	logger        logger.Logger
	maxUploadSize int64
}

type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TranscribeResponse wraps an inline result. Error is set when no page
// produced text; the transcript is still returned.
type TranscribeResponse struct {
	*converters.ProcessedDocument
	Error string `json:"error,omitempty"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	limit := int64(validator.DefaultMaxFileSize)
	if s, ok := service.(interface{ MaxFileSize() int64 }); ok {
		limit = s.MaxFileSize()
	}
	return &DocumentHandler{
		service:       service,
		logger:        log,
		maxUploadSize: limit,
	}
}

// Transcribe runs the pipeline inside the request. With ?stream=true or an
// Accept: text/event-stream header, progress is streamed as server-sent
// events followed by a "result" or "error" event.
func (h *DocumentHandler) Transcribe(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Failed to read upload", err)
		return
	}
	if int64(len(data)) > h.maxUploadSize {
		h.handleError(c, http.StatusRequestEntityTooLarge, "File too large",
			fmt.Errorf("%w: file exceeds %d bytes", validator.ErrInvalidDocument, h.maxUploadSize))
		return
	}

	if wantsStream(c) {
		h.streamTranscribe(c, header.Filename, data)
		return
	}

	doc, err := h.service.Transcribe(c.Request.Context(), header.Filename, data, nil)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, TranscribeResponse{ProcessedDocument: doc})
	case doc != nil:
		c.JSON(http.StatusUnprocessableEntity, TranscribeResponse{ProcessedDocument: doc, Error: err.Error()})
	default:
		h.handleError(c, statusFor(err), "Failed to transcribe document", err)
	}
}

type streamResult struct {
	doc *converters.ProcessedDocument
	err error
}

func (h *DocumentHandler) streamTranscribe(c *gin.Context, fileName string, data []byte) {
	ctx := c.Request.Context()
	events := make(chan models.ProgressEvent, 16)
	done := make(chan streamResult, 1)

	go func() {
		defer close(events)
		doc, err := h.service.Transcribe(ctx, fileName, data, func(e models.ProgressEvent) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
		done <- streamResult{doc: doc, err: err}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		if e, ok := <-events; ok {
			c.SSEvent("progress", gin.H{
				"page":       e.PageIndex,
				"totalPages": e.TotalPages,
				"phase":      e.Phase,
				"method":     e.Method,
				"message":    e.Message,
				"progress":   e.Fraction(),
			})
			return true
		}

		res := <-done
		switch {
		case res.err == nil:
			c.SSEvent("result", TranscribeResponse{ProcessedDocument: res.doc})
		case res.doc != nil:
			c.SSEvent("result", TranscribeResponse{ProcessedDocument: res.doc, Error: res.err.Error()})
		default:
			c.SSEvent("error", ErrorResponse{Message: "Failed to transcribe document", Error: res.err.Error()})
		}
		return false
	})
}

func wantsStream(c *gin.Context) bool {
	return c.Query("stream") == "true" ||
		strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	task, err := h.service.ProcessFile(c.Request.Context(), file, header)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		size, _ := strconv.ParseInt(task.Metadata["size"], 10, 64)
		responses[i] = ProcessResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Filename:  task.Metadata["filename"],
			FileSize:  size,
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": fmt.Sprintf("Processing %d documents", len(files)),
		"tasks":   responses,
	})
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"message":   task.Message,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	result, err := h.service.GetProcessedDocument(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get result", err)
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to serialize result", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.Data(http.StatusOK, "application/json", resultJSON)
}

// GetTranscript returns the page-annotated transcript as plain text.
func (h *DocumentHandler) GetTranscript(c *gin.Context) {
	taskID := c.Param("taskId")
	text, err := h.service.GetTranscript(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get transcript", err)
		return
	}
	c.String(http.StatusOK, text)
}

func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, statusFor(err), "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func (h *DocumentHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.service.Ping(ctx); err != nil {
		h.handleError(c, http.StatusServiceUnavailable, "Unhealthy", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validator.ErrInvalidDocument), errors.Is(err, pdf.ErrDocumentLoad):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrTaskNotReady):
		return http.StatusConflict
	case errors.Is(err, pdf.ErrNoTextExtracted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if id := logger.RequestID(c.Request.Context()); id != "" {
		fields = append(fields, logger.String("request_id", id))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fields...)
	} else {
		h.logger.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
