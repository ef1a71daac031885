package models

import (
	"time"
)

// Method records how a page's text was obtained.
type Method string

const (
	MethodTextLayer Method = "text-layer"
	MethodOCR       Method = "ocr"
	MethodOCREmpty  Method = "ocr-empty"
	MethodOCRFailed Method = "ocr-failed"
)

// Label is the human-readable form used in transcript page markers.
func (m Method) Label() string {
	switch m {
	case MethodTextLayer:
		return "text layer"
	case MethodOCR:
		return "OCR"
	case MethodOCREmpty:
		return "OCR empty"
	case MethodOCRFailed:
		return "OCR failed"
	default:
		return string(m)
	}
}

// DocumentMetadata describes a loaded PDF.
type DocumentMetadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Author    string    `json:"author,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	FileSize  int64     `json:"fileSize"`
	MimeType  string    `json:"mimeType"`
	Pages     int       `json:"pages"`
	CreatedAt time.Time `json:"createdAt"`
	Hash      string    `json:"hash"`
}

// PageResult is the outcome of one page. Content is empty only for the
// OCR failure/empty methods.
type PageResult struct {
	PageIndex int    `json:"pageIndex"`
	Method    Method `json:"method"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
