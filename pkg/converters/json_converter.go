package converters

import (
	"fmt"
	"time"

	"github.com/feichai0017/pdf-transcriber/internal/models"
)

type DocumentConverter interface {
	Convert(t *models.Transcript) (*ProcessedDocument, error)
}

// ProcessedDocument is the stored and downloadable result of a task.
type ProcessedDocument struct {
	TaskID      string           `json:"taskId"`
	Status      string           `json:"status"`
	Pages       []PageContent    `json:"pages"`
	Transcript  string           `json:"transcript"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

type PageContent struct {
	PageIndex int    `json:"pageIndex"`
	Method    string `json:"method"`
	Text      string `json:"text"`
	Error     string `json:"error,omitempty"`
}

type DocumentMetadata struct {
	FileName     string         `json:"fileName"`
	FileSize     int64          `json:"fileSize"`
	PageCount    int            `json:"pageCount"`
	Title        string         `json:"title,omitempty"`
	Author       string         `json:"author,omitempty"`
	Hash         string         `json:"hash,omitempty"`
	Methods      map[string]int `json:"methods"`
	ProcessingMs int64          `json:"processingMs"`
}

type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{}
}

func (c *JSONConverter) Convert(t *models.Transcript) (*ProcessedDocument, error) {
	if t == nil || len(t.Pages) == 0 {
		return nil, fmt.Errorf("no pages to convert")
	}

	doc := &ProcessedDocument{
		Status:      string(models.StatusCompleted),
		Pages:       make([]PageContent, 0, len(t.Pages)),
		Transcript:  t.String(),
		ProcessedAt: time.Now(),
		Metadata: DocumentMetadata{
			FileName:  t.Metadata.FileName,
			FileSize:  t.Metadata.FileSize,
			PageCount: len(t.Pages),
			Title:     t.Metadata.Title,
			Author:    t.Metadata.Author,
			Hash:      t.Metadata.Hash,
			Methods:   make(map[string]int, 4),
		},
	}

	for _, p := range t.Pages {
		doc.Pages = append(doc.Pages, PageContent{
			PageIndex: p.PageIndex,
			Method:    string(p.Method),
			Text:      p.Content,
			Error:     p.Error,
		})
		doc.Metadata.Methods[string(p.Method)]++
	}
	return doc, nil
}
