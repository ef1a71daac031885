package handlers

import (
	"github.com/feichai0017/pdf-transcriber/internal/service/document"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(
	documentService document.DocumentProcessor,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
}
