package document

import (
	"context"

	"github.com/feichai0017/pdf-transcriber/internal/models"
)

// Transcriber turns document bytes into a page-annotated transcript.
type Transcriber interface {
	// Transcribe reports progress to sink, which may be nil. A transcript
	// is returned alongside pdf.ErrNoTextExtracted when no page had text.
	Transcribe(ctx context.Context, id string, data []byte, sink models.ProgressSink) (*models.Transcript, error)
}
