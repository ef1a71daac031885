package pdf

import (
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/internal/models"
)

// Attempt is the outcome of one step of a page's state machine.
type Attempt interface {
	attempt()
}

type (
	TextLayerHit    struct{ Content string }
	RasterCandidate struct{ Image *ocr.Image }
	OCRSuccess      struct{ Content string }
	OCREmpty        struct{}
	OCRFailed       struct{ Err error }
)

func (TextLayerHit) attempt()    {}
func (RasterCandidate) attempt() {}
func (OCRSuccess) attempt()      {}
func (OCREmpty) attempt()        {}
func (OCRFailed) attempt()       {}

// toPageResult converts a terminal attempt. A RasterCandidate is not terminal
// and never reaches this point.
func toPageResult(index int, a Attempt) models.PageResult {
	switch v := a.(type) {
	case TextLayerHit:
		return models.PageResult{PageIndex: index, Method: models.MethodTextLayer, Content: v.Content}
	case OCRSuccess:
		return models.PageResult{PageIndex: index, Method: models.MethodOCR, Content: v.Content}
	case OCREmpty:
		return models.PageResult{PageIndex: index, Method: models.MethodOCREmpty}
	case OCRFailed:
		r := models.PageResult{PageIndex: index, Method: models.MethodOCRFailed}
		if v.Err != nil {
			r.Error = v.Err.Error()
		}
		return r
	default:
		return models.PageResult{PageIndex: index, Method: models.MethodOCRFailed, Error: "incomplete page pipeline"}
	}
}
