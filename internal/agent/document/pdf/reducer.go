package pdf

import (
	"context"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/internal/metrics"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// DefaultMaxPayloadBytes is the base64 payload budget for one OCR request.
const DefaultMaxPayloadBytes = 3_500_000

// Reducer re-renders oversized images once at a lower profile and keeps the
// smaller candidate. The result is not guaranteed to fit the budget.
type Reducer struct {
	rasterizer Rasterizer
	budget     int
	profile    RenderProfile
	logger     logger.Logger
}

func NewReducer(r Rasterizer, budget int, profile RenderProfile, log logger.Logger) *Reducer {
	if budget <= 0 {
		budget = DefaultMaxPayloadBytes
	}
	return &Reducer{rasterizer: r, budget: budget, profile: profile, logger: log}
}

// Reduce returns first when it fits the budget, otherwise the smaller of
// first and a reduced render. A failed reduced render keeps first.
func (r *Reducer) Reduce(ctx context.Context, page Page, first *ocr.Image) *ocr.Image {
	size := first.PayloadSize()
	if size <= r.budget {
		return first
	}

	reduced, err := r.rasterizer.Render(ctx, page, r.profile)
	if err != nil {
		metrics.ReductionsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("Reduced render failed, keeping original",
			logger.Int("page", page.Index()),
			logger.Int("payloadBytes", size),
			logger.Error(err),
		)
		return first
	}

	if reduced.PayloadSize() < size {
		metrics.ReductionsTotal.WithLabelValues("reduced").Inc()
		r.logger.Info("Page image reduced",
			logger.Int("page", page.Index()),
			logger.Int("originalBytes", size),
			logger.Int("reducedBytes", reduced.PayloadSize()),
		)
		return reduced
	}
	metrics.ReductionsTotal.WithLabelValues("original").Inc()
	return first
}
