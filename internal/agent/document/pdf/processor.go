package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/internal/metrics"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// Options tunes the page pipeline.
type Options struct {
	MinTextChars    int
	OCRProfile      RenderProfile
	ReducedProfile  RenderProfile
	MaxPayloadBytes int
	// Concurrency > 1 processes pages in parallel. Results and progress
	// are still delivered in page order.
	Concurrency int
}

// OptionsFromConfig maps the pipeline config onto Options.
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		MinTextChars:    cfg.TextLayer.MinChars,
		OCRProfile:      RenderProfile{Scale: cfg.Render.Scale, Quality: cfg.Render.OCRQuality},
		ReducedProfile:  RenderProfile{Scale: cfg.Render.ReducedScale, Quality: cfg.Render.ReducedQuality},
		MaxPayloadBytes: cfg.Render.MaxPayloadBytes,
		Concurrency:     cfg.Concurrency,
	}
}

// Processor turns a PDF into a page-annotated transcript. For each page it
// uses the text layer when it is usable and falls back to rendering + OCR.
type Processor struct {
	loader     Loader
	extractor  *TextLayerExtractor
	rasterizer Rasterizer
	reducer    *Reducer
	recognizer ocr.Recognizer
	opts       Options
	logger     logger.Logger
}

func NewProcessor(loader Loader, rasterizer Rasterizer, recognizer ocr.Recognizer, opts Options, log logger.Logger) *Processor {
	if opts.OCRProfile.Scale <= 0 {
		opts.OCRProfile = OCRProfile
	}
	if opts.ReducedProfile.Scale <= 0 {
		opts.ReducedProfile = ReducedProfile
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	log = log.Named("pdf")
	return &Processor{
		loader:     loader,
		extractor:  NewTextLayerExtractor(opts.MinTextChars, log),
		rasterizer: rasterizer,
		reducer:    NewReducer(rasterizer, opts.MaxPayloadBytes, opts.ReducedProfile, log),
		recognizer: recognizer,
		opts:       opts,
		logger:     log,
	}
}

// Transcribe runs the pipeline over data. When every page ends without
// text it returns the transcript together with ErrNoTextExtracted.
// Cancellation is honored between pages; a page that has started runs to
// completion.
func (p *Processor) Transcribe(ctx context.Context, id string, data []byte, sink models.ProgressSink) (*models.Transcript, error) {
	log := p.logger.With(logger.String("document", id))

	doc, err := p.loader.Load(id, data)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("load_error").Inc()
		log.Error("Failed to load document", logger.Error(err))
		sink.Emit(models.ProgressEvent{Phase: models.PhaseFailed, Message: failureMessage})
		return nil, err
	}
	defer doc.Close()

	total := doc.PageCount()
	sink.Emit(models.ProgressEvent{
		TotalPages: total,
		Phase:      models.PhaseStart,
		Message:    fmt.Sprintf("Processing %d page(s)...", total),
	})

	var pages []models.PageResult
	if p.opts.Concurrency > 1 && total > 1 {
		pages, err = p.runParallel(ctx, doc, sink)
	} else {
		pages, err = p.runSequential(ctx, doc, sink)
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "cancelled"
		}
		metrics.RunsTotal.WithLabelValues(outcome).Inc()
		log.Warn("Transcription aborted", logger.Error(err))
		sink.Emit(models.ProgressEvent{TotalPages: total, Phase: models.PhaseFailed, Message: failureMessage})
		return nil, err
	}

	transcript := &models.Transcript{
		DocumentID: doc.ID(),
		Metadata:   doc.Metadata(),
		Pages:      pages,
	}
	counts := transcript.Counts()
	for method, n := range counts {
		metrics.PagesTotal.WithLabelValues(string(method)).Add(float64(n))
	}

	if !transcript.HasContent() {
		metrics.RunsTotal.WithLabelValues("empty").Inc()
		log.Warn("No text extracted", logger.Int("pages", total))
		sink.Emit(models.ProgressEvent{TotalPages: total, Phase: models.PhaseFailed, Message: failureMessage})
		return transcript, fmt.Errorf("%w: %d page(s) processed", ErrNoTextExtracted, total)
	}

	metrics.RunsTotal.WithLabelValues("success").Inc()
	log.Info("Transcription completed",
		logger.Int("pages", total),
		logger.Int("textLayer", counts[models.MethodTextLayer]),
		logger.Int("ocr", counts[models.MethodOCR]),
		logger.Int("ocrEmpty", counts[models.MethodOCREmpty]),
		logger.Int("ocrFailed", counts[models.MethodOCRFailed]),
	)
	sink.Emit(models.ProgressEvent{
		PageIndex:  total,
		TotalPages: total,
		Phase:      models.PhaseCompleted,
		Message:    successMessage,
	})
	return transcript, nil
}

const (
	successMessage = "PDF processed successfully!"
	failureMessage = "Failed to extract text from PDF."
)

func (p *Processor) runSequential(ctx context.Context, doc Document, sink models.ProgressSink) ([]models.PageResult, error) {
	total := doc.PageCount()
	results := make([]models.PageResult, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := p.processPage(context.WithoutCancel(ctx), doc, i, sink.Emit)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// runParallel buffers each page's events and releases them once every lower
// page has finished, so the sink observes ascending page order.
func (p *Processor) runParallel(ctx context.Context, doc Document, sink models.ProgressSink) ([]models.PageResult, error) {
	total := doc.PageCount()
	results := make([]models.PageResult, total)

	var (
		mu      sync.Mutex
		buffers = make([][]models.ProgressEvent, total)
		done    = make([]bool, total)
		next    = 0
	)
	finish := func(i int, events []models.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		buffers[i] = events
		done[i] = true
		for next < total && done[next] {
			for _, e := range buffers[next] {
				sink.Emit(e)
			}
			buffers[next] = nil
			next++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := 1; i <= total; i++ {
		index := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var events []models.ProgressEvent
			r, err := p.processPage(context.WithoutCancel(gctx), doc, index, func(e models.ProgressEvent) {
				events = append(events, e)
			})
			if err != nil {
				return err
			}
			results[index-1] = r
			finish(index-1, events)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// processPage runs one page's state machine. Only ErrPageNotFound escapes;
// every other failure becomes the page's result.
func (p *Processor) processPage(ctx context.Context, doc Document, index int, emit func(models.ProgressEvent)) (models.PageResult, error) {
	total := doc.PageCount()
	event := func(phase models.Phase, method models.Method, format string) {
		emit(models.ProgressEvent{
			PageIndex:  index,
			TotalPages: total,
			Phase:      phase,
			Method:     method,
			Message:    fmt.Sprintf(format, index, total),
		})
	}

	page, err := doc.Page(index)
	if err != nil {
		return models.PageResult{}, err
	}

	event(models.PhaseTextLayer, "", "Checking page %d of %d (text layer)...")
	var a Attempt = p.tryTextLayer(page)
	if _, ok := a.(TextLayerHit); !ok {
		event(models.PhaseOCR, "", "Rendering page %d of %d and sending to OCR...")
		a = p.tryRasterize(ctx, page)
		if c, ok := a.(RasterCandidate); ok {
			a = p.tryOCR(ctx, index, c)
		}
	}

	result := toPageResult(index, a)
	switch result.Method {
	case models.MethodTextLayer:
		event(models.PhasePageDone, result.Method, "Extracted text from page %d of %d (text layer).")
	case models.MethodOCR:
		event(models.PhasePageDone, result.Method, "OCR succeeded for page %d of %d.")
	case models.MethodOCREmpty:
		event(models.PhasePageDone, result.Method, "OCR returned no text for page %d of %d.")
	default:
		event(models.PhasePageDone, result.Method, "Failed to OCR page %d of %d, skipping.")
	}
	return result, nil
}

func (p *Processor) tryTextLayer(page Page) Attempt {
	text := p.extractor.Extract(page)
	if p.extractor.Usable(text) {
		return TextLayerHit{Content: text}
	}
	return nil
}

func (p *Processor) tryRasterize(ctx context.Context, page Page) Attempt {
	img, err := p.rasterizer.Render(ctx, page, p.opts.OCRProfile)
	if err != nil {
		p.logger.Warn("Page rasterization failed",
			logger.Int("page", page.Index()),
			logger.Error(err),
		)
		return OCRFailed{Err: fmt.Errorf("rasterize: %w", err)}
	}
	img = p.reducer.Reduce(ctx, page, img)
	metrics.RasterPayloadBytes.Observe(float64(img.PayloadSize()))
	return RasterCandidate{Image: img}
}

func (p *Processor) tryOCR(ctx context.Context, index int, c RasterCandidate) Attempt {
	text, err := p.recognizer.Recognize(ctx, c.Image)
	if err != nil {
		p.logger.Warn("OCR failed, skipping page",
			logger.Int("page", index),
			logger.Error(err),
		)
		return OCRFailed{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return OCREmpty{}
	}
	return OCRSuccess{Content: text}
}
