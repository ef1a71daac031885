package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/internal/models"
)

type fakePage struct {
	index     int
	fragments []string
	textErr   error
}

func (p *fakePage) Index() int { return p.index }

func (p *fakePage) TextFragments() ([]string, error) { return p.fragments, p.textErr }

func (p *fakePage) Raster(dpi float64) (image.Image, error) {
	side := int(dpi / 9)
	return imaging.New(side, side, color.White), nil
}

type fakeDoc struct {
	id        string
	pages     []*fakePage
	pageCount int // overrides len(pages) when set
	mu        sync.Mutex
	closed    bool
}

func newFakeDoc(texts ...string) *fakeDoc {
	d := &fakeDoc{id: "doc-1"}
	for i, t := range texts {
		p := &fakePage{index: i + 1}
		if t != "" {
			p.fragments = []string{t}
		}
		d.pages = append(d.pages, p)
	}
	return d
}

func (d *fakeDoc) ID() string { return d.id }

func (d *fakeDoc) PageCount() int {
	if d.pageCount > 0 {
		return d.pageCount
	}
	return len(d.pages)
}

func (d *fakeDoc) Page(index int) (Page, error) {
	if index < 1 || index > len(d.pages) {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, index)
	}
	return d.pages[index-1], nil
}

func (d *fakeDoc) Metadata() models.DocumentMetadata {
	return models.DocumentMetadata{ID: d.id, Pages: len(d.pages)}
}

func (d *fakeDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type fakeLoader struct {
	doc *fakeDoc
	err error
}

func (l *fakeLoader) Load(string, []byte) (Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.doc, nil
}

type renderCall struct {
	page    int
	profile RenderProfile
}

type fakeRasterizer struct {
	mu    sync.Mutex
	calls []renderCall
	fn    func(page Page, profile RenderProfile) (*ocr.Image, error)
}

func (r *fakeRasterizer) Render(_ context.Context, page Page, profile RenderProfile) (*ocr.Image, error) {
	r.mu.Lock()
	r.calls = append(r.calls, renderCall{page: page.Index(), profile: profile})
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(page, profile)
	}
	return pageImage(page.Index(), 1024, profile), nil
}

func (r *fakeRasterizer) Calls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.calls...)
}

// pageImage builds an image tagged with its page whose base64 payload is
// exactly payload bytes (payload must be a multiple of 4).
func pageImage(page, payload int, profile RenderProfile) *ocr.Image {
	data := make([]byte, payload/4*3)
	copy(data, fmt.Sprintf("page-%d;", page))
	return &ocr.Image{Data: data, MimeType: "image/jpeg", Scale: profile.Scale, Quality: profile.Quality}
}

func imagePage(img *ocr.Image) int {
	var page int
	tag, _, _ := strings.Cut(string(img.Data[:min(16, len(img.Data))]), ";")
	_, _ = fmt.Sscanf(tag, "page-%d", &page)
	return page
}

type fakeRecognizer struct {
	mu     sync.Mutex
	images []*ocr.Image
	fn     func(page int, img *ocr.Image) (string, error)
}

func (r *fakeRecognizer) Recognize(_ context.Context, img *ocr.Image) (string, error) {
	r.mu.Lock()
	r.images = append(r.images, img)
	r.mu.Unlock()
	return r.fn(imagePage(img), img)
}

func (r *fakeRecognizer) Images() []*ocr.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ocr.Image(nil), r.images...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (r *eventRecorder) Sink() models.ProgressSink {
	return func(e models.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	}
}

func (r *eventRecorder) Events() []models.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressEvent(nil), r.events...)
}
