package pdf

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

var (
	// ErrDocumentLoad means the input is not a readable PDF. Nothing was processed.
	ErrDocumentLoad = errors.New("failed to load document")
	// ErrPageNotFound means a page index outside [1, PageCount] was requested.
	ErrPageNotFound = errors.New("page not found")
	// ErrNoTextExtracted means every page finished without usable text.
	ErrNoTextExtracted = errors.New("no text extracted from document")
)

// Page is a read-only view of one page.
type Page interface {
	// Index is 1-based.
	Index() int
	// TextFragments returns the lines of the embedded text layer.
	TextFragments() ([]string, error)
	// Raster renders the page at the given resolution.
	Raster(dpi float64) (image.Image, error)
}

// Document is a loaded PDF. Pages are obtained lazily and may be read
// concurrently.
type Document interface {
	ID() string
	PageCount() int
	Page(index int) (Page, error)
	Metadata() models.DocumentMetadata
	Close() error
}

// Loader opens raw document bytes.
type Loader interface {
	Load(id string, data []byte) (Document, error)
}

// PDFLoader validates with pdfcpu and reads pages with ledongthuc/pdf.
// Rendering goes through MuPDF, opened on first use.
type PDFLoader struct {
	logger logger.Logger
	conf   *model.Configuration
}

func NewLoader(log logger.Logger) *PDFLoader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFLoader{logger: log.Named("loader"), conf: conf}
}

func (l *PDFLoader) Load(id string, data []byte) (Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDocumentLoad)
	}

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), l.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentLoad, err)
	}

	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentLoad, err)
	}

	pages := resolvePageCount(pctx.PageCount, reader.NumPage())
	if pctx.PageCount != reader.NumPage() {
		l.logger.Warn("Page count mismatch between parsers",
			logger.Int("validated", pctx.PageCount),
			logger.Int("reader", reader.NumPage()),
		)
	}
	if pages <= 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrDocumentLoad)
	}

	hash := sha256.Sum256(data)
	hashStr := hex.EncodeToString(hash[:])
	if id == "" {
		id = hashStr[:8]
	}

	doc := &pdfDocument{
		id:     id,
		data:   data,
		reader: reader,
		pages:  pages,
	}
	doc.meta = models.DocumentMetadata{
		ID:        id,
		FileSize:  int64(len(data)),
		MimeType:  "application/pdf",
		Pages:     pages,
		CreatedAt: time.Now(),
		Hash:      hashStr,
	}
	doc.meta.Title, doc.meta.Author = readInfo(reader)

	l.logger.Debug("Document loaded",
		logger.String("document", id),
		logger.Int("pages", pages),
		logger.Int("bytes", len(data)),
	)
	return doc, nil
}

// resolvePageCount keeps every page either parser can see. Pages beyond the
// text reader's reach get no text layer and go to OCR.
func resolvePageCount(validated, reader int) int {
	return max(validated, reader)
}

// openReader guards against parser panics on malformed cross-reference data.
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func readInfo(r *pdf.Reader) (title, author string) {
	defer func() {
		if recover() != nil {
			title, author = "", ""
		}
	}()
	trailer := r.Trailer()
	if trailer.IsNull() {
		return "", ""
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return "", ""
	}
	if v := info.Key("Title"); !v.IsNull() {
		title = strings.TrimSpace(v.Text())
	}
	if v := info.Key("Author"); !v.IsNull() {
		author = strings.TrimSpace(v.Text())
	}
	return title, author
}

type pdfDocument struct {
	id     string
	data   []byte
	reader *pdf.Reader
	pages  int
	meta   models.DocumentMetadata

	// ledongthuc/pdf keeps no locks of its own
	textMu sync.Mutex

	renderMu  sync.Mutex
	renderer  *fitz.Document
	renderErr error
	closed    bool
}

func (d *pdfDocument) ID() string                        { return d.id }
func (d *pdfDocument) PageCount() int                    { return d.pages }
func (d *pdfDocument) Metadata() models.DocumentMetadata { return d.meta }

func (d *pdfDocument) Page(index int) (Page, error) {
	if index < 1 || index > d.pages {
		return nil, fmt.Errorf("%w: index %d, document has %d pages", ErrPageNotFound, index, d.pages)
	}
	return &pdfPage{doc: d, index: index}, nil
}

// openRenderer must be called with renderMu held.
func (d *pdfDocument) openRenderer() (*fitz.Document, error) {
	if d.closed {
		return nil, errors.New("document is closed")
	}
	if d.renderer == nil && d.renderErr == nil {
		d.renderer, d.renderErr = fitz.NewFromMemory(d.data)
	}
	return d.renderer, d.renderErr
}

func (d *pdfDocument) Close() error {
	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	d.closed = true
	if d.renderer != nil {
		err := d.renderer.Close()
		d.renderer = nil
		return err
	}
	return nil
}

type pdfPage struct {
	doc   *pdfDocument
	index int
}

func (p *pdfPage) Index() int { return p.index }

func (p *pdfPage) TextFragments() (fragments []string, err error) {
	p.doc.textMu.Lock()
	defer p.doc.textMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			fragments, err = nil, fmt.Errorf("text layer parse panic on page %d: %v", p.index, rec)
		}
	}()

	// pages the text reader cannot reach fall through to OCR
	if p.index > p.doc.reader.NumPage() {
		return nil, nil
	}
	page := p.doc.reader.Page(p.index)
	if page.V.IsNull() {
		return nil, nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get text from page %d: %w", p.index, err)
	}
	return strings.Split(text, "\n"), nil
}

func (p *pdfPage) Raster(dpi float64) (image.Image, error) {
	p.doc.renderMu.Lock()
	defer p.doc.renderMu.Unlock()
	renderer, err := p.doc.openRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to open renderer: %w", err)
	}
	img, err := renderer.ImageDPI(p.index-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", p.index, err)
	}
	return img, nil
}
