package pdf

import (
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// DefaultMinTextChars is the trimmed length a text layer must exceed to be
// trusted. Scanned pages often carry a few stray characters from
// watermarks or metadata.
const DefaultMinTextChars = 20

// TextLayerExtractor reads the embedded text of a page.
type TextLayerExtractor struct {
	minChars int
	logger   logger.Logger
}

func NewTextLayerExtractor(minChars int, log logger.Logger) *TextLayerExtractor {
	if minChars <= 0 {
		minChars = DefaultMinTextChars
	}
	return &TextLayerExtractor{minChars: minChars, logger: log}
}

// Extract returns the page's fragments joined with single spaces. Parse
// failures are logged and yield "".
func (e *TextLayerExtractor) Extract(page Page) string {
	fragments, err := page.TextFragments()
	if err != nil {
		e.logger.Warn("Text layer extraction failed",
			logger.Int("page", page.Index()),
			logger.Error(err),
		)
		return ""
	}
	return joinFragments(fragments)
}

// Usable reports whether text is long enough to skip OCR.
func (e *TextLayerExtractor) Usable(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > e.minChars
}

// joinFragments keeps fragments as they are, empty ones included; only the
// joined result is trimmed.
func joinFragments(fragments []string) string {
	return strings.TrimSpace(strings.Join(fragments, " "))
}
