package ocr

import (
	"strings"
)

// TextAccessor is a provider response object that can render its own text.
type TextAccessor interface {
	Text() string
}

// TextFunc adapts a function to TextAccessor.
type TextFunc func() string

func (f TextFunc) Text() string { return f() }

// Reply is the structurally typed provider response. Generators fill
// whichever shapes their provider returns.
type Reply struct {
	// Text is a direct text field. A non-nil empty value still counts as a match.
	Text *string
	// Response exposes a text accessor.
	Response TextAccessor
	// Candidates is a candidate list with nested content parts.
	Candidates []Candidate
}

type Candidate struct {
	Content []Part
}

type Part struct {
	Text string
}

// TextStrategy extracts text from one reply shape; ok is false when the
// shape is absent.
type TextStrategy struct {
	Name    string
	Extract func(r *Reply) (text string, ok bool)
}

// DefaultStrategies are tried in order; the first match wins.
var DefaultStrategies = []TextStrategy{
	{Name: "text", Extract: directText},
	{Name: "response", Extract: responseText},
	{Name: "candidates", Extract: candidateText},
}

func directText(r *Reply) (string, bool) {
	if r.Text == nil {
		return "", false
	}
	return *r.Text, true
}

func responseText(r *Reply) (string, bool) {
	if r.Response == nil {
		return "", false
	}
	return r.Response.Text(), true
}

func candidateText(r *Reply) (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	for _, p := range r.Candidates[0].Content {
		if p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}

// ExtractText runs strategies in order and returns the first match, or ""
// when none matches. A panicking accessor counts as no match.
func ExtractText(r *Reply, strategies []TextStrategy) (text string) {
	if r == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	for _, s := range strategies {
		if t, ok := s.Extract(r); ok {
			return t
		}
	}
	return ""
}

// StringPtr is a helper for building replies with a direct text field.
func StringPtr(s string) *string { return &s }

func joinLines(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
