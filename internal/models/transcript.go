package models

import (
	"fmt"
	"strings"
)

// Transcript is the ordered set of page results for one document.
type Transcript struct {
	DocumentID string           `json:"documentId"`
	Metadata   DocumentMetadata `json:"metadata"`
	Pages      []PageResult     `json:"pages"`
}

// String renders the transcript with one marker line per page:
//
//	--- Page 2 (OCR) ---
//	Invoice #1234
func (t *Transcript) String() string {
	var sb strings.Builder
	for _, p := range t.Pages {
		fmt.Fprintf(&sb, "\n--- Page %d (%s) ---\n", p.PageIndex, p.Method.Label())
		if p.Content != "" {
			sb.WriteString(p.Content)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

// HasContent reports whether any page produced non-blank text.
func (t *Transcript) HasContent() bool {
	for _, p := range t.Pages {
		if strings.TrimSpace(p.Content) != "" {
			return true
		}
	}
	return false
}

// Methods returns the per-page methods in page order.
func (t *Transcript) Methods() []Method {
	out := make([]Method, len(t.Pages))
	for i, p := range t.Pages {
		out[i] = p.Method
	}
	return out
}

// Counts tallies pages by method.
func (t *Transcript) Counts() map[Method]int {
	out := make(map[Method]int, 4)
	for _, p := range t.Pages {
		out[p.Method]++
	}
	return out
}
