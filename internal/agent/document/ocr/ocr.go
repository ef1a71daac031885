// Package ocr submits rendered page images to a vision-capable text
// generation service and normalizes the reply into plain text.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// DefaultInstruction is the fixed prompt sent with every page image.
const DefaultInstruction = "Extract all readable text from the provided image of a PDF page. " +
	"Return ONLY the extracted plain text. Do not add commentary or headers."

// DefaultMaxOutputTokens caps the reply length.
const DefaultMaxOutputTokens = 4096

var (
	// ErrCall is matched by every error returned from Recognize.
	ErrCall = errors.New("ocr call failed")
	// ErrTimeout marks calls that exceeded the configured timeout.
	ErrTimeout = errors.New("ocr call timed out")
)

// Image is an encoded page raster.
type Image struct {
	Data     []byte
	MimeType string
	Scale    float64
	Quality  float64
}

// PayloadSize is the length of the base64 form submitted to the service.
func (i *Image) PayloadSize() int {
	if i == nil {
		return 0
	}
	return base64.StdEncoding.EncodedLen(len(i.Data))
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i *Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Base64())
}

// Request is one OCR call.
type Request struct {
	Instruction     string
	Image           *Image
	MaxOutputTokens int
	Temperature     float32
}

// Generator is an already-configured vision text-generation backend.
// Credentials and model selection happen at construction time.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Reply, error)
}

// Recognizer turns a page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img *Image) (string, error)
}

// CallError wraps a provider failure. errors.Is(err, ErrCall) holds for it.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ocr call to %s failed: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() []error {
	return []error{ErrCall, e.Err}
}
