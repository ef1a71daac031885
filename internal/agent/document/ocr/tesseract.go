package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// TesseractConfig configures local OCR.
type TesseractConfig struct {
	Languages     []string
	PageSegMode   gosseract.PageSegMode
	Preprocessors []Preprocessor
}

// TesseractGenerator runs libtesseract in-process. It ignores the
// instruction and token limits.
type TesseractGenerator struct {
	cfg TesseractConfig
}

func NewTesseractGenerator(cfg TesseractConfig) *TesseractGenerator {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if cfg.PageSegMode == 0 {
		cfg.PageSegMode = gosseract.PSM_AUTO
	}
	if cfg.Preprocessors == nil {
		cfg.Preprocessors = DefaultPreprocessors()
	}
	return &TesseractGenerator{cfg: cfg}
}

func (g *TesseractGenerator) Name() string { return "tesseract" }

func (g *TesseractGenerator) Generate(ctx context.Context, req *Request) (*Reply, error) {
	img, _, err := image.Decode(bytes.NewReader(req.Image.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	processed, err := Preprocess(img, g.cfg.Preprocessors)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// one client per call; gosseract clients are not safe for concurrent use
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(g.cfg.Languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(g.cfg.PageSegMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	text = strings.TrimSpace(text)
	return &Reply{Text: &text}, nil
}
