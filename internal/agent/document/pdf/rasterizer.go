package pdf

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
)

// RenderProfile is a resolution/compression pair. Quality is in (0, 1].
type RenderProfile struct {
	Scale   float64
	Quality float64
}

var (
	OCRProfile     = RenderProfile{Scale: 1.5, Quality: 0.7}
	ReducedProfile = RenderProfile{Scale: 1.0, Quality: 0.55}
)

// DPI maps scale 1.0 to the PDF user-space resolution of 72 dpi.
func (p RenderProfile) DPI() float64 { return 72 * p.Scale }

// JPEGQuality converts Quality to the 1-100 encoder range.
func (p RenderProfile) JPEGQuality() int {
	q := int(math.Round(p.Quality * 100))
	return max(1, min(100, q))
}

// Rasterizer renders a page to an encoded image.
type Rasterizer interface {
	Render(ctx context.Context, page Page, profile RenderProfile) (*ocr.Image, error)
}

// JPEGRasterizer renders through Page.Raster and encodes to JPEG.
type JPEGRasterizer struct{}

func (JPEGRasterizer) Render(ctx context.Context, page Page, profile RenderProfile) (*ocr.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := page.Raster(profile.DPI())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(profile.JPEGQuality())); err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page.Index(), err)
	}
	return &ocr.Image{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Scale:    profile.Scale,
		Quality:  profile.Quality,
	}, nil
}
