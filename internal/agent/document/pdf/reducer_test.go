package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

func TestReducer_Reduce(t *testing.T) {
	page := &fakePage{index: 1}

	tests := []struct {
		name        string
		first       int
		reduced     int
		reduceErr   error
		wantPayload int
		wantRenders int
	}{
		{name: "within budget", first: 3_500_000, wantPayload: 3_500_000, wantRenders: 0},
		{name: "reduced is smaller", first: 4_000_000, reduced: 2_000_000, wantPayload: 2_000_000, wantRenders: 1},
		{name: "reduced still over budget is kept", first: 8_000_000, reduced: 5_000_000, wantPayload: 5_000_000, wantRenders: 1},
		{name: "reduced not smaller", first: 4_000_000, reduced: 4_000_000, wantPayload: 4_000_000, wantRenders: 1},
		{name: "reduced render fails", first: 4_000_000, reduceErr: errors.New("oom"), wantPayload: 4_000_000, wantRenders: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raster := &fakeRasterizer{fn: func(p Page, profile RenderProfile) (*ocr.Image, error) {
				if tt.reduceErr != nil {
					return nil, tt.reduceErr
				}
				return pageImage(p.Index(), tt.reduced, profile), nil
			}}
			r := NewReducer(raster, DefaultMaxPayloadBytes, ReducedProfile, logger.NewTestLogger())

			first := pageImage(1, tt.first, OCRProfile)
			got := r.Reduce(context.Background(), page, first)

			require.NotNil(t, got)
			assert.Equal(t, tt.wantPayload, got.PayloadSize())
			assert.LessOrEqual(t, got.PayloadSize(), first.PayloadSize())
			assert.Len(t, raster.Calls(), tt.wantRenders)
			for _, c := range raster.Calls() {
				assert.Equal(t, ReducedProfile, c.profile)
			}
		})
	}
}

func TestRenderProfile(t *testing.T) {
	assert.Equal(t, 108.0, OCRProfile.DPI())
	assert.Equal(t, 70, OCRProfile.JPEGQuality())
	assert.Equal(t, 55, ReducedProfile.JPEGQuality())
	assert.Equal(t, 1, RenderProfile{Quality: 0}.JPEGQuality())
	assert.Equal(t, 100, RenderProfile{Quality: 3}.JPEGQuality())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DefaultPipelineConfig())
	assert.Equal(t, OCRProfile, opts.OCRProfile)
	assert.Equal(t, ReducedProfile, opts.ReducedProfile)
	assert.Equal(t, DefaultMaxPayloadBytes, opts.MaxPayloadBytes)
	assert.Equal(t, DefaultMinTextChars, opts.MinTextChars)
}

func TestTextLayerExtractor(t *testing.T) {
	e := NewTextLayerExtractor(0, logger.NewTestLogger())

	page := &fakePage{index: 1, fragments: []string{"  Quarterly ", "", "\tReport  ", "2024"}}
	assert.Equal(t, "Quarterly   \tReport   2024", e.Extract(page))

	spaced := &fakePage{index: 3, fragments: []string{"ab", "", "cd", "", "ef", "", "gh", "", "ij", "", "kl", "", "mn"}}
	text := e.Extract(spaced)
	assert.Equal(t, "ab  cd  ef  gh  ij  kl  mn", text)
	assert.True(t, e.Usable(text), "empty fragments still contribute their separators")

	assert.False(t, e.Usable("   short watermark   "))
	assert.False(t, e.Usable(" 12345678901234567890 "))
	assert.True(t, e.Usable("123456789012345678901"))
	assert.True(t, e.Usable("ééééééééééééééééééééé"), "length counts characters, not bytes")

	assert.Equal(t, "", e.Extract(&fakePage{index: 2, textErr: errors.New("bad xref")}))
}
