package agent

import (
	"context"
	"fmt"
	"strings"

	cfg "github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/ocr"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// Supported OCR providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderTextract  = "textract"
	ProviderTesseract = "tesseract"
)

// NewGenerator builds the OCR backend named by ocrCfg.Provider.
func NewGenerator(ctx context.Context, ocrCfg *cfg.OCRConfig, log logger.Logger) (ocr.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(ocrCfg.Provider))
	log.Info("Creating OCR generator",
		logger.String("provider", provider),
		logger.String("model", ocrCfg.Model),
	)

	switch provider {
	case ProviderGemini, "":
		gen, err := ocr.NewGeminiGenerator(ctx, ocr.GeminiConfig{
			APIKey:  ocrCfg.APIKey,
			Model:   ocrCfg.Model,
			BaseURL: ocrCfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case ProviderOpenAI:
		return ocr.NewOpenAIGenerator(ocr.OpenAIConfig{
			APIKey:  ocrCfg.APIKey,
			Model:   ocrCfg.Model,
			BaseURL: ocrCfg.BaseURL,
		}), nil
	case ProviderOllama:
		return ocr.NewOllamaClient(ocr.OllamaConfig{
			Endpoint: ocrCfg.BaseURL,
			Model:    ocrCfg.Model,
		}), nil
	case ProviderTextract:
		tc := cfg.GetTextractConfig()
		gen, err := ocr.NewTextractGenerator(ctx, ocr.TextractConfig{
			Region:        tc.Region,
			Endpoint:      tc.Endpoint,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: float32(tc.MinConfidence),
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case ProviderTesseract:
		return ocr.NewTesseractGenerator(ocr.TesseractConfig{
			Languages: ocrCfg.Languages,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", ocrCfg.Provider)
	}
}

// NewTranscriber wires the page pipeline around gen.
func NewTranscriber(gen ocr.Generator, pipeline cfg.PipelineConfig, log logger.Logger) document.Transcriber {
	client := ocr.NewClient(gen, ocr.ClientConfig{
		Instruction:     pipeline.OCR.Instruction,
		MaxOutputTokens: pipeline.OCR.MaxOutputTokens,
		Timeout:         pipeline.OCR.Timeout(),
	}, log)

	return pdf.NewProcessor(
		pdf.NewLoader(log),
		pdf.JPEGRasterizer{},
		client,
		pdf.OptionsFromConfig(pipeline),
		log,
	)
}
