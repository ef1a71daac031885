package config

import (
	"sync"
)

var (
	ocrOnce   sync.Once
	ocrConfig *OCRConfig
)

// OCRConfig selects and authenticates the vision OCR provider.
// Provider is one of gemini, openai, ollama, textract, tesseract.
type OCRConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Languages []string
}

func GetOCRConfig() *OCRConfig {
	ocrOnce.Do(func() {
		loadEnv()
		provider := getEnv("OCR_PROVIDER", "gemini")
		ocrConfig = &OCRConfig{
			Provider:  provider,
			Model:     getEnv("OCR_MODEL", defaultModel(provider)),
			APIKey:    getEnv("OCR_API_KEY", apiKeyFallback(provider)),
			BaseURL:   getEnv("OCR_BASE_URL", ""),
			Languages: []string{getEnv("TESSERACT_LANG", "eng")},
		}
	})
	return ocrConfig
}

func defaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-2.0-flash"
	case "openai":
		return "gpt-4o-mini"
	case "ollama":
		return "llama3.2-vision"
	default:
		return ""
	}
}

func apiKeyFallback(provider string) string {
	switch provider {
	case "gemini":
		return getEnv("GEMINI_API_KEY", "")
	case "openai":
		return getEnv("OPENAI_API_KEY", "")
	default:
		return ""
	}
}
