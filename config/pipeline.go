package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineConfig holds the page pipeline tunables.
type PipelineConfig struct {
	TextLayer   TextLayerConfig `yaml:"text_layer"`
	Render      RenderConfig    `yaml:"render"`
	OCR         OCRTuning       `yaml:"ocr"`
	Concurrency int             `yaml:"concurrency"`
	MaxFileMB   int             `yaml:"max_file_mb"`
}

// TextLayerConfig controls when an embedded text layer is trusted.
type TextLayerConfig struct {
	MinChars int `yaml:"min_chars"` // usable when trimmed length exceeds this
}

// RenderConfig holds rasterization profiles and the payload budget.
type RenderConfig struct {
	Scale           float64 `yaml:"scale"`
	OCRQuality      float64 `yaml:"ocr_quality"` // first OCR attempt
	ReducedScale    float64 `yaml:"reduced_scale"`
	ReducedQuality  float64 `yaml:"reduced_quality"`
	MaxPayloadBytes int     `yaml:"max_payload_bytes"` // base64 length
}

// OCRTuning holds the request parameters sent to the OCR provider.
type OCRTuning struct {
	TimeoutSec      int    `yaml:"timeout_sec"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	Instruction     string `yaml:"instruction"`
}

// Timeout returns the per-call OCR timeout.
func (o OCRTuning) Timeout() time.Duration {
	return time.Duration(o.TimeoutSec) * time.Second
}

// DefaultPipelineConfig returns the built-in defaults.
func DefaultPipelineConfig() PipelineConfig {
	var c PipelineConfig
	c.ApplyDefaults()
	return c
}

// LoadPipeline reads path, expands ${VAR} / ${VAR:-default} references and
// applies defaults. A missing file yields the defaults.
func LoadPipeline(path string) (PipelineConfig, error) {
	var cfg PipelineConfig

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg.ApplyDefaults()
		return cfg, nil
	case err != nil:
		return PipelineConfig{}, fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return PipelineConfig{}, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills zero fields.
func (c *PipelineConfig) ApplyDefaults() {
	if c.TextLayer.MinChars <= 0 {
		c.TextLayer.MinChars = 20
	}
	if c.Render.Scale <= 0 {
		c.Render.Scale = 1.5
	}
	if c.Render.OCRQuality <= 0 {
		c.Render.OCRQuality = 0.7
	}
	if c.Render.ReducedScale <= 0 {
		c.Render.ReducedScale = 1.0
	}
	if c.Render.ReducedQuality <= 0 {
		c.Render.ReducedQuality = 0.55
	}
	if c.Render.MaxPayloadBytes <= 0 {
		c.Render.MaxPayloadBytes = 3_500_000
	}
	if c.OCR.TimeoutSec <= 0 {
		c.OCR.TimeoutSec = 60
	}
	if c.OCR.MaxOutputTokens <= 0 {
		c.OCR.MaxOutputTokens = 4096
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxFileMB <= 0 {
		c.MaxFileMB = 10
	}
}

// Validate checks ranges that defaults cannot fix.
func (c *PipelineConfig) Validate() error {
	for name, q := range map[string]float64{
		"render.ocr_quality":     c.Render.OCRQuality,
		"render.reduced_quality": c.Render.ReducedQuality,
	} {
		if q > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %g", name, q)
		}
	}
	if c.Render.ReducedScale > c.Render.Scale {
		return fmt.Errorf("render.reduced_scale (%g) must not exceed render.scale (%g)", c.Render.ReducedScale, c.Render.Scale)
	}
	if c.Concurrency > 32 {
		return fmt.Errorf("concurrency must be at most 32, got %d", c.Concurrency)
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
