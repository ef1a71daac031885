package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/pdf-transcriber/internal/metrics"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

// ClientConfig tunes the requests a Client sends.
type ClientConfig struct {
	Instruction     string
	MaxOutputTokens int
	Timeout         time.Duration
	Strategies      []TextStrategy
}

// Client implements Recognizer on top of a Generator.
type Client struct {
	gen    Generator
	cfg    ClientConfig
	logger logger.Logger
}

func NewClient(gen Generator, cfg ClientConfig, log logger.Logger) *Client {
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	return &Client{gen: gen, cfg: cfg, logger: log.Named("ocr")}
}

// Provider returns the generator name.
func (c *Client) Provider() string { return c.gen.Name() }

type generateResult struct {
	reply *Reply
	err   error
}

// Recognize submits img with the fixed instruction at temperature 0. Any
// provider error, including a timeout, is returned as *CallError. A reply
// with no recognizable shape yields "" and no error.
func (c *Client) Recognize(ctx context.Context, img *Image) (string, error) {
	provider := c.gen.Name()
	if img == nil || len(img.Data) == 0 {
		return "", &CallError{Provider: provider, Err: errors.New("empty image")}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}
	defer cancel()

	req := &Request{
		Instruction:     c.cfg.Instruction,
		Image:           img,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
		Temperature:     0,
	}

	start := time.Now()
	done := make(chan generateResult, 1)
	go func() {
		reply, err := c.gen.Generate(callCtx, req)
		done <- generateResult{reply: reply, err: err}
	}()

	var res generateResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		// the generator ignored its context
		res = generateResult{err: callCtx.Err()}
	}
	elapsed := time.Since(start)
	metrics.OCRRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())

	if res.err != nil {
		err := res.err
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, c.cfg.Timeout, err)
		}
		metrics.OCRRequestsTotal.WithLabelValues(provider, status).Inc()
		c.logger.Warn("OCR request failed",
			logger.String("provider", provider),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return "", &CallError{Provider: provider, Err: err}
	}

	metrics.OCRRequestsTotal.WithLabelValues(provider, "success").Inc()
	text := ExtractText(res.reply, c.cfg.Strategies)
	c.logger.Debug("OCR request completed",
		logger.String("provider", provider),
		logger.Int("payloadBytes", img.PayloadSize()),
		logger.Int("chars", len(text)),
		logger.Duration("elapsed", elapsed),
	)
	return text, nil
}
