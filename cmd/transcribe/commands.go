package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/feichai0017/pdf-transcriber/config"
	"github.com/feichai0017/pdf-transcriber/internal/agent"
	"github.com/feichai0017/pdf-transcriber/internal/agent/document/pdf"
	"github.com/feichai0017/pdf-transcriber/internal/models"
	"github.com/feichai0017/pdf-transcriber/internal/utils/validator"
	"github.com/feichai0017/pdf-transcriber/pkg/converters"
	"github.com/feichai0017/pdf-transcriber/pkg/logger"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "transcribe a PDF, falling back to OCR for pages without a text layer",
		ArgsUsage: "<file.pdf>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the result to `FILE` instead of stdout"},
			&cli.BoolFlag{Name: "json", Usage: "emit the structured result as JSON"},
			&cli.StringFlag{Name: "provider", Usage: "OCR provider (gemini, openai, ollama, textract, tesseract)", EnvVars: []string{"OCR_PROVIDER"}},
			&cli.StringFlag{Name: "model", Usage: "OCR model name", EnvVars: []string{"OCR_MODEL"}},
			&cli.StringFlag{Name: "pipeline", Usage: "pipeline config `FILE`", Value: "config/pipeline.yaml", EnvVars: []string{"PIPELINE_CONFIG"}},
			&cli.IntFlag{Name: "concurrency", Usage: "pages processed in parallel (default from pipeline config)"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-page OCR timeout (default from pipeline config)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress progress output"},
		},
		Action: runExtract,
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "print page count and document metadata",
		ArgsUsage: "<file.pdf>",
		Action: func(c *cli.Context) error {
			path, data, err := readInput(c, validator.DefaultMaxFileSize)
			if err != nil {
				return err
			}
			doc, err := pdf.NewLoader(newLogger(c)).Load(filepath.Base(path), data)
			if err != nil {
				return err
			}
			defer doc.Close()

			meta := doc.Metadata()
			out := c.App.Writer
			fmt.Fprintf(out, "File:   %s\n", path)
			fmt.Fprintf(out, "Pages:  %d\n", doc.PageCount())
			fmt.Fprintf(out, "Title:  %s\n", meta.Title)
			fmt.Fprintf(out, "Author: %s\n", meta.Author)
			fmt.Fprintf(out, "SHA256: %s\n", meta.Hash)
			return nil
		},
	}
}

func runExtract(c *cli.Context) error {
	log := newLogger(c)
	defer log.Sync()

	pipeline, err := config.LoadPipeline(c.String("pipeline"))
	if err != nil {
		return err
	}
	if c.IsSet("concurrency") {
		pipeline.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("timeout") {
		pipeline.OCR.TimeoutSec = int(c.Duration("timeout") / time.Second)
	}
	if err := pipeline.Validate(); err != nil {
		return err
	}

	path, data, err := readInput(c, int64(pipeline.MaxFileMB)*1024*1024)
	if err != nil {
		return err
	}

	ocrCfg := *config.GetOCRConfig()
	if p := c.String("provider"); p != "" {
		ocrCfg.Provider = p
	}
	if m := c.String("model"); m != "" {
		ocrCfg.Model = m
	}

	ctx := c.Context
	gen, err := agent.NewGenerator(ctx, &ocrCfg, log)
	if err != nil {
		return err
	}
	transcriber := agent.NewTranscriber(gen, pipeline, log)

	var sink models.ProgressSink
	if !c.Bool("quiet") {
		sink = progressPrinter(c.App.ErrWriter)
	}

	start := time.Now()
	transcript, runErr := transcriber.Transcribe(ctx, filepath.Base(path), data, sink)
	if transcript == nil {
		return runErr
	}
	transcript.Metadata.FileName = filepath.Base(path)
	transcript.Metadata.FileSize = int64(len(data))

	if err := writeResult(c, transcript, time.Since(start), runErr); err != nil {
		return err
	}
	if errors.Is(runErr, pdf.ErrNoTextExtracted) {
		return cli.Exit(runErr.Error(), 2)
	}
	return runErr
}

func readInput(c *cli.Context, maxSize int64) (string, []byte, error) {
	if c.NArg() != 1 {
		return "", nil, cli.Exit("expected exactly one PDF path", 64)
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	v := validator.NewDocumentValidator(logger.NewNop(), &validator.ValidatorConfig{MaxFileSize: maxSize})
	if err := v.ValidateBytes(filepath.Base(path), data).Err(); err != nil {
		return "", nil, err
	}
	return path, data, nil
}

func writeResult(c *cli.Context, t *models.Transcript, elapsed time.Duration, runErr error) error {
	var out io.Writer = c.App.Writer
	if name := c.String("out"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if !c.Bool("json") {
		_, err := fmt.Fprintln(out, t.String())
		return err
	}

	doc, err := converters.NewJSONConverter().Convert(t)
	if err != nil {
		return err
	}
	doc.TaskID = t.DocumentID
	doc.Metadata.ProcessingMs = elapsed.Milliseconds()
	if runErr != nil {
		doc.Status = string(models.StatusFailed)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func progressPrinter(w io.Writer) models.ProgressSink {
	return func(e models.ProgressEvent) {
		if e.TotalPages > 0 && e.PageIndex > 0 {
			fmt.Fprintf(w, "[%3.0f%%] %s\n", e.Fraction()*100, e.Message)
			return
		}
		fmt.Fprintln(w, e.Message)
	}
}

func newLogger(c *cli.Context) logger.Logger {
	if !c.Bool("verbose") {
		return logger.NewNop()
	}
	log, err := logger.NewLogger(
		logger.WithLevel("debug"),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return logger.NewNop()
	}
	return log
}
