package ocr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// TextractConfig configures the Textract generator.
type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractGenerator runs Textract line detection on a page image. It
// ignores the instruction; Textract has no prompt.
type TextractGenerator struct {
	client        TextractAPI
	minConfidence float32
}

func NewTextractGenerator(ctx context.Context, cfg TextractConfig) (*TextractGenerator, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewTextractGeneratorWithClient(client, cfg.MinConfidence), nil
}

func NewTextractGeneratorWithClient(client TextractAPI, minConfidence float32) *TextractGenerator {
	return &TextractGenerator{client: client, minConfidence: minConfidence}
}

func (g *TextractGenerator) Name() string { return "textract" }

func (g *TextractGenerator) Generate(ctx context.Context, req *Request) (*Reply, error) {
	out, err := g.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: req.Image.Data},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	text := joinLines(g.lines(out.Blocks))
	return &Reply{Text: &text}, nil
}

func (g *TextractGenerator) lines(blocks []types.Block) []string {
	var texts []string
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < g.minConfidence {
			continue
		}
		texts = append(texts, *block.Text)
	}
	return texts
}
