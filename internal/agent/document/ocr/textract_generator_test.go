package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTextract struct {
	out *textract.DetectDocumentTextOutput
	err error
	got *textract.DetectDocumentTextInput
}

func (f *fakeTextract) DetectDocumentText(_ context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.got = in
	return f.out, f.err
}

func TestTextractGenerator_Generate(t *testing.T) {
	api := &fakeTextract{out: &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		{BlockType: types.BlockTypePage},
		{BlockType: types.BlockTypeLine, Text: aws.String("Invoice #1234"), Confidence: aws.Float32(99)},
		{BlockType: types.BlockTypeLine, Text: aws.String("smudge"), Confidence: aws.Float32(12)},
		{BlockType: types.BlockTypeWord, Text: aws.String("Invoice"), Confidence: aws.Float32(99)},
		{BlockType: types.BlockTypeLine, Text: aws.String("Total: 42"), Confidence: aws.Float32(90)},
	}}}
	g := NewTextractGeneratorWithClient(api, 80)

	reply, err := g.Generate(context.Background(), &Request{Image: testImage()})
	require.NoError(t, err)
	assert.Equal(t, "Invoice #1234\nTotal: 42", ExtractText(reply, DefaultStrategies))
	assert.Equal(t, testImage().Data, api.got.Document.Bytes)
}

func TestTextractGenerator_Error(t *testing.T) {
	g := NewTextractGeneratorWithClient(&fakeTextract{err: errors.New("throttled")}, 0)
	_, err := g.Generate(context.Background(), &Request{Image: testImage()})
	assert.ErrorContains(t, err, "throttled")
}
