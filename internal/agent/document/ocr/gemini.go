package ocr

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiGenerator calls the Gemini generateContent API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (*Reply, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Instruction),
			genai.NewPartFromBytes(req.Image.Data, req.Image.MimeType),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	return geminiReply(resp), nil
}

func geminiReply(resp *genai.GenerateContentResponse) *Reply {
	r := &Reply{}
	if resp == nil {
		return r
	}
	r.Response = resp
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var cand Candidate
		for _, p := range c.Content.Parts {
			if p != nil {
				cand.Content = append(cand.Content, Part{Text: p.Text})
			}
		}
		r.Candidates = append(r.Candidates, cand)
	}
	return r
}
