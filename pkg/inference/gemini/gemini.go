package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/sifthq/sift/pkg/inference"
)

// Config holds Gemini-specific configuration.
type Config struct {
	APIKey string
}

// Client implements inference.Client for Gemini models via the GenAI API.
type Client struct {
	client *genai.Client
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) ID() string {
	return "gemini"
}

func (c *Client) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	config := &genai.GenerateContentConfig{}

	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	if req.TopP > 0 {
		config.TopP = genai.Ptr(req.TopP)
	}

	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, classify(fmt.Errorf("gemini api error: %w", err))
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, inference.ErrEmptyResponse
	}

	candidate := resp.Candidates[0]

	var content string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			content += part.Text
		}
	}

	response := &inference.GenerateResponse{
		Content:      content,
		Model:        req.Model,
		FinishReason: string(candidate.FinishReason),
	}

	if resp.UsageMetadata != nil {
		response.Usage = inference.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return response, nil
}

// CheckModel issues a one-token generation; unknown models and bad keys are
// rejected before any meaningful output is produced.
func (c *Client) CheckModel(ctx context.Context, modelID string) error {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText("ping")},
		},
	}

	_, err := c.client.Models.GenerateContent(ctx, modelID, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: 1,
	})
	if err == nil {
		return nil
	}

	var apierr genai.APIError
	if errors.As(err, &apierr) {
		switch apierr.Code {
		case 400, 401, 403, 404:
			return fmt.Errorf("%w: %s", inference.ErrModelUnavailable, modelID)
		}
	}

	return fmt.Errorf("gemini model check error: %w", err)
}

func classify(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		if apierr.Code >= 400 && apierr.Code < 500 && apierr.Code != 429 {
			return inference.Permanent(err)
		}
	}
	return err
}
