package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sifthq/sift/pkg/inference"
)

// Config holds Anthropic-specific configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client implements inference.Client for Anthropic Claude models.
type Client struct {
	client anthropic.Client
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{client: anthropic.NewClient(opts...)}
}

func (c *Client) ID() string {
	return "anthropic"
}

func (c *Client) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	msgReq := anthropic.MessageNewParams{
		Model: anthropic.Model(req.Model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.System != "" {
		msgReq.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	// Anthropic requires max_tokens.
	msgReq.MaxTokens = int64(req.MaxTokens)
	if msgReq.MaxTokens <= 0 {
		msgReq.MaxTokens = 4096
	}

	if req.Temperature > 0 {
		msgReq.Temperature = anthropic.Float(float64(req.Temperature))
	}

	if req.TopP > 0 {
		msgReq.TopP = anthropic.Float(float64(req.TopP))
	}

	if len(req.Stop) > 0 {
		msgReq.StopSequences = req.Stop
	}

	resp, err := c.client.Messages.New(ctx, msgReq)
	if err != nil {
		return nil, classify(fmt.Errorf("anthropic api error: %w", err))
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	if content.Len() == 0 {
		return nil, inference.ErrEmptyResponse
	}

	return &inference.GenerateResponse{
		Content:      content.String(),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: inference.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// CheckModel sends a one-token message; an unknown model or bad credentials
// fail the call before any meaningful generation happens.
func (c *Client) CheckModel(ctx context.Context, modelID string) error {
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err == nil {
		return nil
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 401, 403, 404:
			return fmt.Errorf("%w: %s", inference.ErrModelUnavailable, modelID)
		}
	}

	return fmt.Errorf("anthropic model check error: %w", err)
}

func classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode >= 400 && apierr.StatusCode < 500 && apierr.StatusCode != 429 && apierr.StatusCode != 408 {
			return inference.Permanent(err)
		}
	}
	return err
}
