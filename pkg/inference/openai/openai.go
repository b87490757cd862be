package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/sifthq/sift/pkg/inference"
)

// Config holds OpenAI-specific configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// Client implements inference.Client for OpenAI chat models.
type Client struct {
	client *openai.Client
}

func New(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)

	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{client: openai.NewClientWithConfig(clientConfig)}
}

func (c *Client) ID() string {
	return "openai"
}

func (c *Client) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(fmt.Errorf("openai api error: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, inference.ErrEmptyResponse
	}

	choice := resp.Choices[0]

	return &inference.GenerateResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: inference.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) CheckModel(ctx context.Context, modelID string) error {
	_, err := c.client.GetModel(ctx, modelID)
	if err == nil {
		return nil
	}

	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		switch apierr.HTTPStatusCode {
		case 401, 403, 404:
			return fmt.Errorf("%w: %s", inference.ErrModelUnavailable, modelID)
		}
	}

	return fmt.Errorf("openai model check error: %w", err)
}

func classify(err error) error {
	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		if apierr.HTTPStatusCode >= 400 && apierr.HTTPStatusCode < 500 && apierr.HTTPStatusCode != 429 {
			return inference.Permanent(err)
		}
	}
	return err
}
