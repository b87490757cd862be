// Package inference abstracts the model backends behind a single client
// interface so the engine stays provider-agnostic.
package inference

import "context"

// Client is implemented by every model backend.
type Client interface {
	// Generate produces a complete response (blocking).
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// CheckModel probes whether the given model can be invoked with the
	// configured credentials. A nil return means the model is usable.
	CheckModel(ctx context.Context, modelID string) error

	// ID returns the backend identifier, e.g. "bedrock".
	ID() string
}

// GenerateRequest contains all parameters for a single model call.
type GenerateRequest struct {
	// Model is the backend-specific model identifier.
	Model string `json:"model"`

	// System is an optional system prompt.
	System string `json:"system,omitempty"`

	// Prompt is the user turn.
	Prompt string `json:"prompt"`

	// Temperature controls randomness.
	Temperature float32 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling.
	TopP float32 `json:"top_p,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stop sequences where generation should stop.
	Stop []string `json:"stop,omitempty"`
}

type GenerateResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
