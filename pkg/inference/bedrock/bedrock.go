package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/bedrockruntime"

	"github.com/sifthq/sift/pkg/inference"
)

// Config holds Bedrock-specific configuration. Credentials are optional; the
// default AWS credential chain is used when they are empty.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Endpoint        string
}

// Client implements inference.Client on the Bedrock runtime Converse API.
type Client struct {
	runtime *bedrockruntime.BedrockRuntime
}

func New(cfg Config) (*Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	}

	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &Client{runtime: bedrockruntime.New(sess)}, nil
}

func (c *Client) ID() string {
	return "bedrock"
}

func (c *Client) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		Messages: []*bedrockruntime.Message{
			{
				Role: aws.String(bedrockruntime.ConversationRoleUser),
				Content: []*bedrockruntime.ContentBlock{
					{Text: aws.String(req.Prompt)},
				},
			},
		},
		InferenceConfig: &bedrockruntime.InferenceConfiguration{},
	}

	if req.System != "" {
		input.System = []*bedrockruntime.SystemContentBlock{
			{Text: aws.String(req.System)},
		}
	}

	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int64(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float64(float64(req.Temperature))
	}

	if req.TopP > 0 {
		input.InferenceConfig.TopP = aws.Float64(float64(req.TopP))
	}

	if len(req.Stop) > 0 {
		input.InferenceConfig.StopSequences = aws.StringSlice(req.Stop)
	}

	resp, err := c.runtime.ConverseWithContext(ctx, input)
	if err != nil {
		return nil, classify(fmt.Errorf("bedrock converse error: %w", err))
	}

	if resp.Output == nil || resp.Output.Message == nil {
		return nil, inference.ErrEmptyResponse
	}

	var content strings.Builder
	for _, block := range resp.Output.Message.Content {
		if block.Text != nil {
			content.WriteString(aws.StringValue(block.Text))
		}
	}

	response := &inference.GenerateResponse{
		Content:      content.String(),
		Model:        req.Model,
		FinishReason: aws.StringValue(resp.StopReason),
	}

	if resp.Usage != nil {
		response.Usage = inference.Usage{
			PromptTokens:     int(aws.Int64Value(resp.Usage.InputTokens)),
			CompletionTokens: int(aws.Int64Value(resp.Usage.OutputTokens)),
			TotalTokens:      int(aws.Int64Value(resp.Usage.TotalTokens)),
		}
	}

	return response, nil
}

// CheckModel invokes the model with an empty body. An enabled model rejects
// the body with a validation error; a disabled or unknown one is denied
// before validation runs.
func (c *Client) CheckModel(ctx context.Context, modelID string) error {
	_, err := c.runtime.InvokeModelWithContext(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        []byte("{}"),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err == nil {
		return nil
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case bedrockruntime.ErrCodeAccessDeniedException, bedrockruntime.ErrCodeResourceNotFoundException:
			return fmt.Errorf("%w: %s", inference.ErrModelUnavailable, modelID)
		case bedrockruntime.ErrCodeValidationException:
			return nil
		}
	}

	return fmt.Errorf("bedrock model check error: %w", err)
}

// classify marks errors that will not succeed on retry as permanent.
func classify(err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case bedrockruntime.ErrCodeAccessDeniedException,
			bedrockruntime.ErrCodeResourceNotFoundException,
			bedrockruntime.ErrCodeValidationException:
			return inference.Permanent(err)
		}
	}
	return err
}
