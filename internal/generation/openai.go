package generation

import (
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-recall/internal/configuration"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	config configuration.GenerationConfig
}

// NewOpenAI builds an OpenAI provider. BaseURL overrides the API root.
func NewOpenAI(cfg configuration.GenerationConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), config: cfg}
}

// Name returns the provider name.
func (p *OpenAI) Name() string { return ProviderOpenAI }

// Complete sends prompt as a single user message.
func (p *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: openAITemperature(p.config.Temperature),
		MaxTokens:   p.config.MaxTokens,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// openAITemperature keeps a zero temperature on the wire. The request field
// is omitempty, so 0 would otherwise fall back to the server default.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// wrapOpenAIError maps SDK errors with an HTTP status to RemoteError.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return evalerrors.NewRemoteError(ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return evalerrors.NewRemoteError(ProviderOpenAI, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return fmt.Errorf("openai: %w", err)
}
