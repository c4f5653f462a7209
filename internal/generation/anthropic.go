package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-recall/internal/configuration"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

// Anthropic calls the messages endpoint.
type Anthropic struct {
	client anthropic.Client
	config configuration.GenerationConfig
}

// NewAnthropic builds an Anthropic provider with SDK retries disabled.
func NewAnthropic(cfg configuration.GenerationConfig) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), config: cfg}
}

// Name returns the provider name.
func (p *Anthropic) Name() string { return ProviderAnthropic }

// Complete sends prompt as a single user message and joins the text blocks
// of the reply.
func (p *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.config.Model),
		MaxTokens:   int64(p.config.MaxTokens),
		Temperature: anthropic.Float(p.config.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", evalerrors.NewRemoteError(ProviderAnthropic, apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
