package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/ahrav/go-recall/internal/configuration"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

// Google calls the Gemini API.
type Google struct {
	client *genai.Client
	config configuration.GenerationConfig
}

// NewGoogle builds a Gemini provider.
func NewGoogle(ctx context.Context, cfg configuration.GenerationConfig) (*Google, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &Google{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *Google) Name() string { return ProviderGoogle }

// Complete sends prompt as a single user turn and joins the text parts of
// the first candidate.
func (p *Google) Complete(ctx context.Context, prompt string) (string, error) {
	temperature := float32(p.config.Temperature)
	// #nosec G115 -- bounded by min
	maxTokens := int32(min(p.config.MaxTokens, math.MaxInt32))

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model,
		[]*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: prompt}},
		}},
		&genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: maxTokens,
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", evalerrors.NewRemoteError(ProviderGoogle, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("google: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}
