// Package contextsearch is the HTTP adapter for the remote context search
// service. A Client issues exactly one request per Search call; retrying is
// the caller's job.
package contextsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-recall/internal/configuration"
	"github.com/ahrav/go-recall/internal/domain"
	evalerrors "github.com/ahrav/go-recall/internal/errors"
)

// ServiceName identifies the context search service in errors and metrics.
const ServiceName = "context_search"

// maxErrorBody bounds how much of a failed response is retained.
const maxErrorBody = 64 << 10

// Client searches the remote context store.
type Client struct {
	config     configuration.ContextSearchConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. The configured timeout is not
// applied to a supplied client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l.With("component", "context_search") }
}

// New builds a Client. When RequestsPerSecond is positive every request
// first waits on a token bucket limiter shared by all goroutines.
func New(cfg configuration.ContextSearchConfig, opts ...Option) *Client {
	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "context_search"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchRequest is the wire body of a search call.
type searchRequest struct {
	Query               string  `json:"query"`
	Metadata            any     `json:"metadata"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// searchResponse is the part of the reply this client interprets.
type searchResponse struct {
	Contexts []domain.ContextSnippet `json:"contexts"`
}

// Search sends one request for question and returns the retrieved
// snippets, possibly none. A non-2xx reply yields a *errors.RemoteError.
func (c *Client) Search(ctx context.Context, question string) ([]domain.ContextSnippet, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := c.Build(ctx, question)
	if err != nil {
		return nil, evalerrors.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("context search request: %w", err)
	}
	defer resp.Body.Close()

	return c.Parse(resp)
}

// Build constructs the HTTP request for question.
func (c *Client) Build(ctx context.Context, question string) (*http.Request, error) {
	body, err := json.Marshal(searchRequest{
		Query:               question,
		Metadata:            nil,
		SimilarityThreshold: c.config.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	return req, nil
}

// Parse decodes a search response. A missing or null contexts field is an
// empty result, not an error.
func (c *Client) Parse(resp *http.Response) ([]domain.ContextSnippet, error) {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("context search rejected",
			"status", resp.StatusCode,
			"body_bytes", len(body))
		return nil, evalerrors.NewRemoteError(ServiceName, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%s: %w", ServiceName, evalerrors.ErrEmptyResponse)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if decoded.Contexts == nil {
		return []domain.ContextSnippet{}, nil
	}
	return decoded.Contexts, nil
}
