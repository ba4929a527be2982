// Package openaiapi implements a provider backed by an OpenAI-compatible
// chat completion API. Any endpoint speaking the protocol works through the
// BaseURL override (OpenAI, OpenRouter, Ollama, vLLM and friends).
package openaiapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/chathub/chathub/internal/provider"
)

// Options configures the API provider.
type Options struct {
	APIKey            string
	BaseURL           string // empty uses the OpenAI default
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int // 0 disables client-side rate limiting
}

// Client is an API-backed chat provider.
type Client struct {
	name    string
	opts    Options
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	client *openai.Client
}

var _ provider.Provider = (*Client)(nil)

// New creates an API provider. Init must be called before use.
func New(name string, opts Options, logger zerolog.Logger) *Client {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	c := &Client{
		name:   name,
		opts:   opts,
		logger: logger.With().Str("provider", name).Logger(),
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), opts.RequestsPerMinute)
	}
	return c
}

func (c *Client) Name() string        { return c.name }
func (c *Client) Kind() provider.Kind { return provider.KindAPI }

// Init builds the underlying client.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	cfg := openai.DefaultConfig(c.opts.APIKey)
	if c.opts.BaseURL != "" {
		cfg.BaseURL = c.opts.BaseURL
	}
	c.client = openai.NewClientWithConfig(cfg)
	c.logger.Info().Str("model", c.opts.Model).Str("baseUrl", cfg.BaseURL).Msg("API provider ready")
	return nil
}

func (c *Client) api() (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, provider.ErrNotInitialized
	}
	return c.client, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Send performs a blocking chat completion.
func (c *Client) Send(ctx context.Context, message string, history []provider.Message) (*provider.Response, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := api.CreateChatCompletion(ctx, c.request(message, history))
	if err != nil {
		return nil, c.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	return &provider.Response{
		Content:  resp.Choices[0].Message.Content,
		Provider: c.name,
		Model:    resp.Model,
		Usage: &provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Stream performs a streaming chat completion, forwarding each content delta.
func (c *Client) Stream(ctx context.Context, message string, history []provider.Message, onDelta provider.DeltaFunc) error {
	api, err := c.api()
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	req := c.request(message, history)
	req.Stream = true

	stream, err := api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return c.wrapErr(err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return c.wrapErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onDelta(delta)
		}
	}
}

// Models lists models from the backend, falling back to the configured model
// when the endpoint does not implement listing.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}

	list, err := api.ListModels(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Model listing unavailable")
		return []string{c.opts.Model}, nil
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	if len(models) == 0 {
		models = []string{c.opts.Model}
	}
	return models, nil
}

// Healthy probes the backend with a model listing.
func (c *Client) Healthy(ctx context.Context) bool {
	api, err := c.api()
	if err != nil {
		return false
	}
	_, err = api.ListModels(ctx)
	return err == nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (c *Client) Close() error { return nil }

func (c *Client) request(message string, history []provider.Message) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	req := openai.ChatCompletionRequest{
		Model:    c.opts.Model,
		Messages: messages,
	}
	if c.opts.Temperature > 0 {
		req.Temperature = float32(c.opts.Temperature)
	}
	if c.opts.MaxTokens > 0 {
		req.MaxTokens = c.opts.MaxTokens
	}
	return req
}

func (c *Client) wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %s", provider.ErrRateLimited, apiErr.Message)
	}
	return err
}
