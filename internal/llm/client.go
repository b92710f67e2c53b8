// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
	"github.com/ggonzalez94/tradeagent/internal/httpx"
	"github.com/ggonzalez94/tradeagent/internal/registry"
)

const (
	DefaultBaseURL     = registry.GroqBaseURL
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retries     int
}

type Client struct {
	http        *httpx.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func New(opts Options, httpOpts ...httpx.Option) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		http:        httpx.New(opts.Timeout, opts.Retries, httpOpts...),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      strings.TrimSpace(opts.APIKey),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Available reports whether the client has credentials to call the API.
func (c *Client) Available() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) Model() string { return c.model }

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends messages and returns the content of the first choice. The
// model is asked for a JSON object response.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if !c.Available() {
		return "", clierr.New(clierr.CodeAuth, "model API key is not configured")
	}
	body, err := json.Marshal(completionRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "marshal completion request", err)
	}

	var resp completionResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/chat/completions", body, headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", clierr.New(clierr.CodeUnavailable, "model returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", clierr.New(clierr.CodeUnavailable, "model returned empty content")
	}
	return content, nil
}
