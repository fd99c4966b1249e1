// Package chat sends prompts to a hosted chat-completion deployment and
// returns the first reply.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayusman/wavebuddy/internal/log"
)

// Defaults applied by NewClient.
const (
	DefaultMaxTokens  = 60
	DefaultAPIVersion = "2024-02-15-preview"
	DefaultAuthHeader = "api-key"
	DefaultTimeout    = 20 * time.Second
	DefaultMaxRetries = 1
	DefaultRetryDelay = 500 * time.Millisecond
)

// Responder turns a prompt into a reply.
type Responder interface {
	Respond(ctx context.Context, prompt, persona string, maxTokens int) (string, error)
}

// Config holds client settings. Secrets come from the environment; see
// internal/config.
type Config struct {
	Endpoint   string
	Deployment string
	APIVersion string
	APIKey     string
	// AuthHeader names the header carrying the key. "Authorization" sends
	// a bearer token instead of the raw key.
	AuthHeader string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Config)

func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

func WithDeployment(name string) Option {
	return func(c *Config) { c.Deployment = name }
}

func WithAPIVersion(v string) Option {
	return func(c *Config) { c.APIVersion = v }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

func WithAuthHeader(name string) Option {
	return func(c *Config) { c.AuthHeader = name }
}

// WithMaxTokens sets the reply cap used when Respond is called with 0.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithMaxRetries sets how many extra attempts follow a 429/5xx or transport failure.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Client calls a chat-completions deployment over HTTP.
type Client struct {
	url    string
	config Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a client. Endpoint, deployment and API key are required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Config{
		APIVersion: DefaultAPIVersion,
		AuthHeader: DefaultAuthHeader,
		MaxTokens:  DefaultMaxTokens,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.Endpoint == "":
		return nil, ErrNoEndpoint
	case cfg.Deployment == "":
		return nil, ErrNoDeployment
	case cfg.APIKey == "":
		return nil, ErrNoAPIKey
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("chat")
	}

	u := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(cfg.Endpoint, "/"),
		url.PathEscape(cfg.Deployment),
		url.QueryEscape(cfg.APIVersion))

	return &Client{
		url:    u,
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Respond sends persona as the system message and prompt as the user
// message, returning the first choice's content. maxTokens <= 0 uses the
// configured cap.
func (c *Client) Respond(ctx context.Context, prompt, persona string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	start := time.Now()
	req := completionRequest{MaxTokens: maxTokens}
	if persona != "" {
		req.Messages = append(req.Messages, message{Role: "system", Content: persona})
	}
	req.Messages = append(req.Messages, message{Role: "user", Content: prompt})

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", wrap("decode response", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: blank content", ErrEmptyResponse)
	}

	c.logger.Debug("chat completed", "latency_ms", time.Since(start).Milliseconds(), "chars", len(content))
	return content, nil
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrap("marshal payload", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrap("retry", ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, wrap("create request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = wrap("send request", err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			c.logger.Warn("request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		c.logger.Warn("retryable status", "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, lastErr
}

func (c *Client) authorize(req *http.Request) {
	if strings.EqualFold(c.config.AuthHeader, "Authorization") {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		return
	}
	req.Header.Set(c.config.AuthHeader, c.config.APIKey)
}

func parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	msg := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
		code = errResp.Error.Code
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &APIError{StatusCode: resp.StatusCode, Message: msg, Code: code}
}
