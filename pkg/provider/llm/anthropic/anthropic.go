// Package anthropic provides an LLM provider backed by the Anthropic Messages
// API through the official anthropic-sdk-go client.
//
// This is the default extraction backend: the discovery prompt is tuned for
// claude-3-haiku, which answers the single-shot JSON request quickly and
// cheaply.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/MrWong99/cockpit/pkg/provider/llm"
)

// Defaults applied when the request leaves the corresponding field unset.
const (
	DefaultModel     = "claude-3-haiku-20240307"
	DefaultMaxTokens = 500
)

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using the Anthropic Messages API.
type Provider struct {
	client sdk.Client
	model  string
}

type config struct {
	baseURL string
	timeout time.Duration
	retries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default Anthropic API base URL. Useful for
// proxies and tests.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how many times the SDK retries transient failures.
// The SDK default is 2.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// New constructs a Provider. An empty model selects [DefaultModel]. A missing
// API key is an error: the caller is expected to run without a provider
// rather than send unauthenticated requests.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{retries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.retries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.retries))
	}

	return &Provider{client: sdk.NewClient(reqOpts...), model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build params: %w", err)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("anthropic: response has no text content")
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &llm.CompletionResponse{
		Content: sb.String(),
		Model:   string(msg.Model),
		Usage: llm.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) (sdk.MessageNewParams, error) {
	var (
		messages []sdk.MessageParam
		system   []string
	)
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case llm.RoleUser:
			messages = append(messages, sdk.NewUserMessage(block))
		case llm.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(block))
		case llm.RoleSystem:
			// The Messages API has no system role; fold into the system field.
			system = append(system, m.Content)
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	if len(messages) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("request has no user or assistant messages")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	maxTokens = modelCapabilities(p.model).ClampMaxTokens(maxTokens)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	for _, s := range system {
		params.System = append(params.System, sdk.TextBlockParam{Text: s})
	}
	if req.Temperature != 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return params, nil
}

func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-3-haiku"), strings.HasPrefix(lower, "claude-3-opus"):
		return llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}
	case strings.HasPrefix(lower, "claude-3"):
		return llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}
	}
	return llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 64_000}
}
