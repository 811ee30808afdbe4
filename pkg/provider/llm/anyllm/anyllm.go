// Package anyllm backs every extraction provider that has no native SDK
// wrapper in cockpit (Gemini, DeepSeek, Mistral, Groq and the local Ollama,
// llama.cpp and llamafile servers) with github.com/mozilla-ai/any-llm-go.
//
// cmd/cockpit registers one factory per name in [Backends]:
//
//	p, err := anyllm.New("mistral", "mistral-small-latest", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/cockpit/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider adapts an any-llm-go backend to llm.Provider.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

type backendFunc func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps a lowercase provider name to its any-llm-go constructor.
// openai and anthropic are reachable here as well, although cockpit prefers
// the native packages for them.
var backends = map[string]backendFunc{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Backends returns the provider names accepted by [New], sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New creates a Provider for the named backend. Without an API key option the
// backend reads its usual environment variable (MISTRAL_API_KEY and so on);
// local servers need none.
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	switch {
	case providerName == "":
		return nil, errors.New("anyllm: providerName must not be empty")
	case model == "":
		return nil, errors.New("anyllm: model must not be empty")
	}

	create, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q, supported: %s", providerName, strings.Join(Backends(), ", "))
	}
	backend, err := create(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model}, nil
}

// Complete sends one completion request and returns the first choice. The
// reported model is the configured one, since some local servers echo back a
// file path instead.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params := p.buildParams(req)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: empty choices in response")
	}

	choice := resp.Choices[0]
	result := &llm.CompletionResponse{
		Content: choice.Message.ContentString(),
		Model:   p.model,
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// Capabilities reports the limits of the configured model.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// buildParams maps req onto any-llm-go params, system prompt first.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}

	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if mt := modelCapabilities(p.model).ClampMaxTokens(req.MaxTokens); mt > 0 {
		params.MaxTokens = &mt
	}

	return params
}

// knownModels holds limits by model-name prefix, most specific first.
var knownModels = []struct {
	prefix string
	caps   llm.ModelCapabilities
}{
	{"gpt-4o", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gpt-4-turbo", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}},
	{"gpt-4", llm.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"gpt-3.5-turbo", llm.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}},
	{"o1-mini", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{"o1", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"o3", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"claude-3-haiku", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
	{"claude-3-opus", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
	{"claude", llm.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"gemini-1.5-pro", llm.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192}},
	{"gemini-1.5-flash", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini-2.0-flash", llm.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini", llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192}},
}

// modelCapabilities returns conservative limits for unknown models such as
// local GGUF files.
func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, m := range knownModels {
		if strings.HasPrefix(lower, m.prefix) {
			return m.caps
		}
	}
	return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}
