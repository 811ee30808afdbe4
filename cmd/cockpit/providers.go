package main

import (
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/cockpit/internal/app"
	"github.com/MrWong99/cockpit/internal/config"
	"github.com/MrWong99/cockpit/pkg/provider/llm"
	"github.com/MrWong99/cockpit/pkg/provider/llm/anthropic"
	"github.com/MrWong99/cockpit/pkg/provider/llm/anyllm"
	"github.com/MrWong99/cockpit/pkg/provider/llm/openai"
)

// registerBuiltinProviders wires all built-in LLM factories into reg.
// anthropic and openai use their native SDKs; everything else goes through
// any-llm-go.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anthropic.Option
		if entry.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(entry.BaseURL))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, anthropic.WithMaxRetries(n))
		}
		return anthropic.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// gemini, deepseek, mistral, groq, llamacpp, llamafile all share the same
	// pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the primary LLM and its fallbacks. A backend
// that cannot be constructed is skipped with a warning, so a missing API key
// degrades extraction to the lexical path instead of refusing to start.
func buildProviders(cfg *config.Config, reg *config.Registry) *app.Providers {
	ps := &app.Providers{}
	if cfg.Providers.LLM.Name == "" {
		return ps
	}

	entries := append([]config.ProviderEntry{cfg.Providers.LLM}, cfg.Providers.LLMFallbacks...)
	for i, entry := range entries {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			slog.Warn("llm provider unavailable, skipping", "name", entry.Name, "fallback", i > 0, "err", err)
			continue
		}
		ps.LLM = append(ps.LLM, app.NamedLLM{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "fallback", i > 0)
	}
	if len(ps.LLM) == 0 {
		slog.Warn("no llm provider available, extraction runs lexical only")
	}
	return ps
}

// optString extracts a string value from a provider options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes integers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	n, ok := opts[key].(int)
	return n, ok
}
