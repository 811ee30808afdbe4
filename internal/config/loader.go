package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"anthropic", "openai", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm to be configured"))
		}
		slog.Warn("no LLM provider configured; extraction will use lexical matching only")
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required"))
	}
	if cfg.Store.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("store.max_conns %d must not be negative", cfg.Store.MaxConns))
	}

	// Session
	if cfg.Session.Debounce < 0 {
		errs = append(errs, fmt.Errorf("session.debounce %s must be positive", cfg.Session.Debounce))
	}
	if cfg.Session.CorrectionWindow < 0 {
		errs = append(errs, fmt.Errorf("session.correction_window %s must be positive", cfg.Session.CorrectionWindow))
	}
	if cfg.Session.MinChunkChars < 0 {
		errs = append(errs, fmt.Errorf("session.min_chunk_chars %d must not be negative", cfg.Session.MinChunkChars))
	}

	// Extraction
	if cfg.Extraction.ModelTimeout < 0 {
		errs = append(errs, fmt.Errorf("extraction.model_timeout %s must be positive", cfg.Extraction.ModelTimeout))
	}
	if cfg.Extraction.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("extraction.max_tokens %d must not be negative", cfg.Extraction.MaxTokens))
	}
	if cfg.Extraction.MaxCallsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("extraction.max_calls_per_minute %d must not be negative", cfg.Extraction.MaxCallsPerMinute))
	}
	if t := cfg.Extraction.ConfidenceThreshold; t < 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("extraction.confidence_threshold %.2f is out of range [0, 1)", t))
	}

	// Recognizer
	if cfg.Recognizer.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("recognizer.restart_delay %s must be positive", cfg.Recognizer.RestartDelay))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
