package main

import (
	"os"

	"github.com/martinemde/alita/internal/config"
	"github.com/martinemde/alita/internal/secrets"
	"github.com/martinemde/alita/unifiedllm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// resolveAPIKey looks for the provider's key in the config, then the
// environment, then the system keyring. It returns "" if none is set; some
// providers need no key.
func resolveAPIKey(cfg config.LLMConfig) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	if key := os.Getenv(secrets.KeyName(cfg.Provider)); key != "" {
		return key
	}
	key, err := secrets.GetAPIKey(cfg.Provider)
	switch {
	case err == nil:
		log.Debug().Str("provider", cfg.Provider).Msg("using API key from keyring")
	case !errors.Is(err, secrets.ErrNotFound):
		log.Warn().Err(err).Str("provider", cfg.Provider).Msg("could not read keyring")
	}
	return key
}

// newClient builds an LLM client for the configured provider. OpenAI and
// DeepSeek use the native OpenAI adapter so tool calls come back structured;
// the remaining providers go through gollm.
func newClient(cfg config.LLMConfig) (*unifiedllm.Client, error) {
	apiKey := resolveAPIKey(cfg)

	var adapter unifiedllm.ProviderAdapter
	switch cfg.Provider {
	case "openai", "deepseek":
		if apiKey == "" {
			return nil, errors.Errorf("no API key for %s: set llm.api_key or %s, or run `alita key set %s`",
				cfg.Provider, secrets.KeyName(cfg.Provider), cfg.Provider)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == "deepseek" {
			baseURL = unifiedllm.DeepSeekBaseURL
		}
		opts := []unifiedllm.OpenAIAdapterOption{unifiedllm.WithOpenAIModel(cfg.Model)}
		if baseURL != "" {
			opts = append(opts, unifiedllm.WithBaseURL(baseURL))
		}
		adapter = unifiedllm.NewOpenAIAdapter(cfg.Provider, apiKey, opts...)
	default:
		a, err := unifiedllm.NewGollmAdapter(cfg.Provider, apiKey,
			unifiedllm.WithModel(cfg.Model),
			unifiedllm.WithTemperature(cfg.Temperature),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s adapter", cfg.Provider)
		}
		adapter = a
	}

	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(policy)),
	), nil
}
