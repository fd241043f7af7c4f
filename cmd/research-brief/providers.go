// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-brief/internal/embedding"
	"github.com/pdiddy/research-brief/internal/llm"
	"github.com/pdiddy/research-brief/internal/secrets"
	"github.com/pdiddy/research-brief/pkg/types"
)

const generatorTimeout = 120 * time.Second

// secretDefault returns value when set, else the loaded secret for key.
func secretDefault(key, value string) string {
	if value != "" {
		return value
	}
	return loadedSecrets.Get(key)
}

// newGenerator builds the configured generative backend.
func newGenerator(ctx context.Context, cfg types.AIConfig, httpCfg types.HTTPConfig) (llm.Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "claude":
		key := secretDefault(secrets.AnthropicAPIKey, cfg.APIKey)
		if key == "" {
			return nil, fmt.Errorf("no Anthropic API key: set .secrets/%s or %s", secrets.AnthropicAPIKey, secrets.EnvName(secrets.AnthropicAPIKey))
		}
		return &llm.ClaudeBackend{
			APIKey:     key,
			Model:      cfg.Model,
			Client:     &http.Client{Timeout: generatorTimeout},
			MaxRetries: httpCfg.MaxRetries,
		}, nil
	case "gemini":
		model := cfg.Model
		if strings.HasPrefix(model, "claude") {
			model = ""
		}
		g, err := llm.NewGeminiBackend(ctx, secretDefault(secrets.GeminiAPIKey, cfg.APIKey), model)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generative provider %q (want claude or gemini)", cfg.Provider)
	}
}

// embedderResources are released after a run.
type embedderResources struct {
	redis *embedding.RedisCache
}

func (r embedderResources) Close() {
	if r.redis != nil {
		r.redis.Close()
	}
}

// newEmbedder builds the configured embedding backend wrapped in the vector
// cache. A missing key is not an error: the returned Embedder is nil and
// relevance scoring falls back to generative mode.
func newEmbedder(ctx context.Context, cfg types.EmbeddingConfig) (embedding.Embedder, embedderResources, error) {
	var res embedderResources
	var backend embedding.Embedder
	model := cfg.Model

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		key := secretDefault(secrets.OpenAIAPIKey, cfg.APIKey)
		if key == "" {
			logger.Warn("no embedding API key, relevance scoring will use the generative fallback",
				zap.String("secret", secrets.OpenAIAPIKey))
			return nil, res, nil
		}
		backend = &embedding.HTTPBackend{
			BaseURL: cfg.BaseURL,
			Model:   model,
			APIKey:  key,
			Client:  &http.Client{Timeout: 60 * time.Second},
		}
	case "gemini":
		if model == types.DefaultConfig().Embedding.Model {
			model = ""
		}
		key := secretDefault(secrets.GeminiAPIKey, cfg.APIKey)
		if key == "" {
			logger.Warn("no embedding API key, relevance scoring will use the generative fallback",
				zap.String("secret", secrets.GeminiAPIKey))
			return nil, res, nil
		}
		g, err := embedding.NewGeminiBackend(ctx, key, model)
		if err != nil {
			return nil, res, err
		}
		backend = g
	default:
		return nil, res, fmt.Errorf("unknown embedding provider %q (want openai or gemini)", cfg.Provider)
	}

	var shared embedding.VectorCache
	if cfg.RedisAddr != "" {
		rc, err := embedding.NewRedisCache(ctx, cfg.RedisAddr, logger)
		if err != nil {
			logger.Warn("redis embedding cache unavailable, using the local cache only", zap.Error(err))
		} else {
			res.redis = rc
			shared = rc
		}
	}
	return embedding.NewCached(backend, model, cfg.MaxLRU, shared, cfg.CacheTTL, logger), res, nil
}

// loadPersona reads a PersonaContext from a YAML file. An empty path yields
// a persona with only the name set.
func loadPersona(path, name string) (types.PersonaContext, error) {
	p := types.PersonaContext{Persona: name}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading persona file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing persona file %s: %w", path, err)
	}
	if name != "" {
		p.Persona = name
	}
	return p, nil
}
