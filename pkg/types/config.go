// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "research-brief/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on HTTP 429/503 (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AIConfig holds shared settings for stages that call a generative text service.
type AIConfig struct {
	// Provider selects the backend: "claude" or "gemini".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
}

// EmbeddingConfig holds settings for the embedding service boundary.
type EmbeddingConfig struct {
	// Provider selects the backend: "openai" (any OpenAI-compatible endpoint) or "gemini".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// BaseURL is the OpenAI-compatible API root (default https://api.openai.com/v1).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Model is the embedding model (default text-embedding-3-small).
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// RedisAddr enables the shared Redis embedding cache when set (host:port).
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`

	// CacheTTL is the lifetime of cached vectors (default 1h).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// MaxLRU bounds the in-process vector cache (default 2048).
	MaxLRU int `json:"max_lru" yaml:"max_lru" mapstructure:"max_lru"`
}

// DiscoveryConfig holds settings for source discovery.
type DiscoveryConfig struct {
	// BaseFeeds are always fetched, ahead of derived feeds.
	BaseFeeds []string `json:"base_feeds" yaml:"base_feeds" mapstructure:"base_feeds"`

	// BaseSocial are always queried, ahead of derived queries.
	BaseSocial []string `json:"base_social" yaml:"base_social" mapstructure:"base_social"`

	// MaxPerCategory caps each category proposed by the generative call (default 5).
	MaxPerCategory int `json:"max_per_category" yaml:"max_per_category" mapstructure:"max_per_category"`
}

// AcquisitionConfig holds settings for the budgeted acquisition cascade.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Budget is the global item budget; values >= UnlimitedBudgetSentinel mean unlimited.
	Budget int `json:"budget" yaml:"budget" mapstructure:"budget"`

	// MaxWebsites caps how many discovered websites are probed for feeds (default 3).
	MaxWebsites int `json:"max_websites" yaml:"max_websites" mapstructure:"max_websites"`

	// MaxTopicFeeds caps topic-search feed candidates (default 3).
	MaxTopicFeeds int `json:"max_topic_feeds" yaml:"max_topic_feeds" mapstructure:"max_topic_feeds"`

	// SocialBearerToken enables the social fetcher. Empty means degraded mode.
	SocialBearerToken string `json:"social_bearer_token,omitempty" yaml:"social_bearer_token,omitempty" mapstructure:"social_bearer_token"`

	// SocialRequestsPerSecond paces social queries (default 1).
	SocialRequestsPerSecond float64 `json:"social_requests_per_second" yaml:"social_requests_per_second" mapstructure:"social_requests_per_second"`
}

// RelevanceConfig holds settings for the relevance filter.
type RelevanceConfig struct {
	// Mode is "vector" (default) or "generative".
	Mode ScoringMode `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Threshold is the minimum accepted score in [0, 1] (default 0.5).
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// BatchSize is the number of item texts per embedding request (default 100).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// MaxChars caps the text embedded per item (default 8000).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`

	// Workers is the generative scoring pool width (default 10).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// RequestsPerSecond paces generative scoring calls; 0 disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// AuditDir receives the scores_/accepted_ JSON files; empty disables them.
	AuditDir string `json:"audit_dir" yaml:"audit_dir" mapstructure:"audit_dir"`
}

// ClusteringConfig holds settings for theme clustering.
type ClusteringConfig struct {
	// MaxSampled caps items previewed for theme identification (default 50).
	MaxSampled int `json:"max_sampled" yaml:"max_sampled" mapstructure:"max_sampled"`

	// MaxFacts caps extracted key facts (default 15).
	MaxFacts int `json:"max_facts" yaml:"max_facts" mapstructure:"max_facts"`

	// FactItems is how many top items feed fact extraction (default 20).
	FactItems int `json:"fact_items" yaml:"fact_items" mapstructure:"fact_items"`
}

// PipelineConfig groups all stage configurations for one run.
type PipelineConfig struct {
	AI          AIConfig          `json:"ai" yaml:"ai" mapstructure:"ai"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Discovery   DiscoveryConfig   `json:"discovery" yaml:"discovery" mapstructure:"discovery"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	Relevance   RelevanceConfig   `json:"relevance" yaml:"relevance" mapstructure:"relevance"`
	Clustering  ClusteringConfig  `json:"clustering" yaml:"clustering" mapstructure:"clustering"`

	// OutputDir holds audit files, cluster results, and the run ledger.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// DefaultConfig returns a PipelineConfig with every default filled in.
func DefaultConfig() PipelineConfig {
	return PipelineConfig{
		AI: AIConfig{
			Provider: "claude",
			Model:    "claude-sonnet-4-5-20250929",
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "text-embedding-3-small",
			CacheTTL: time.Hour,
			MaxLRU:   2048,
		},
		Discovery: DiscoveryConfig{
			MaxPerCategory: 5,
		},
		Acquisition: AcquisitionConfig{
			HTTPConfig: HTTPConfig{
				Timeout:    15 * time.Second,
				UserAgent:  "research-brief/0.1",
				MaxRetries: 2,
			},
			Budget:                  UnlimitedBudgetSentinel,
			MaxWebsites:             3,
			MaxTopicFeeds:           3,
			SocialRequestsPerSecond: 1,
		},
		Relevance: RelevanceConfig{
			Mode:      ModeVector,
			Threshold: 0.5,
			BatchSize: 100,
			MaxChars:  8000,
			Workers:   10,
		},
		Clustering: ClusteringConfig{
			MaxSampled: 50,
			MaxFacts:   15,
			FactItems:  20,
		},
		OutputDir: "output",
	}
}
