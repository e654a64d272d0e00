// Package config provides configuration loading for the augmentd core.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the augmentation core. The embedding
// host loads it once and passes each section into the matching component
// constructor; sections are never read as process-wide globals so tests can
// override thresholds freely.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Chunker   ChunkerConfig   `koanf:"chunker"`
	Augment   AugmentConfig   `koanf:"augment"`
	Feedback  FeedbackConfig  `koanf:"feedback"`
	Summary   SummaryConfig   `koanf:"summary"`
}

// LoggingConfig mirrors logging.Config at the file/env layer.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	// BaseURL is the base URL of the embedding inference server.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name sent with each request.
	Model string `koanf:"model"`

	// APIKey is an optional bearer token for the inference server.
	APIKey Secret `koanf:"api_key"`

	// KeepAlive is the model keep-alive hint forwarded to the server.
	KeepAlive Duration `koanf:"keep_alive"`

	// BatchSize is the native batch size (tuned for the inference hardware).
	BatchSize int `koanf:"batch_size"`

	// Concurrency bounds parallel single-item calls during batch fallback.
	Concurrency int `koanf:"concurrency"`

	// RequestTimeout applies to single-item calls and the health probe base.
	RequestTimeout Duration `koanf:"request_timeout"`

	// BatchTimeoutPerItem scales the batch call timeout with batch size.
	BatchTimeoutPerItem Duration `koanf:"batch_timeout_per_item"`

	// BatchTimeoutCeiling is the hard upper bound for any batch call timeout.
	BatchTimeoutCeiling Duration `koanf:"batch_timeout_ceiling"`

	// HealthTimeout is the short timeout for IsAvailable probes.
	HealthTimeout Duration `koanf:"health_timeout"`

	// FallbackDelay paces one-at-a-time fallback calls (jittered).
	FallbackDelay Duration `koanf:"fallback_delay"`

	// CacheSize is the embedding cache capacity (entries).
	CacheSize int `koanf:"cache_size"`

	// CacheTTL expires cached vectors.
	CacheTTL Duration `koanf:"cache_ttl"`
}

// QdrantConfig configures the vector index connection.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`

	// VectorSize is the embedding dimension; it must match the active
	// embedding model (see ModelDimensions).
	VectorSize int `koanf:"vector_size"`

	MaxRetries     int      `koanf:"max_retries"`
	RetryBackoff   Duration `koanf:"retry_backoff"`
	MaxMessageSize int      `koanf:"max_message_size"`
}

// ChunkerConfig configures the code chunker.
type ChunkerConfig struct {
	MaxChunkSize int `koanf:"max_chunk_size"`
	MinChunkSize int `koanf:"min_chunk_size"`
}

// AugmentConfig configures context augmentation.
type AugmentConfig struct {
	MinSimilarityScore      float64 `koanf:"min_similarity_score"`
	MaxSimilarConversations int     `koanf:"max_similar_conversations"`
	SameAgentBoost          float64 `koanf:"same_agent_boost"`
	SynonymsFile            string  `koanf:"synonyms_file"`
	MaxExpansionTerms       int     `koanf:"max_expansion_terms"`
	FewShotLimit            int     `koanf:"few_shot_limit"`
	AntiPatternLimit        int     `koanf:"anti_pattern_limit"`
}

// FeedbackConfig configures feedback-driven preference learning.
type FeedbackConfig struct {
	CacheTTL          Duration `koanf:"cache_ttl"`
	HistoryWindow     Duration `koanf:"history_window"`
	BoostThreshold    float64  `koanf:"boost_threshold"`
	PenaltyThreshold  float64  `koanf:"penalty_threshold"`
	MinSimilarity     float64  `koanf:"min_similarity"`
	MinAgentSamples   int      `koanf:"min_agent_samples"`
	SimilarityWeight  float64  `koanf:"similarity_weight"`
	SuccessRateWeight float64  `koanf:"success_rate_weight"`
}

// SummaryConfig configures automatic user summaries.
type SummaryConfig struct {
	MinConversations int      `koanf:"min_conversations"`
	MinCharVolume    int      `koanf:"min_char_volume"`
	MinInterval      Duration `koanf:"min_interval"`
	LockTTL          Duration `koanf:"lock_ttl"`
	RecentWindow     int      `koanf:"recent_window"`
}

// ModelDimensions maps known embedding model names to their vector
// dimension. The active model's dimension must match the collection's
// configured vector size; anything else is a misconfiguration, not a
// transient failure.
func ModelDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":     768,
		"bge-base-en-v1.5":     768,
		"bge-large-en-v1.5":    1024,
		"mxbai-embed-large":    1024,
		"snowflake-arctic-embed": 1024,
	}
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8080"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.KeepAlive == 0 {
		cfg.Embedding.KeepAlive = Duration(5 * time.Minute)
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 5
	}
	if cfg.Embedding.RequestTimeout == 0 {
		cfg.Embedding.RequestTimeout = Duration(15 * time.Second)
	}
	if cfg.Embedding.BatchTimeoutPerItem == 0 {
		cfg.Embedding.BatchTimeoutPerItem = Duration(2 * time.Second)
	}
	if cfg.Embedding.BatchTimeoutCeiling == 0 {
		cfg.Embedding.BatchTimeoutCeiling = Duration(2 * time.Minute)
	}
	if cfg.Embedding.HealthTimeout == 0 {
		cfg.Embedding.HealthTimeout = Duration(2 * time.Second)
	}
	if cfg.Embedding.FallbackDelay == 0 {
		cfg.Embedding.FallbackDelay = Duration(200 * time.Millisecond)
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 2048
	}
	if cfg.Embedding.CacheTTL == 0 {
		cfg.Embedding.CacheTTL = Duration(time.Hour)
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.VectorSize == 0 {
		if dim, ok := ModelDimensions()[cfg.Embedding.Model]; ok {
			cfg.Qdrant.VectorSize = dim
		} else {
			cfg.Qdrant.VectorSize = 768
		}
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = Duration(time.Second)
	}
	if cfg.Qdrant.MaxMessageSize == 0 {
		cfg.Qdrant.MaxMessageSize = 50 * 1024 * 1024
	}

	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = 2000
	}
	if cfg.Chunker.MinChunkSize == 0 {
		cfg.Chunker.MinChunkSize = 50
	}

	if cfg.Augment.MinSimilarityScore == 0 {
		cfg.Augment.MinSimilarityScore = 0.65
	}
	if cfg.Augment.MaxSimilarConversations == 0 {
		cfg.Augment.MaxSimilarConversations = 3
	}
	if cfg.Augment.SameAgentBoost == 0 {
		cfg.Augment.SameAgentBoost = 1.15
	}
	if cfg.Augment.MaxExpansionTerms == 0 {
		cfg.Augment.MaxExpansionTerms = 4
	}
	if cfg.Augment.FewShotLimit == 0 {
		cfg.Augment.FewShotLimit = 2
	}
	if cfg.Augment.AntiPatternLimit == 0 {
		cfg.Augment.AntiPatternLimit = 3
	}

	if cfg.Feedback.CacheTTL == 0 {
		cfg.Feedback.CacheTTL = Duration(30 * time.Minute)
	}
	if cfg.Feedback.HistoryWindow == 0 {
		cfg.Feedback.HistoryWindow = Duration(30 * 24 * time.Hour)
	}
	if cfg.Feedback.BoostThreshold == 0 {
		cfg.Feedback.BoostThreshold = 0.7
	}
	if cfg.Feedback.PenaltyThreshold == 0 {
		cfg.Feedback.PenaltyThreshold = 0.3
	}
	if cfg.Feedback.MinSimilarity == 0 {
		cfg.Feedback.MinSimilarity = 0.7
	}
	if cfg.Feedback.MinAgentSamples == 0 {
		cfg.Feedback.MinAgentSamples = 2
	}
	if cfg.Feedback.SimilarityWeight == 0 {
		cfg.Feedback.SimilarityWeight = 0.3
	}
	if cfg.Feedback.SuccessRateWeight == 0 {
		cfg.Feedback.SuccessRateWeight = 0.7
	}

	if cfg.Summary.MinConversations == 0 {
		cfg.Summary.MinConversations = 10
	}
	if cfg.Summary.MinCharVolume == 0 {
		cfg.Summary.MinCharVolume = 5000
	}
	if cfg.Summary.MinInterval == 0 {
		cfg.Summary.MinInterval = Duration(24 * time.Hour)
	}
	if cfg.Summary.LockTTL == 0 {
		cfg.Summary.LockTTL = Duration(5 * time.Minute)
	}
	if cfg.Summary.RecentWindow == 0 {
		cfg.Summary.RecentWindow = 20
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url required")
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be >= 1, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Concurrency < 1 {
		return fmt.Errorf("embedding.concurrency must be >= 1, got %d", c.Embedding.Concurrency)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant.port invalid: %d", c.Qdrant.Port)
	}
	if c.Qdrant.VectorSize < 1 {
		return fmt.Errorf("qdrant.vector_size must be >= 1, got %d", c.Qdrant.VectorSize)
	}
	if dim, ok := ModelDimensions()[c.Embedding.Model]; ok && dim != c.Qdrant.VectorSize {
		return fmt.Errorf("qdrant.vector_size %d does not match model %q dimension %d",
			c.Qdrant.VectorSize, c.Embedding.Model, dim)
	}
	if c.Chunker.MinChunkSize >= c.Chunker.MaxChunkSize {
		return fmt.Errorf("chunker.min_chunk_size %d must be < max_chunk_size %d",
			c.Chunker.MinChunkSize, c.Chunker.MaxChunkSize)
	}
	if c.Augment.MinSimilarityScore < 0 || c.Augment.MinSimilarityScore > 1 {
		return fmt.Errorf("augment.min_similarity_score must be in [0,1], got %v", c.Augment.MinSimilarityScore)
	}
	if c.Feedback.PenaltyThreshold >= c.Feedback.BoostThreshold {
		return fmt.Errorf("feedback.penalty_threshold %v must be < boost_threshold %v",
			c.Feedback.PenaltyThreshold, c.Feedback.BoostThreshold)
	}
	if w := c.Feedback.SimilarityWeight + c.Feedback.SuccessRateWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("feedback similarity and success rate weights must sum to 1, got %v", w)
	}
	if c.Summary.LockTTL.Duration() <= 0 {
		return fmt.Errorf("summary.lock_ttl must be > 0")
	}
	return nil
}
