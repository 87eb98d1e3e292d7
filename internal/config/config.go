// Package config loads the application configuration from a YAML file,
// applying defaults for anything left unset.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bull/ragdesk/internal/chunker"
	"github.com/bull/ragdesk/internal/embedding"
	"github.com/bull/ragdesk/internal/retriever"
	"github.com/bull/ragdesk/internal/ticket"
)

// ErrInvalid marks configuration that parsed but cannot be used.
var ErrInvalid = errors.New("invalid config")

// PathsConfig locates the on-disk artifacts.
type PathsConfig struct {
	Docs    string `yaml:"docs"`
	Index   string `yaml:"index"`
	Tickets string `yaml:"tickets"`
	History string `yaml:"history"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// RetrieverConfig configures query-time retrieval.
type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// ModelsConfig names the OpenAI models in play.
type ModelsConfig struct {
	Embedding string `yaml:"embedding"`
	Dimension int    `yaml:"dimension"`
	Chat      string `yaml:"chat"`
}

// ResolverConfig configures the ticket resolver.
type ResolverConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	Workers    int    `yaml:"workers"`
	WebhookURL string `yaml:"webhook_url"`
}

// Config is the root application configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Models    ModelsConfig    `yaml:"models"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	LogLevel  string          `yaml:"log_level"`
}

// Load reads a config from path. A missing file yields the defaults; a file
// that parses but violates an invariant yields ErrInvalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Paths.Docs == "" {
		cfg.Paths.Docs = "docs"
	}
	if cfg.Paths.Index == "" {
		cfg.Paths.Index = "data/index.json"
	}
	if cfg.Paths.Tickets == "" {
		cfg.Paths.Tickets = "data/tickets.db"
	}
	if cfg.Paths.History == "" {
		cfg.Paths.History = "data/history.json"
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = chunker.DefaultMaxTokens
	}
	if cfg.Chunker.OverlapTokens == 0 {
		cfg.Chunker.OverlapTokens = chunker.DefaultOverlapTokens
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = retriever.DefaultTopK
	}
	if cfg.Retriever.ScoreThreshold == 0 {
		cfg.Retriever.ScoreThreshold = retriever.DefaultScoreThreshold
	}
	if cfg.Models.Embedding == "" {
		cfg.Models.Embedding = embedding.DefaultModel
	}
	if cfg.Models.Dimension == 0 {
		cfg.Models.Dimension = embedding.DefaultDimension
	}
	if cfg.Models.Chat == "" {
		cfg.Models.Chat = "gpt-4o-mini"
	}
	if cfg.Resolver.MaxRetries == 0 {
		cfg.Resolver.MaxRetries = ticket.DefaultMaxRetries
	}
	if cfg.Resolver.Workers == 0 {
		cfg.Resolver.Workers = ticket.DefaultWorkers
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func (cfg *Config) validate() error {
	if cfg.Chunker.OverlapTokens >= cfg.Chunker.MaxTokens {
		return fmt.Errorf("%w: chunker overlap %d must be less than max tokens %d",
			ErrInvalid, cfg.Chunker.OverlapTokens, cfg.Chunker.MaxTokens)
	}
	if cfg.Retriever.TopK < 1 {
		return fmt.Errorf("%w: retriever top_k must be positive", ErrInvalid)
	}
	if cfg.Retriever.ScoreThreshold < 0 || cfg.Retriever.ScoreThreshold > 1 {
		return fmt.Errorf("%w: retriever score_threshold must be in [0, 1]", ErrInvalid)
	}
	if cfg.Models.Dimension < 1 {
		return fmt.Errorf("%w: models dimension must be positive", ErrInvalid)
	}
	if cfg.Resolver.MaxRetries < 0 {
		return fmt.Errorf("%w: resolver max_retries must not be negative", ErrInvalid)
	}
	return nil
}
