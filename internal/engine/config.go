package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/mnemo/internal/cache"
	"github.com/felixgeelhaar/mnemo/internal/learn"
	"github.com/felixgeelhaar/mnemo/internal/similarity"
	"github.com/felixgeelhaar/mnemo/internal/validate"
)

// Config assembles the component configurations. The zero value of any
// nested field falls back to that component's default.
type Config struct {
	// DBPath is the SQLite database location. Empty means in-memory
	// indices only, with no durability.
	DBPath string `yaml:"db_path" json:"db_path"`

	Cache      cache.Config      `yaml:"cache" json:"cache"`
	Similarity similarity.Config `yaml:"similarity" json:"similarity"`
	Validator  validate.Config   `yaml:"validator" json:"validator"`
	Learner    learn.Config      `yaml:"learner" json:"learner"`

	// RecallMinSimilarity is the threshold for the recall operation.
	// It is deliberately lower than the index default so loosely
	// related history still surfaces.
	RecallMinSimilarity float64 `yaml:"recall_min_similarity" json:"recall_min_similarity"`

	// ProcessSimilarK bounds the similar-interaction list merged into
	// process context.
	ProcessSimilarK int `yaml:"process_similar_k" json:"process_similar_k"`

	// KnowledgeMinPriority and KnowledgeLimit scope the knowledge hits
	// merged into process context.
	KnowledgeMinPriority int `yaml:"knowledge_min_priority" json:"knowledge_min_priority"`
	KnowledgeLimit       int `yaml:"knowledge_limit" json:"knowledge_limit"`
}

// DefaultConfig provides safe defaults.
func DefaultConfig() Config {
	return Config{
		Cache:                cache.DefaultConfig(),
		Similarity:           similarity.DefaultConfig(),
		Validator:            validate.DefaultConfig(),
		Learner:              learn.DefaultConfig(),
		RecallMinSimilarity:  0.25,
		ProcessSimilarK:      3,
		KnowledgeMinPriority: 7,
		KnowledgeLimit:       3,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.RecallMinSimilarity <= 0 {
		c.RecallMinSimilarity = def.RecallMinSimilarity
	}
	if c.ProcessSimilarK <= 0 {
		c.ProcessSimilarK = def.ProcessSimilarK
	}
	if c.KnowledgeMinPriority <= 0 {
		c.KnowledgeMinPriority = def.KnowledgeMinPriority
	}
	if c.KnowledgeLimit <= 0 {
		c.KnowledgeLimit = def.KnowledgeLimit
	}
}

// LoadConfig reads an engine configuration from a file (JSON or YAML).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}

	return cfg, nil
}
