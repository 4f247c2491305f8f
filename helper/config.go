package helper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfiguration holds the tunables of the retrieval engine
type EngineConfiguration struct {
	RRFK             float64       `yaml:"rrf_k"`
	AdapterTimeout   time.Duration `yaml:"adapter_timeout"`
	GraphTimeout     time.Duration `yaml:"graph_timeout"`
	DefaultMaxTokens int           `yaml:"default_max_tokens"`
	TokenizerModel   string        `yaml:"tokenizer_model"`
	HighValueLabels  []string      `yaml:"high_value_labels"`
	SeedLimit        int           `yaml:"seed_limit"`
	RequireKGView    bool          `yaml:"require_kg_view"`
	CacheProfiles    bool          `yaml:"cache_profiles"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
}

// DefaultEngineConfiguration returns the engine defaults
func DefaultEngineConfiguration() *EngineConfiguration {
	return &EngineConfiguration{
		RRFK:             60,
		AdapterTimeout:   10 * time.Second,
		GraphTimeout:     30 * time.Second,
		DefaultMaxTokens: 4000,
		TokenizerModel:   "gpt-4o",
		HighValueLabels: []string{
			"Drug", "Compound", "Disease", "Gene", "Protein",
			"Target", "Pathway", "ClinicalTrial", "Indication",
		},
		SeedLimit:        10,
		RequireKGView:    true,
		CacheProfiles:    true,
		MetricsNamespace: "graphrag",
	}
}

// LoadEngineConfiguration reads a YAML file on top of the defaults.
// Fields missing from the file keep their default value.
func LoadEngineConfiguration(path string) (*EngineConfiguration, error) {
	config := DefaultEngineConfiguration()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("read engine configuration", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewError("parse engine configuration", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for values the engine cannot work with
func (c *EngineConfiguration) Validate() error {
	if c.RRFK <= 0 {
		return NewError("engine configuration validation", fmt.Errorf("rrf_k must be positive, got %v", c.RRFK))
	}
	if c.AdapterTimeout <= 0 || c.GraphTimeout <= 0 {
		return NewError("engine configuration validation", fmt.Errorf("adapter_timeout and graph_timeout must be positive"))
	}
	if c.DefaultMaxTokens < 0 {
		return NewError("engine configuration validation", fmt.Errorf("default_max_tokens must not be negative"))
	}
	if c.SeedLimit <= 0 {
		return NewError("engine configuration validation", fmt.Errorf("seed_limit must be positive, got %d", c.SeedLimit))
	}
	return nil
}
